package constant

const (
	ContextKeyRequestID = "requestid"

	RequestIDHeader = "X-Hazardwatch-Request-ID"

	// CacheStatusHeader reports whether the intercept layer served the
	// response from cache ("hit") or the upstream ("miss").
	CacheStatusHeader = "X-Hazardwatch-Cache"

	CacheStatusHit  = "hit"
	CacheStatusMiss = "miss"
)
