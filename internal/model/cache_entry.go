package model

import (
	"time"

	"github.com/uptrace/bun"
)

// CacheEntry is a stored upstream response used by the intercept layer when
// the network is unavailable. Entries are keyed by request identity (GET +
// URL) within a cache class, and tagged with the schema version that wrote
// them so stale generations can be evicted wholesale on upgrade.
type CacheEntry struct {
	bun.BaseModel `bun:"cache_entries,alias:ce"`

	CacheClass string `bun:"cache_class,pk" json:"cacheClass"`
	CacheKey   string `bun:"cache_key,pk" json:"cacheKey"`

	StatusCode int    `bun:"status_code" json:"statusCode"`
	Headers    []byte `bun:"headers" json:"-"`
	Body       []byte `bun:"body" json:"-"`

	SchemaVersion int       `bun:"schema_version" json:"schemaVersion"`
	StoredAt      time.Time `bun:"stored_at" json:"storedAt"`
}
