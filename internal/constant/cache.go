package constant

const (
	// CacheClassStatic holds immutable UI assets served cache-first.
	CacheClassStatic = "static"

	// CacheClassDynamic holds API reads and media, refreshed network-first
	// or cache-first depending on the resource class.
	CacheClassDynamic = "dynamic"
)
