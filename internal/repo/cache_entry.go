package repo

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/model"
	"github.com/hazardwatch/edge-next/internal/repo/selector"
)

type CacheEntry struct {
	store *infra.Store
	sel   selector.S[model.CacheEntry]
}

func NewCacheEntry(store *infra.Store) *CacheEntry {
	r := &CacheEntry{store: store}
	if store.Available() {
		r.sel = selector.New[model.CacheEntry](store.DB)
	}
	return r
}

func (r *CacheEntry) Get(ctx context.Context, cacheClass, cacheKey string) (*model.CacheEntry, error) {
	if err := r.store.Unavailability(); err != nil {
		return nil, err
	}
	return r.sel.SelectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("cache_class = ?", cacheClass).
			Where("cache_key = ?", cacheKey)
	})
}

// Put stores or refreshes a cached upstream response. The entry is stamped
// with the current schema version so upgrade eviction can drop prior
// generations.
func (r *CacheEntry) Put(ctx context.Context, entry *model.CacheEntry) error {
	if err := r.store.Unavailability(); err != nil {
		return err
	}
	entry.SchemaVersion = SchemaVersion
	entry.StoredAt = time.Now()
	_, err := r.store.DB.NewInsert().
		Model(entry).
		On("CONFLICT (cache_class, cache_key) DO UPDATE").
		Set("status_code = EXCLUDED.status_code").
		Set("headers = EXCLUDED.headers").
		Set("body = EXCLUDED.body").
		Set("schema_version = EXCLUDED.schema_version").
		Set("stored_at = EXCLUDED.stored_at").
		Exec(ctx)
	return err
}

// EvictClass clears one cache class without touching the other, so static
// and dynamic collections can be managed independently.
func (r *CacheEntry) EvictClass(ctx context.Context, cacheClass string) (int64, error) {
	if err := r.store.Unavailability(); err != nil {
		return 0, err
	}
	res, err := r.store.DB.NewDelete().
		Model((*model.CacheEntry)(nil)).
		Where("cache_class = ?", cacheClass).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
