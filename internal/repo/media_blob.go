package repo

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/model"
	"github.com/hazardwatch/edge-next/internal/repo/selector"
)

type MediaBlob struct {
	store *infra.Store
	sel   selector.S[model.MediaBlob]
}

func NewMediaBlob(store *infra.Store) *MediaBlob {
	r := &MediaBlob{store: store}
	if store.Available() {
		r.sel = selector.New[model.MediaBlob](store.DB)
	}
	return r
}

// Save persists a media blob under its owning report's id. The caller writes
// the blob before the report row within the same transaction so a crash can
// never leave a report pointing at missing media.
func (r *MediaBlob) Save(ctx context.Context, idb bun.IDB, blob *model.MediaBlob) error {
	if err := r.store.Unavailability(); err != nil {
		return err
	}
	_, err := idb.NewInsert().
		Model(blob).
		Exec(ctx)
	return err
}

func (r *MediaBlob) GetByReportID(ctx context.Context, reportID string) (*model.MediaBlob, error) {
	if err := r.store.Unavailability(); err != nil {
		return nil, err
	}
	return r.sel.SelectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("report_id = ?", reportID)
	})
}

// Delete removes the blob owned by reportID. Deleting a missing row is not
// an error.
func (r *MediaBlob) Delete(ctx context.Context, idb bun.IDB, reportID string) error {
	if err := r.store.Unavailability(); err != nil {
		return err
	}
	_, err := idb.NewDelete().
		Model((*model.MediaBlob)(nil)).
		Where("report_id = ?", reportID).
		Exec(ctx)
	return err
}
