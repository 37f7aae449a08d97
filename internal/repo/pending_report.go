package repo

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"gopkg.in/guregu/null.v3"

	"github.com/hazardwatch/edge-next/internal/constant"
	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/model"
	"github.com/hazardwatch/edge-next/internal/repo/selector"
)

type PendingReport struct {
	store *infra.Store
	sel   selector.S[model.PendingReport]
}

func NewPendingReport(store *infra.Store) *PendingReport {
	r := &PendingReport{store: store}
	if store.Available() {
		r.sel = selector.New[model.PendingReport](store.DB)
	}
	return r
}

func (r *PendingReport) Create(ctx context.Context, idb bun.IDB, report *model.PendingReport) error {
	if err := r.store.Unavailability(); err != nil {
		return err
	}
	_, err := idb.NewInsert().
		Model(report).
		Exec(ctx)
	return err
}

func (r *PendingReport) GetByID(ctx context.Context, reportID string) (*model.PendingReport, error) {
	if err := r.store.Unavailability(); err != nil {
		return nil, err
	}
	return r.sel.SelectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("report_id = ?", reportID)
	})
}

// ListQueued returns the reports an automatic pass should attempt: pending
// ones plus transiently-failed retryable ones, oldest first. Re-querying
// after mutation reflects current state.
func (r *PendingReport) ListQueued(ctx context.Context) ([]*model.PendingReport, error) {
	if err := r.store.Unavailability(); err != nil {
		return nil, err
	}
	return r.sel.SelectMany(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("status = ?", constant.ReportStatusPending).
			WhereOr("status = ? AND retryable", constant.ReportStatusFailed).
			Order("created_at ASC")
	})
}

// ListPending returns every non-success report for the UI's pending list,
// permanently-failed ones included, oldest first.
func (r *PendingReport) ListPending(ctx context.Context) ([]*model.PendingReport, error) {
	if err := r.store.Unavailability(); err != nil {
		return nil, err
	}
	return r.sel.SelectMany(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("status != ?", constant.ReportStatusSuccess).
			Order("created_at ASC")
	})
}

func (r *PendingReport) CountPending(ctx context.Context) (int, error) {
	if err := r.store.Unavailability(); err != nil {
		return 0, err
	}
	return r.store.DB.NewSelect().
		Model((*model.PendingReport)(nil)).
		Where("status != ?", constant.ReportStatusSuccess).
		Count(ctx)
}

// MarkSuccess transitions a report to the terminal success status. The
// returned bool is false when the row no longer exists, which callers treat
// as a non-error: the user deleted the report while its submission was in
// flight and the result is simply discarded.
func (r *PendingReport) MarkSuccess(ctx context.Context, reportID string) (bool, error) {
	if err := r.store.Unavailability(); err != nil {
		return false, err
	}
	res, err := r.store.DB.NewUpdate().
		Model((*model.PendingReport)(nil)).
		Set("status = ?", constant.ReportStatusSuccess).
		Set("last_error = NULL").
		Set("last_attempt = ?", time.Now()).
		Where("report_id = ?", reportID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailed records a failed attempt: status becomes failed, the retry count
// increments, and the error message is kept for display. retryable=false
// stops automatic retries after a permanent (4xx) rejection while keeping the
// report available for manual retry or deletion.
func (r *PendingReport) MarkFailed(ctx context.Context, reportID string, message string, retryable bool) (bool, error) {
	if err := r.store.Unavailability(); err != nil {
		return false, err
	}
	res, err := r.store.DB.NewUpdate().
		Model((*model.PendingReport)(nil)).
		Set("status = ?", constant.ReportStatusFailed).
		Set("retryable = ?", retryable).
		Set("retry_count = retry_count + 1").
		Set("last_error = ?", null.StringFrom(message)).
		Set("last_attempt = ?", time.Now()).
		Where("report_id = ?", reportID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Requeue flips a failed report back to pending, clearing the permanence
// flag. Used by manual retry so a subsequent automatic pass picks the report
// up again should the manual attempt fail transiently.
func (r *PendingReport) Requeue(ctx context.Context, reportID string) (bool, error) {
	if err := r.store.Unavailability(); err != nil {
		return false, err
	}
	res, err := r.store.DB.NewUpdate().
		Model((*model.PendingReport)(nil)).
		Set("status = ?", constant.ReportStatusPending).
		Set("retryable = ?", true).
		Where("report_id = ?", reportID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes a report row. Deleting a missing row is not an error.
func (r *PendingReport) Delete(ctx context.Context, idb bun.IDB, reportID string) error {
	if err := r.store.Unavailability(); err != nil {
		return err
	}
	_, err := idb.NewDelete().
		Model((*model.PendingReport)(nil)).
		Where("report_id = ?", reportID).
		Exec(ctx)
	return err
}

// PurgeSuccess removes every success-status report together with its media.
// Ran after each pass to catch rows whose per-report purge was interrupted
// by a crash.
func (r *PendingReport) PurgeSuccess(ctx context.Context) (int64, error) {
	if err := r.store.Unavailability(); err != nil {
		return 0, err
	}
	var purged int64
	err := r.store.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*model.MediaBlob)(nil)).
			Where("report_id IN (SELECT report_id FROM pending_reports WHERE status = ?)", constant.ReportStatusSuccess).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*model.PendingReport)(nil)).
			Where("status = ?", constant.ReportStatusSuccess).
			Exec(ctx)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	return purged, err
}
