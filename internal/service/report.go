package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/hazardwatch/edge-next/internal/constant"
	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/model"
	modelcache "github.com/hazardwatch/edge-next/internal/model/cache"
	"github.com/hazardwatch/edge-next/internal/model/types"
	"github.com/hazardwatch/edge-next/internal/netmon"
	"github.com/hazardwatch/edge-next/internal/pkg/hwerr"
	"github.com/hazardwatch/edge-next/internal/repo"
)

// Report owns the durable report queue: it decides between inline delivery
// and queueing, and is the only mutation path besides the sync engine.
type Report struct {
	Store             *infra.Store
	PendingReportRepo *repo.PendingReport
	MediaBlobRepo     *repo.MediaBlob
	Uplink            *Uplink
	Monitor           *netmon.Monitor
}

func NewReport(store *infra.Store, pendingReportRepo *repo.PendingReport, mediaBlobRepo *repo.MediaBlob, uplink *Uplink, monitor *netmon.Monitor) *Report {
	return &Report{
		Store:             store,
		PendingReportRepo: pendingReportRepo,
		MediaBlobRepo:     mediaBlobRepo,
		Uplink:            uplink,
		Monitor:           monitor,
	}
}

// AcceptResult tells the UI what happened to a submission: delivered right
// away, or saved locally for a later pass.
type AcceptResult struct {
	Report *model.PendingReport `json:"report"`
	Queued bool                 `json:"queued"`
}

// Accept is the submission entrypoint. Online it attempts inline delivery
// first and only falls back to the queue on a network-class failure; offline
// it queues straight away. When the store is unavailable the queue degrades
// to inline-only and a failure is surfaced rather than silently dropped.
func (s *Report) Accept(ctx context.Context, req *types.ReportRequest, media *model.MediaBlob) (*AcceptResult, error) {
	report := s.newPendingReport(req, media)

	if s.Monitor.IsOnline() {
		err := s.Uplink.Submit(ctx, report, media)
		if err == nil {
			report.Status = constant.ReportStatusSuccess
			return &AcceptResult{Report: report, Queued: false}, nil
		}
		if !Transient(err) {
			// data rejection: queueing identical data would fail identically
			return nil, hwerr.ErrInvalidReq.Msg("submission rejected: %s", err)
		}
		// network-class failure despite the monitor's optimism
		s.Monitor.SetOnline(false)
	}

	if err := s.enqueue(ctx, report, media); err != nil {
		if errors.Is(err, infra.ErrStoreUnavailable) {
			return nil, hwerr.ErrQueueUnavailable
		}
		return nil, err
	}

	return &AcceptResult{Report: report, Queued: true}, nil
}

func (s *Report) newPendingReport(req *types.ReportRequest, media *model.MediaBlob) *model.PendingReport {
	report := &model.PendingReport{
		ReportID:    xid.New().String(),
		EventType:   req.EventType,
		Description: req.Description,
		Severity:    req.Severity,
		Lat:         req.Lat,
		Lng:         req.Lng,
		CreatedAt:   time.Now(),
		HasMedia:    media != nil,
		Status:      constant.ReportStatusPending,
		Retryable:   true,
	}
	if media != nil {
		media.ReportID = report.ReportID
		media.CreatedAt = report.CreatedAt
	}
	return report
}

// enqueue persists the report and its media in one transaction, media row
// first so a torn write can never leave a report pointing at missing media.
func (s *Report) enqueue(ctx context.Context, report *model.PendingReport, media *model.MediaBlob) error {
	if err := s.Store.Unavailability(); err != nil {
		return err
	}
	err := s.Store.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if media != nil {
			if err := s.MediaBlobRepo.Save(ctx, tx, media); err != nil {
				return err
			}
		}
		return s.PendingReportRepo.Create(ctx, tx, report)
	})
	if err != nil {
		return err
	}

	s.FlushPendingCount()
	log.Info().
		Str("reportId", report.ReportID).
		Bool("hasMedia", report.HasMedia).
		Msg("report queued for sync")
	return nil
}

func (s *Report) ListPending(ctx context.Context) ([]*model.PendingReport, error) {
	return s.PendingReportRepo.ListPending(ctx)
}

// GetWithMedia loads one report together with its media blob, or
// hwerr.ErrNotFound.
func (s *Report) GetWithMedia(ctx context.Context, reportID string) (*model.PendingReport, *model.MediaBlob, error) {
	report, err := s.PendingReportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	var media *model.MediaBlob
	if report.HasMedia {
		media, err = s.MediaBlobRepo.GetByReportID(ctx, reportID)
		if err != nil {
			return nil, nil, err
		}
	}
	return report, media, nil
}

// Delete removes a report and its media atomically. Idempotent: deleting a
// report twice is not an error.
func (s *Report) Delete(ctx context.Context, reportID string) error {
	if err := s.Store.Unavailability(); err != nil {
		return err
	}
	err := s.Store.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.MediaBlobRepo.Delete(ctx, tx, reportID); err != nil {
			return err
		}
		return s.PendingReportRepo.Delete(ctx, tx, reportID)
	})
	if err != nil {
		return err
	}
	s.FlushPendingCount()
	return nil
}

// PendingCount returns the number of queued reports, memoized briefly for
// the status endpoint which the UI polls eagerly.
func (s *Report) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := modelcache.PendingReportCount.MutexGetSet(&count, func() (int, error) {
		return s.PendingReportRepo.CountPending(ctx)
	}, time.Second*5)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Report) FlushPendingCount() {
	_ = modelcache.PendingReportCount.Delete()
}

// ClearTerminal purges success rows left behind by an interrupted pass.
func (s *Report) ClearTerminal(ctx context.Context) (int64, error) {
	return s.PendingReportRepo.PurgeSuccess(ctx)
}
