package service

import (
	"context"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
	"github.com/hazardwatch/edge-next/internal/constant"
	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/model"
	"github.com/hazardwatch/edge-next/internal/model/types"
	"github.com/hazardwatch/edge-next/internal/netmon"
	"github.com/hazardwatch/edge-next/internal/repo"
)

// Sync drains the pending queue. At most one pass runs at a time: triggers
// arriving mid-pass coalesce into exactly one follow-up pass so newly queued
// or newly online-detected work is never lost.
type Sync struct {
	Store             *infra.Store
	PendingReportRepo *repo.PendingReport
	MediaBlobRepo     *repo.MediaBlob
	ReportService     *Report
	Uplink            *Uplink
	Monitor           *netmon.Monitor
	NatsConn          *nats.Conn

	backoffBase time.Duration
	backoffCap  time.Duration

	mu      sync.Mutex
	running bool
	pending bool
}

func NewSync(conf *appconfig.Config, store *infra.Store, pendingReportRepo *repo.PendingReport, mediaBlobRepo *repo.MediaBlob, reportService *Report, uplink *Uplink, monitor *netmon.Monitor, natsConn *nats.Conn) *Sync {
	return &Sync{
		Store:             store,
		PendingReportRepo: pendingReportRepo,
		MediaBlobRepo:     mediaBlobRepo,
		ReportService:     reportService,
		Uplink:            uplink,
		Monitor:           monitor,
		NatsConn:          natsConn,
		backoffBase:       conf.SyncBackoffBase,
		backoffCap:        conf.SyncBackoffCap,
	}
}

// PassResult counts one drain pass. Attempted excludes reports skipped by
// permanence or backoff.
type PassResult struct {
	Attempted int
	Succeeded int
}

// Trigger requests a drain pass and returns immediately. If a pass is
// already running the request collapses into one scheduled follow-up pass,
// no matter how many triggers arrive meanwhile.
func (s *Sync) Trigger(source string) {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		log.Debug().Str("source", source).Msg("sync: pass in flight, follow-up scheduled")
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.drainLoop(source)
}

func (s *Sync) drainLoop(source string) {
	for {
		result := s.RunPass(context.Background())
		s.notifyComplete(source, result)

		s.mu.Lock()
		if s.pending {
			s.pending = false
			s.mu.Unlock()
			continue
		}
		s.running = false
		s.mu.Unlock()
		return
	}
}

// RunPass executes one complete drain over the queue, oldest first, one
// report at a time. Failures never propagate out of the pass; they are
// recorded on the report rows and the pass waits for its next trigger.
func (s *Sync) RunPass(ctx context.Context) PassResult {
	var result PassResult

	if !s.Store.Available() {
		log.Warn().Msg("sync: store unavailable, nothing to drain")
		return result
	}

	reports, err := s.PendingReportRepo.ListQueued(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sync: failed to list queued reports")
		return result
	}

	now := time.Now()
	for _, report := range reports {
		if !s.eligible(report, now) {
			continue
		}
		result.Attempted++
		if err := s.submitOne(ctx, report); err != nil {
			log.Warn().
				Err(err).
				Str("reportId", report.ReportID).
				Int("retryCount", report.RetryCount+1).
				Msg("sync: submission attempt failed")
			continue
		}
		result.Succeeded++
	}

	// defensive double-purge: step 3's immediate purge may have been skipped
	// by a crash
	if purged, err := s.ReportService.ClearTerminal(ctx); err != nil {
		log.Error().Err(err).Msg("sync: failed to purge terminal reports")
	} else if purged > 0 {
		log.Info().Int64("purged", purged).Msg("sync: purged leftover success reports")
	}

	s.ReportService.FlushPendingCount()

	log.Info().
		Int("attempted", result.Attempted).
		Int("succeeded", result.Succeeded).
		Msg("sync: pass finished")
	return result
}

// eligible applies the exponential backoff keyed on retryCount. Pending
// reports are always eligible; failed ones wait base<<(n-1), capped.
func (s *Sync) eligible(report *model.PendingReport, now time.Time) bool {
	if report.Status == constant.ReportStatusPending {
		return true
	}
	if s.backoffBase <= 0 || !report.LastAttempt.Valid {
		return true
	}
	delay := s.backoffBase
	for i := 1; i < report.RetryCount && delay < s.backoffCap; i++ {
		delay *= 2
	}
	if delay > s.backoffCap {
		delay = s.backoffCap
	}
	return !now.Before(report.LastAttempt.Time.Add(delay))
}

// submitOne loads the report's media, attempts delivery and applies the
// disposition. A report deleted while its submission was in flight is a
// non-error: the late result is discarded.
func (s *Sync) submitOne(ctx context.Context, report *model.PendingReport) error {
	var media *model.MediaBlob
	if report.HasMedia {
		var err error
		media, err = s.MediaBlobRepo.GetByReportID(ctx, report.ReportID)
		if err != nil {
			// never submit a report with a dangling media reference
			_, _ = s.PendingReportRepo.MarkFailed(ctx, report.ReportID, "media blob unreadable", false)
			return errors.Wrap(err, "load media")
		}
	}

	err := s.Uplink.Submit(ctx, report, media)
	if err == nil {
		found, err := s.PendingReportRepo.MarkSuccess(ctx, report.ReportID)
		if err != nil {
			return err
		}
		if !found {
			// deleted mid-submission by the user
			return nil
		}
		// success rows never accumulate: purge immediately
		return s.ReportService.Delete(ctx, report.ReportID)
	}

	if Transient(err) {
		// a network-class failure is authoritative over probe optimism
		var se *SubmitError
		if !errors.As(err, &se) {
			s.Monitor.SetOnline(false)
		}
		_, _ = s.PendingReportRepo.MarkFailed(ctx, report.ReportID, err.Error(), true)
	} else {
		log.Trace().Str("report", spew.Sdump(report)).Msg("sync: report rejected permanently")
		_, _ = s.PendingReportRepo.MarkFailed(ctx, report.ReportID, err.Error(), false)
	}
	return err
}

// RetryOne is the manual retry path. It bypasses pass coalescing and
// backoff, submits the single report immediately regardless of engine state,
// and independently updates that record's status.
func (s *Sync) RetryOne(ctx context.Context, reportID string) (*model.PendingReport, error) {
	report, err := s.PendingReportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	// a manual retry overrides an earlier permanent rejection
	if _, err := s.PendingReportRepo.Requeue(ctx, reportID); err != nil {
		return nil, err
	}
	report.Status = constant.ReportStatusPending
	report.Retryable = true

	if err := s.submitOne(ctx, report); err != nil {
		refreshed, gerr := s.PendingReportRepo.GetByID(ctx, reportID)
		if gerr != nil {
			return nil, gerr
		}
		return refreshed, nil
	}

	s.ReportService.FlushPendingCount()
	report.Status = constant.ReportStatusSuccess
	return report, nil
}

// notifyComplete broadcasts the pass outcome to any open UI instance. A
// missing broker only disables the notification, never the pass itself.
func (s *Sync) notifyComplete(source string, result PassResult) {
	if s.NatsConn == nil {
		return
	}
	msg := &types.SyncCompleteMessage{
		Type:        constant.SyncCompleteMessageType,
		SyncedCount: result.Succeeded,
		TotalCount:  result.Attempted,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("sync: failed to marshal completion message")
		return
	}
	if err := s.NatsConn.Publish(constant.SubjectSyncComplete, payload); err != nil {
		log.Warn().Err(err).Str("source", source).Msg("sync: failed to publish completion message")
	}
}
