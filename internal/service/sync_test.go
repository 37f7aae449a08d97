package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/hazardwatch/edge-next/internal/constant"
	"github.com/hazardwatch/edge-next/internal/model"
	"github.com/hazardwatch/edge-next/internal/model/types"
)

func acceptOffline(t *testing.T, h *harness, description string, media *model.MediaBlob) *model.PendingReport {
	t.Helper()
	h.Monitor.SetOnline(false)
	result, err := h.Report.Accept(context.Background(), &types.ReportRequest{
		EventType:   "flood",
		Description: description,
		Severity:    3,
		Lat:         51.5,
		Lng:         -0.12,
	}, media)
	require.NoError(t, err)
	require.True(t, result.Queued)
	return result.Report
}

// Creating a report offline and regaining connectivity drains it within one
// pass, with exactly one upstream submission.
func TestSyncDrainsOfflineReport(t *testing.T) {
	stub := newUpstreamStub(t)
	h := newHarness(t, stub.server.URL)
	ctx := context.Background()

	acceptOffline(t, h, "tree down on main road", nil)

	h.Monitor.SetOnline(true)
	result := h.Sync.RunPass(ctx)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 1, result.Succeeded)

	pending, err := h.Report.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.Equal(t, 1, stub.count())
	assert.Equal(t, "tree down on main road", stub.recorded()[0].Description)
}

func TestSyncDeliversMedia(t *testing.T) {
	stub := newUpstreamStub(t)
	h := newHarness(t, stub.server.URL)
	ctx := context.Background()

	payload := []byte{0xff, 0xd8, 0xff, 0xe0}
	acceptOffline(t, h, "with photo", &model.MediaBlob{
		Payload:  payload,
		MimeType: "image/jpeg",
		Filename: "scene.jpg",
		ByteSize: int64(len(payload)),
	})

	result := h.Sync.RunPass(ctx)
	require.Equal(t, 1, result.Succeeded)

	recorded := stub.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, "scene.jpg", recorded[0].MediaName)
	assert.Equal(t, payload, recorded[0].MediaBytes)

	// the media blob is purged together with its report
	_, _, err := h.Report.GetWithMedia(ctx, "nonexistent")
	assert.Error(t, err)
}

// A 500 keeps the report queued with retry bookkeeping; the next successful
// pass removes it.
func TestSyncTransientFailureRetries(t *testing.T) {
	stub := newUpstreamStub(t)
	h := newHarness(t, stub.server.URL)
	ctx := context.Background()

	report := acceptOffline(t, h, "r", nil)

	stub.setStatus(http.StatusInternalServerError)
	result := h.Sync.RunPass(ctx)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 0, result.Succeeded)

	failed, err := h.Reports.GetByID(ctx, report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, constant.ReportStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.True(t, failed.Retryable)
	assert.Contains(t, failed.LastError.String, "synthetic upstream failure")

	stub.setStatus(http.StatusCreated)
	result = h.Sync.RunPass(ctx)
	assert.Equal(t, 1, result.Succeeded)

	pending, err := h.Report.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// A 4xx rejection stops automatic retries but still honors a manual one.
func TestSyncPermanentFailureStopsAutoRetry(t *testing.T) {
	stub := newUpstreamStub(t)
	h := newHarness(t, stub.server.URL)
	ctx := context.Background()

	report := acceptOffline(t, h, "r", nil)

	stub.setStatus(http.StatusBadRequest)
	h.Sync.RunPass(ctx)

	failed, err := h.Reports.GetByID(ctx, report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, constant.ReportStatusFailed, failed.Status)
	assert.False(t, failed.Retryable)
	retryCount := failed.RetryCount

	// automatic passes skip it entirely
	result := h.Sync.RunPass(ctx)
	assert.Equal(t, 0, result.Attempted)
	unchanged, err := h.Reports.GetByID(ctx, report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, retryCount, unchanged.RetryCount)
	require.Equal(t, 1, stub.count())

	// manual retry attempts exactly once more
	stub.setStatus(http.StatusCreated)
	retried, err := h.Sync.RetryOne(ctx, report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, constant.ReportStatusSuccess, retried.Status)
	assert.Equal(t, 2, stub.count())

	pending, err := h.Report.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// Reports are attempted strictly in creation order within a pass.
func TestSyncOrdering(t *testing.T) {
	stub := newUpstreamStub(t)
	h := newHarness(t, stub.server.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		acceptOffline(t, h, fmt.Sprintf("report %d", i), nil)
		// sqlite timestamps need distinguishable creation times
		time.Sleep(5 * time.Millisecond)
	}

	result := h.Sync.RunPass(ctx)
	require.Equal(t, 3, result.Succeeded)

	recorded := stub.recorded()
	require.Len(t, recorded, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprintf("report %d", i), recorded[i].Description)
	}
}

// N rapid triggers during a running pass collapse into exactly one
// follow-up pass.
func TestSyncTriggerCoalescing(t *testing.T) {
	stub := newUpstreamStub(t)
	h := newHarness(t, stub.server.URL)

	acceptOffline(t, h, "r", nil)

	// hold the first submission mid-flight; keep the report queued so the
	// follow-up pass attempts it again
	stub.setStatus(http.StatusInternalServerError)
	stub.mu.Lock()
	stub.block = make(chan struct{})
	stub.mu.Unlock()

	h.Sync.Trigger("test")
	select {
	case <-stub.arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("first submission never reached the upstream")
	}

	for i := 0; i < 5; i++ {
		h.Sync.Trigger("test")
	}

	stub.mu.Lock()
	close(stub.block)
	stub.block = nil
	stub.mu.Unlock()

	// first pass plus exactly one coalesced follow-up
	require.Eventually(t, func() bool {
		return stub.count() == 2
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, stub.count())
}

// A user delete racing an in-flight submission is a no-op for the late
// result.
func TestSyncDeleteMidSubmission(t *testing.T) {
	stub := newUpstreamStub(t)
	h := newHarness(t, stub.server.URL)
	ctx := context.Background()

	report := acceptOffline(t, h, "r", nil)

	stub.mu.Lock()
	stub.block = make(chan struct{})
	stub.mu.Unlock()

	done := make(chan PassResult, 1)
	go func() {
		done <- h.Sync.RunPass(ctx)
	}()

	select {
	case <-stub.arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("submission never reached the upstream")
	}

	require.NoError(t, h.Report.Delete(ctx, report.ReportID))

	stub.mu.Lock()
	close(stub.block)
	stub.block = nil
	stub.mu.Unlock()

	select {
	case result := <-done:
		assert.Equal(t, 1, result.Attempted)
	case <-time.After(5 * time.Second):
		t.Fatal("pass never finished")
	}

	pending, err := h.Report.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// A transport-level failure flips the monitor offline, overriding probe
// optimism.
func TestSyncTransportFailureFlipsOffline(t *testing.T) {
	stub := newUpstreamStub(t)
	url := stub.server.URL
	stub.server.Close()

	h := newHarness(t, url)
	ctx := context.Background()

	acceptOffline(t, h, "r", nil)
	h.Monitor.SetOnline(true)

	result := h.Sync.RunPass(ctx)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 0, result.Succeeded)
	assert.False(t, h.Monitor.IsOnline())

	report, err := h.Reports.GetByID(ctx, mustOnly(t, h).ReportID)
	require.NoError(t, err)
	assert.True(t, report.Retryable)
}

func TestSyncBackoffEligibility(t *testing.T) {
	now := time.Now()
	failed := func(retryCount int, sinceAttempt time.Duration) *model.PendingReport {
		return &model.PendingReport{
			Status:      constant.ReportStatusFailed,
			Retryable:   true,
			RetryCount:  retryCount,
			LastAttempt: null.TimeFrom(now.Add(-sinceAttempt)),
		}
	}

	tests := []struct {
		name   string
		base   time.Duration
		cap    time.Duration
		report *model.PendingReport
		want   bool
	}{
		{
			name:   "pending ignores backoff",
			base:   time.Second * 30,
			cap:    time.Hour,
			report: &model.PendingReport{Status: constant.ReportStatusPending, RetryCount: 8, LastAttempt: null.TimeFrom(now)},
			want:   true,
		},
		{
			name:   "zero base disables backoff",
			base:   0,
			cap:    time.Hour,
			report: failed(5, 0),
			want:   true,
		},
		{
			name:   "failed without recorded attempt",
			base:   time.Second * 30,
			cap:    time.Hour,
			report: &model.PendingReport{Status: constant.ReportStatusFailed, Retryable: true, RetryCount: 1},
			want:   true,
		},
		{
			name:   "first retry waits out the base delay",
			base:   time.Second * 30,
			cap:    time.Hour,
			report: failed(1, time.Second*10),
			want:   false,
		},
		{
			name:   "first retry after the base delay",
			base:   time.Second * 30,
			cap:    time.Hour,
			report: failed(1, time.Second*31),
			want:   true,
		},
		{
			name:   "third retry doubles twice",
			base:   time.Second * 30,
			cap:    time.Hour,
			report: failed(3, time.Second*60),
			want:   false,
		},
		{
			name:   "third retry after the doubled delay",
			base:   time.Second * 30,
			cap:    time.Hour,
			report: failed(3, time.Second*150),
			want:   true,
		},
		{
			name:   "high retry count clamps to the cap",
			base:   time.Second * 30,
			cap:    time.Minute,
			report: failed(10, time.Second*61),
			want:   true,
		},
		{
			name:   "within the clamped delay",
			base:   time.Second * 30,
			cap:    time.Minute,
			report: failed(10, time.Second*59),
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &Sync{backoffBase: tt.base, backoffCap: tt.cap}
			assert.Equal(t, tt.want, engine.eligible(tt.report, now))
		})
	}
}

func mustOnly(t *testing.T, h *harness) *model.PendingReport {
	t.Helper()
	pending, err := h.Report.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	return pending[0]
}
