package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
	"github.com/hazardwatch/edge-next/internal/infra"
	modelcache "github.com/hazardwatch/edge-next/internal/model/cache"
	"github.com/hazardwatch/edge-next/internal/netmon"
	"github.com/hazardwatch/edge-next/internal/repo"
)

// submission is one decoded request seen by the upstream stub.
type submission struct {
	EventType   string
	Description string
	MediaName   string
	MediaBytes  []byte
}

// upstreamStub plays the remote submission endpoint. Status controls the
// response code; Block, when set, holds each request until released.
type upstreamStub struct {
	mu          sync.Mutex
	status      int
	submissions []submission

	block   chan struct{}
	arrived chan struct{}

	server *httptest.Server
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	s := &upstreamStub{status: http.StatusCreated, arrived: make(chan struct{}, 16)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))

		sub := submission{
			EventType:   r.FormValue("event_type"),
			Description: r.FormValue("description"),
		}
		if f, fh, err := r.FormFile("media"); err == nil {
			sub.MediaName = fh.Filename
			sub.MediaBytes, _ = io.ReadAll(f)
			f.Close()
		}

		s.mu.Lock()
		s.submissions = append(s.submissions, sub)
		status := s.status
		block := s.block
		s.mu.Unlock()

		select {
		case s.arrived <- struct{}{}:
		default:
		}
		if block != nil {
			<-block
		}

		if status >= 400 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"synthetic upstream failure"}`))
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *upstreamStub) setStatus(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

func (s *upstreamStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submissions)
}

func (s *upstreamStub) recorded() []submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submission(nil), s.submissions...)
}

func testConfig(upstream string) *appconfig.Config {
	return &appconfig.Config{
		ConfigSpec: appconfig.ConfigSpec{
			UpstreamBaseURL: upstream,
			SubmitPath:      "/api/v1/report",
			HealthProbePath: "/health",
			SubmitTimeout:   5 * time.Second,
			// no backoff in tests: a failed report is re-attempted by the
			// very next pass
			SyncBackoffBase: 0,
			SyncBackoffCap:  time.Hour,
		},
	}
}

type harness struct {
	Store   *infra.Store
	Reports *repo.PendingReport
	Media   *repo.MediaBlob
	Monitor *netmon.Monitor
	Uplink  *Uplink
	Report  *Report
	Sync    *Sync
}

func newHarness(t *testing.T, upstream string) *harness {
	t.Helper()
	modelcache.Initialize()

	conf := testConfig(upstream)
	store := infra.Open(filepath.Join(t.TempDir(), "test.db"))
	require.True(t, store.Available())
	require.NoError(t, repo.NewMeta(store).Migrate(context.Background()))

	reports := repo.NewPendingReport(store)
	media := repo.NewMediaBlob(store)
	monitor := netmon.NewWithProbe(upstream+"/health", time.Minute, time.Second)
	uplink := NewUplink(conf)
	report := NewReport(store, reports, media, uplink, monitor)
	engine := NewSync(conf, store, reports, media, report, uplink, monitor, nil)

	return &harness{
		Store:   store,
		Reports: reports,
		Media:   media,
		Monitor: monitor,
		Uplink:  uplink,
		Report:  report,
		Sync:    engine,
	}
}
