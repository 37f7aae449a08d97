// Package netmon is the single source of truth for connectivity. It probes
// the upstream health endpoint periodically and exposes the current state
// plus a stream of transition events. The platform signal is allowed to be
// optimistic: a failed submission is authoritative and flips the state back
// to offline via SetOnline.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
)

// Event is a connectivity transition. Only state changes are delivered.
type Event struct {
	Online bool
}

type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu     sync.RWMutex
	online bool
	subs   []chan Event
}

func New(conf *appconfig.Config) *Monitor {
	return NewWithProbe(conf.UpstreamBaseURL+conf.HealthProbePath, conf.ProbeInterval, conf.ProbeTimeout)
}

func NewWithProbe(probeURL string, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Run probes until ctx is cancelled. The first probe runs immediately so the
// agent does not report a stale default state for a whole interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.SetOnline(m.probe(ctx))

	for {
		select {
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		case <-ctx.Done():
			return
		}
	}
}

// probe reports whether the upstream is reachable. A few quick retries
// debounce flapping links; any HTTP response at all counts as reachable, the
// route is what is being tested.
func (m *Monitor) probe(ctx context.Context) bool {
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := m.client.Do(req)
			if err != nil {
				return errors.Wrap(err, "connectivity probe")
			}
			resp.Body.Close()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Millisecond*500),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Trace().Err(err).Str("probeUrl", m.probeURL).Msg("netmon: probe failed")
		return false
	}
	return true
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records the connectivity state and broadcasts the transition to
// subscribers when it changed. The sync engine calls this with false after a
// network-class submission failure, overriding probe optimism.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := m.subs
	m.mu.Unlock()

	if !changed {
		return
	}

	log.Info().Bool("online", online).Msg("netmon: connectivity transition")
	for _, sub := range subs {
		select {
		case sub <- Event{Online: online}:
		default:
			// slow subscriber; transitions are coalesced by the consumer anyway
		}
	}
}

// Subscribe returns a channel delivering connectivity transitions. The
// channel is buffered; a subscriber that cannot keep up misses intermediate
// transitions but always observes the latest state via IsOnline.
func (m *Monitor) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}
