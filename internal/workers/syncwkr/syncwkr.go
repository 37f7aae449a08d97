package syncwkr

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
	"github.com/hazardwatch/edge-next/internal/constant"
	"github.com/hazardwatch/edge-next/internal/netmon"
	"github.com/hazardwatch/edge-next/internal/service"
)

type WorkerDeps struct {
	fx.In
	Monitor     *netmon.Monitor
	SyncService *service.Sync
	NatsConn    *nats.Conn
}

// Worker wakes the sync engine. It watches connectivity transitions, listens
// for deferred triggers arriving over the broker, and runs a periodic pass
// as a safety net. It never runs a pass itself: every wake-up funnels
// through the engine's coalescing trigger.
type Worker struct {
	// interval separates the periodic safety-net passes
	interval time.Duration

	WorkerDeps
}

func Start(conf *appconfig.Config, deps WorkerDeps) {
	w := &Worker{
		interval:   conf.SyncInterval,
		WorkerDeps: deps,
	}

	ctx := context.Background()
	go w.Monitor.Run(ctx)
	go w.watchTransitions(ctx)
	go w.watchDeferredTriggers()
	go w.periodic(ctx)
}

func (w *Worker) watchTransitions(ctx context.Context) {
	events := w.Monitor.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !ev.Online {
				log.Info().Msg("syncwkr: connectivity lost")
				continue
			}
			log.Info().Msg("syncwkr: connectivity restored")
			w.SyncService.Trigger("online-transition")
		}
	}
}

// watchDeferredTriggers wakes the engine on SYNC.trigger messages so an
// external process can request a drain without any UI involvement.
func (w *Worker) watchDeferredTriggers() {
	if w.NatsConn == nil {
		return
	}
	msgChan := make(chan *nats.Msg, 16)
	_, err := w.NatsConn.ChanSubscribe(constant.SubjectSyncTrigger, msgChan)
	if err != nil {
		log.Error().Err(err).Msg("syncwkr: failed to subscribe to deferred triggers")
		return
	}
	for range msgChan {
		w.SyncService.Trigger("deferred")
	}
}

func (w *Worker) periodic(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.Monitor.IsOnline() {
				continue
			}
			w.SyncService.Trigger("periodic")
		}
	}
}
