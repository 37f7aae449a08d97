package infra

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
)

// NATS connects to the local NATS server carrying deferred sync triggers and
// UI notifications. The connection retries in the background when the server
// is not up yet: a missing broker disables cross-process wake-ups, not the
// agent itself.
func NATS(conf *appconfig.Config) (*nats.Conn, error) {
	errorHandler := func(conn *nats.Conn, sub *nats.Subscription, err error) {
		e := log.Error().
			Str("evt.name", "nats.error").
			Err(err)
		if sub != nil {
			e = e.Str("sub.subject", sub.Subject)
		}
		e.Msg("nats error")
	}

	nc, err := nats.Connect(conf.NatsURL,
		nats.PingInterval(time.Second*20),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second*2),
		nats.ErrorHandler(errorHandler))
	if err != nil {
		log.Error().Err(err).Msg("infra: nats: failed to connect to NATS")
		return nil, err
	}

	return nc, nil
}
