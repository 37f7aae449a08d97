package app

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hazardwatch/edge-next/cmd/app/server"
	"github.com/hazardwatch/edge-next/internal/pkg/bininfo"
)

func Run() {
	app := &cli.App{
		Name:        "hwedge",
		Description: "The HazardWatch offline-first edge agent. Captures hazard reports while connectivity is unreliable, queues them in an embedded store and drains the queue to the upstream service once connectivity returns. Built with Go, fiber, bun and go.uber.org/fx. Uses NATS for cross-process notifications.",
		Version:     bininfo.Version,
		Commands: []*cli.Command{
			server.Command(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to run app")
	}
}
