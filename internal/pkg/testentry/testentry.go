package testentry

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"github.com/hazardwatch/edge-next/internal/app"
	"github.com/hazardwatch/edge-next/internal/app/appcontext"
)

// Populate builds the full application graph without starting the listener
// or the workers' lifecycle and extracts the requested components, so tests
// exercise the exact wiring the agent runs with.
func Populate(t zerolog.TestingLog, targets ...any) {
	// for testing, logger is too annoying. therefore, we use a NopLogger here
	opts := []fx.Option{fx.NopLogger}
	opts = append(opts, app.Options(appcontext.Declare(appcontext.EnvCLI))...)
	opts = append(opts, fx.Populate(targets...))
	opts = append(opts, fx.Invoke(func() {
		log.Logger = log.Logger.Output(zerolog.NewTestWriter(t))
	}))

	app := fx.New(
		opts...,
	)

	if err := app.Err(); err != nil {
		panic(err)
	}
}
