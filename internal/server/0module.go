package server

import (
	"go.uber.org/fx"

	"github.com/hazardwatch/edge-next/internal/server/httpserver"
	"github.com/hazardwatch/edge-next/internal/server/svr"
)

func Module() fx.Option {
	return fx.Module("server",
		fx.Provide(httpserver.Create),
		fx.Provide(svr.CreateEndpointGroups))
}
