package meta

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"

	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/pkg/bininfo"
	"github.com/hazardwatch/edge-next/internal/server/svr"
)

type Meta struct {
	fx.In

	Store *infra.Store
}

func RegisterMeta(meta *svr.Meta, c Meta) {
	meta.Get("/bininfo", c.BinInfo)
	meta.Get("/health", c.Health)
}

func (c *Meta) BinInfo(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"version": bininfo.Version,
		"build":   bininfo.BuildTime,
	})
}

// Health reports liveness of the agent itself. A degraded store is still
// "ok": the agent keeps serving with the queue disabled.
func (c *Meta) Health(ctx *fiber.Ctx) error {
	body := fiber.Map{
		"status": "ok",
	}
	if err := c.Store.Unavailability(); err != nil {
		body["queue"] = "unavailable"
	}
	return ctx.JSON(body)
}
