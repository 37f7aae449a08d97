package v1

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"

	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/netmon"
	"github.com/hazardwatch/edge-next/internal/pkg/cachectrl"
	"github.com/hazardwatch/edge-next/internal/server/svr"
	"github.com/hazardwatch/edge-next/internal/service"
)

type Status struct {
	fx.In

	Store         *infra.Store
	Monitor       *netmon.Monitor
	ReportService *service.Report
}

func RegisterStatus(v1 *svr.V1, c Status) {
	v1.Get("/status", c.GetStatus)
}

// GetStatus backs the UI's connectivity indicator and pending-count badge.
// It keeps answering when the store is unavailable: the queue is reported
// empty and queueAvailable flags the degradation.
func (c *Status) GetStatus(ctx *fiber.Ctx) error {
	pendingCount, err := c.ReportService.PendingCount(ctx.UserContext())
	if err != nil && !errors.Is(err, infra.ErrStoreUnavailable) {
		return err
	}

	cachectrl.OptOut(ctx)
	return ctx.JSON(fiber.Map{
		"online":         c.Monitor.IsOnline(),
		"pendingCount":   pendingCount,
		"queueAvailable": c.Store.Available(),
	})
}
