package v1

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"

	"github.com/hazardwatch/edge-next/internal/model"
	"github.com/hazardwatch/edge-next/internal/model/types"
	"github.com/hazardwatch/edge-next/internal/pkg/hwerr"
	"github.com/hazardwatch/edge-next/internal/server/svr"
	"github.com/hazardwatch/edge-next/internal/service"
	"github.com/hazardwatch/edge-next/internal/util/rekuest"
)

type Report struct {
	fx.In

	ReportService *service.Report
	SyncService   *service.Sync
}

func RegisterReport(v1 *svr.V1, c Report) {
	v1.Post("/reports", c.SubmitReport)
	v1.Get("/reports/pending", c.ListPending)
	v1.Get("/reports/:reportId", c.GetReport)
	v1.Delete("/reports/:reportId", c.DeleteReport)
	v1.Post("/reports/:reportId/retry", c.RetryReport)
	v1.Post("/sync", c.TriggerSync)
}

func (c *Report) SubmitReport(ctx *fiber.Ctx) error {
	var req types.ReportRequest
	if err := rekuest.ValidBody(ctx, &req); err != nil {
		return err
	}

	media, err := c.formMedia(ctx)
	if err != nil {
		return err
	}

	result, err := c.ReportService.Accept(ctx.UserContext(), &req, media)
	if err != nil {
		return err
	}

	status := fiber.StatusCreated
	if result.Queued {
		status = fiber.StatusAccepted
	}
	return ctx.Status(status).JSON(fiber.Map{
		"reportId": result.Report.ReportID,
		"status":   result.Report.Status,
		"queued":   result.Queued,
	})
}

func (c *Report) ListPending(ctx *fiber.Ctx) error {
	reports, err := c.ReportService.ListPending(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(reports)
}

func (c *Report) GetReport(ctx *fiber.Ctx) error {
	report, _, err := c.ReportService.GetWithMedia(ctx.UserContext(), ctx.Params("reportId"))
	if err != nil {
		return err
	}
	return ctx.JSON(report)
}

func (c *Report) DeleteReport(ctx *fiber.Ctx) error {
	if err := c.ReportService.Delete(ctx.UserContext(), ctx.Params("reportId")); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// RetryReport submits one record immediately, regardless of the sync
// engine's state and of an earlier permanent rejection.
func (c *Report) RetryReport(ctx *fiber.Ctx) error {
	report, err := c.SyncService.RetryOne(ctx.UserContext(), ctx.Params("reportId"))
	if err != nil {
		return err
	}
	return ctx.JSON(report)
}

func (c *Report) TriggerSync(ctx *fiber.Ctx) error {
	c.SyncService.Trigger("api")
	return ctx.SendStatus(fiber.StatusAccepted)
}

// formMedia extracts the optional media part of the submission form. Its id
// is filled in by the report service once the report id is generated.
func (c *Report) formMedia(ctx *fiber.Ctx) (*model.MediaBlob, error) {
	fh, err := ctx.FormFile("media")
	if err != nil {
		// fiber returns an error for a plain absent part
		return nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, hwerr.ErrInvalidReq.Msg("unreadable media part: %s", err)
	}
	defer f.Close()

	payload, err := io.ReadAll(f)
	if err != nil {
		return nil, hwerr.ErrInvalidReq.Msg("unreadable media part: %s", err)
	}

	return &model.MediaBlob{
		Payload:  payload,
		MimeType: fh.Header.Get(fiber.HeaderContentType),
		Filename: fh.Filename,
		ByteSize: int64(len(payload)),
	}, nil
}
