package handlers

import (
	"grts/internal/dto"
	"grts/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const signatureHeader = "x-wex-signature"

type WexHandler struct {
	ingest *service.IngestService
	logger *zap.Logger
}

func NewWexHandler(ingest *service.IngestService, logger *zap.Logger) *WexHandler {
	return &WexHandler{ingest: ingest, logger: logger}
}

// Webhook godoc
// @Summary Receive a WEX transaction
// @Description Verifies the base64 HMAC-SHA256 of the raw body in x-wex-signature and upserts the transaction.
// @Tags wex
// @Accept json
// @Produce json
// @Param x-wex-signature header string true "base64 HMAC-SHA256 of the body"
// @Param request body dto.WexTransaction true "Transaction"
// @Success 200 {object} dto.WebhookResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /webhooks/wex [post]
func (h *WexHandler) Webhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns.
	body := append([]byte(nil), c.Body()...)

	tx, err := h.ingest.HandleWebhook(c.UserContext(), body, c.Get(signatureHeader))
	if err != nil {
		return respondError(c, h.logger, err, "Webhook ingest failed")
	}
	return c.JSON(dto.WebhookResponse{OK: true, ID: tx.ExternalID})
}

// Poll godoc
// @Summary Poll WEX for recent transactions
// @Description Imports the last N days and then starts a reconciliation sweep in the background. When a later item fails, the error status still reports how many items were imported before it.
// @Tags wex
// @Produce json
// @Param days query int false "Days to look back"
// @Param x-cron-secret header string false "Scheduler secret"
// @Security Bearer
// @Success 200 {object} dto.PollResponse
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /internal/wex/poll [post]
func (h *WexHandler) Poll(c *fiber.Ctx) error {
	days := c.QueryInt("days", 0)
	if days < 0 || days > 366 {
		return badRequest(c, "days must be between 1 and 366")
	}

	n, err := h.ingest.Poll(c.UserContext(), days)
	if err != nil && n == 0 {
		return respondError(c, h.logger, err, "WEX poll failed")
	}
	if err != nil {
		status := errorStatus(err)
		msg := err.Error()
		if status == fiber.StatusInternalServerError {
			msg = "WEX poll failed"
		}
		h.logger.Warn("WEX poll stopped after partial import", zap.Int("imported", n), zap.Error(err))
		return c.Status(status).JSON(dto.PollResponse{Imported: n, Error: msg})
	}
	return c.JSON(dto.PollResponse{Imported: n})
}
