package handlers

import (
	"grts/internal/dto"
	"grts/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ReconcileHandler struct {
	sweep       *service.SweepService
	resolutions *service.ResolutionService
	dispatcher  *service.Dispatcher
	logger      *zap.Logger
}

func NewReconcileHandler(sweep *service.SweepService, resolutions *service.ResolutionService, dispatcher *service.Dispatcher, logger *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		sweep:       sweep,
		resolutions: resolutions,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

func parseDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// Sweep godoc
// @Summary Run a reconciliation sweep
// @Description Links receipts to transactions, creates placeholders for missing receipts and flags orphan receipts. Idempotent.
// @Tags reconcile
// @Produce json
// @Param range_days query int false "Days to look back"
// @Param amount_tol_dollars query string false "Absolute tolerance"
// @Param amount_tol_percent query string false "Relative tolerance in percent"
// @Security Bearer
// @Success 200 {object} service.SweepSummary
// @Failure 400 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Router /api/v1/reconcile/sweep [post]
func (h *ReconcileHandler) Sweep(c *fiber.Ctx) error {
	var q dto.SweepQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "Invalid query")
	}
	if fields := dto.Validate(&q); fields != nil {
		return respondError(c, h.logger, &service.FieldError{Fields: fields}, "Invalid query")
	}

	summary, err := h.sweep.Run(c.UserContext(), service.SweepOptions{
		RangeDays:  q.RangeDays,
		TolDollars: parseDecimal(q.TolDollars),
		TolPercent: parseDecimal(q.TolPercent),
	})
	if err != nil {
		return respondError(c, h.logger, err, "Sweep failed")
	}
	h.dispatcher.Go(summary.Effects...)

	return c.JSON(summary)
}

// LegacyMissing godoc
// @Summary Flag missing receipts with a flat tolerance
// @Description Deprecated. Writes terminal missing rows and emails the officer. Prefer /reconcile/sweep.
// @Tags reconcile
// @Produce json
// @Param range_days query int false "Days to look back"
// @Param amount_tolerance query string false "Flat tolerance in dollars"
// @Security Bearer
// @Success 200 {object} service.LegacySummary
// @Router /api/v1/reconcile/legacy-missing [post]
func (h *ReconcileHandler) LegacyMissing(c *fiber.Ctx) error {
	var q dto.LegacyQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "Invalid query")
	}
	if fields := dto.Validate(&q); fields != nil {
		return respondError(c, h.logger, &service.FieldError{Fields: fields}, "Invalid query")
	}

	summary, err := h.sweep.FlagMissingLegacy(c.UserContext(), q.RangeDays, parseDecimal(q.Tolerance))
	if err != nil {
		return respondError(c, h.logger, err, "Legacy flagging failed")
	}
	h.dispatcher.Go(summary.Effects...)

	return c.JSON(summary)
}

func toCandidatesResponse(cand *service.Candidates) dto.CandidatesResponse {
	resp := dto.CandidatesResponse{
		Receipt:      service.ToReceiptResponse(cand.Receipt),
		Receipts:     make([]dto.ReceiptResponse, 0, len(cand.Receipts)),
		Transactions: make([]dto.TransactionResponse, 0, len(cand.Transactions)),
	}
	for _, r := range cand.Receipts {
		resp.Receipts = append(resp.Receipts, service.ToReceiptResponse(r))
	}
	for _, tx := range cand.Transactions {
		resp.Transactions = append(resp.Transactions, service.ToTransactionResponse(tx))
	}
	return resp
}

// Pending godoc
// @Summary Review queue
// @Description Receipts in pending_review with their candidates.
// @Tags reconcile
// @Produce json
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {object} dto.PendingResponse
// @Router /api/v1/reconcile/pending [get]
func (h *ReconcileHandler) Pending(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid user_id")
		}
		userID = &id
	}

	items, err := h.resolutions.Pending(c.UserContext(), actor, userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load review queue")
	}

	resp := dto.PendingResponse{Items: make([]dto.CandidatesResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toCandidatesResponse(item))
	}
	resp.Count = len(resp.Items)
	return c.JSON(resp)
}

// Candidates godoc
// @Summary Link candidates for a receipt
// @Tags reconcile
// @Produce json
// @Param id path string true "Receipt ID"
// @Security Bearer
// @Success 200 {object} dto.CandidatesResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/reconcile/{id}/candidates [get]
func (h *ReconcileHandler) Candidates(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid receipt ID")
	}

	cand, err := h.resolutions.Candidates(c.UserContext(), actor, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load candidates")
	}
	return c.JSON(toCandidatesResponse(cand))
}

func (h *ReconcileHandler) finish(c *fiber.Ctx, res *service.ResolutionResult) error {
	h.dispatcher.Go(res.Effects...)
	return c.JSON(dto.ResolutionResponse{OK: true, Message: res.Message, Warnings: res.Warnings})
}

// ResolveMissing godoc
// @Summary Acknowledge a missing receipt
// @Description Marks the row missing and records a resolution so the date stops counting as a deficit.
// @Tags reconcile
// @Accept json
// @Produce json
// @Param id path string true "Receipt ID"
// @Param request body dto.ResolveMissingRequest false "Reason"
// @Security Bearer
// @Success 200 {object} dto.ResolutionResponse
// @Failure 409 {object} map[string]string
// @Router /api/v1/reconcile/{id}/resolve-missing [post]
func (h *ReconcileHandler) ResolveMissing(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid receipt ID")
	}

	var req dto.ResolveMissingRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	if fields := dto.Validate(&req); fields != nil {
		return respondError(c, h.logger, &service.FieldError{Fields: fields}, "Invalid request")
	}

	res, err := h.resolutions.ResolveMissing(c.UserContext(), actor, id, req.Reason)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to resolve missing receipt")
	}
	return h.finish(c, res)
}

// Discard godoc
// @Summary Discard a placeholder
// @Description Deletes the placeholder and dismisses its transaction so later sweeps do not recreate it.
// @Tags reconcile
// @Produce json
// @Param id path string true "Placeholder ID"
// @Security Bearer
// @Success 200 {object} dto.ResolutionResponse
// @Failure 409 {object} map[string]string
// @Router /api/v1/reconcile/{id} [delete]
func (h *ReconcileHandler) Discard(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid receipt ID")
	}

	res, err := h.resolutions.DiscardPlaceholder(c.UserContext(), actor, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to discard placeholder")
	}
	return h.finish(c, res)
}

// LinkReceipt godoc
// @Summary Link a placeholder to an uploaded receipt
// @Description Moves the placeholder's transaction to the receipt and deletes the placeholder.
// @Tags reconcile
// @Accept json
// @Produce json
// @Param id path string true "Placeholder ID"
// @Param request body dto.LinkReceiptRequest true "Receipt"
// @Security Bearer
// @Success 200 {object} dto.ResolutionResponse
// @Failure 409 {object} map[string]string
// @Router /api/v1/reconcile/{id}/link-receipt [post]
func (h *ReconcileHandler) LinkReceipt(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid placeholder ID")
	}

	var req dto.LinkReceiptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if fields := dto.Validate(&req); fields != nil {
		return respondError(c, h.logger, &service.FieldError{Fields: fields}, "Invalid request")
	}

	res, err := h.resolutions.LinkPlaceholderToReceipt(c.UserContext(), actor, id, uuid.MustParse(req.ReceiptID))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to link receipt")
	}
	return h.finish(c, res)
}

// LinkTransaction godoc
// @Summary Link a receipt to a transaction
// @Description Rows already closed as missing cannot be relinked.
// @Tags reconcile
// @Accept json
// @Produce json
// @Param id path string true "Receipt ID"
// @Param request body dto.LinkTransactionRequest true "Transaction"
// @Security Bearer
// @Success 200 {object} dto.ResolutionResponse
// @Failure 409 {object} map[string]string
// @Router /api/v1/reconcile/{id}/link-transaction [post]
func (h *ReconcileHandler) LinkTransaction(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid receipt ID")
	}

	var req dto.LinkTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if fields := dto.Validate(&req); fields != nil {
		return respondError(c, h.logger, &service.FieldError{Fields: fields}, "Invalid request")
	}

	res, err := h.resolutions.LinkReceiptToTransaction(c.UserContext(), actor, id, uuid.MustParse(req.TransactionID))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to link transaction")
	}
	return h.finish(c, res)
}
