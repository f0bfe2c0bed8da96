package handlers

import (
	"io"

	"grts/internal/dto"
	"grts/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	receipts   *service.ReceiptService
	ocr        *service.OCRService
	dispatcher *service.Dispatcher
	maxUpload  int64
	logger     *zap.Logger
}

func NewReceiptHandler(receipts *service.ReceiptService, ocr *service.OCRService, dispatcher *service.Dispatcher, maxUpload int64, logger *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		receipts:   receipts,
		ocr:        ocr,
		dispatcher: dispatcher,
		maxUpload:  maxUpload,
		logger:     logger,
	}
}

// Upload godoc
// @Summary Upload a receipt
// @Description Stores a jpeg, png or webp receipt image for the caller with status uploaded.
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Receipt image"
// @Param date formData string true "Purchase date YYYY-MM-DD"
// @Param total formData string true "Receipt total"
// @Param ocr_text formData string false "Raw OCR text used to prefill optional fields"
// @Security Bearer
// @Success 201 {object} dto.ReceiptResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 413 {object} map[string]string
// @Router /api/v1/receipts [post]
func (h *ReceiptHandler) Upload(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.UploadReceiptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid form")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "File is required")
	}
	if h.maxUpload > 0 && file.Size > h.maxUpload {
		return respondError(c, h.logger, service.ErrFileTooLarge, "Upload failed")
	}

	src, err := file.Open()
	if err != nil {
		return badRequest(c, "Failed to open file")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return badRequest(c, "Failed to read file")
	}

	res, err := h.receipts.Upload(c.UserContext(), actor, req, data)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to upload receipt")
	}
	h.dispatcher.Go(res.Effects...)

	return c.Status(fiber.StatusCreated).JSON(res.Receipt)
}

// List godoc
// @Summary List receipts
// @Description Officers always get their own receipts. Managers may filter by user_id.
// @Tags receipts
// @Produce json
// @Param user_id query string false "Officer id (managers only)"
// @Param status query []string false "Status filter"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param amount_min query string false "Minimum total"
// @Param amount_max query string false "Maximum total"
// @Param limit query int false "Page size, default 100, max 1000"
// @Param offset query int false "Offset"
// @Security Bearer
// @Success 200 {object} dto.ReceiptListResponse
// @Router /api/v1/receipts [get]
func (h *ReceiptHandler) List(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}

	var q dto.ReceiptListQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "Invalid query")
	}

	resp, err := h.receipts.List(c.UserContext(), actor, q)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list receipts")
	}
	return c.JSON(resp)
}

// OCR godoc
// @Summary Draft receipt fields from OCR text
// @Description The draft is advisory and is never used for matching.
// @Tags receipts
// @Accept json
// @Produce json
// @Param request body dto.OCRRequest true "Recognised text"
// @Security Bearer
// @Success 200 {object} dto.ReceiptDraft
// @Failure 502 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/receipts/ocr [post]
func (h *ReceiptHandler) OCR(c *fiber.Ctx) error {
	var req dto.OCRRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if fields := dto.Validate(&req); fields != nil {
		return respondError(c, h.logger, &service.FieldError{Fields: fields}, "Invalid request")
	}

	draft, err := h.ocr.Draft(c.UserContext(), req.Text)
	if err != nil {
		return respondError(c, h.logger, err, "OCR draft failed")
	}
	return c.JSON(draft)
}
