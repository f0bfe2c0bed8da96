package handlers

import (
	"time"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reports *service.ReportService
	exports *service.ExportService
	logger  *zap.Logger
}

func NewReportHandler(reports *service.ReportService, exports *service.ExportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports, logger: logger}
}

// filter parses date_from, date_to and user_id. Dates default to the last 30 days.
func (h *ReportHandler) filter(c *fiber.Ctx) (service.ReportFilter, error) {
	var q dto.RangeQuery
	if err := c.QueryParser(&q); err != nil {
		return service.ReportFilter{}, &service.FieldError{Fields: map[string]string{"query": "invalid"}}
	}
	if fields := dto.Validate(&q); fields != nil {
		return service.ReportFilter{}, &service.FieldError{Fields: fields}
	}

	var f service.ReportFilter
	if q.DateFrom != "" {
		f.From, _ = models.ParseDate(q.DateFrom)
	}
	if q.DateTo != "" {
		f.To, _ = models.ParseDate(q.DateTo)
	}
	if q.UserID != "" {
		id := uuid.MustParse(q.UserID)
		f.UserID = &id
	}
	return f.Normalize(), nil
}

// Daily godoc
// @Summary Daily reconciliation series
// @Tags reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {array} service.DailyRow
// @Router /api/v1/reports/daily [get]
func (h *ReportHandler) Daily(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	rows, err := h.reports.Daily(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to build daily report")
	}
	return c.JSON(rows)
}

// Anomalies godoc
// @Summary Days with unusual spend or deficit
// @Tags reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {array} service.Anomaly
// @Router /api/v1/reports/anomalies [get]
func (h *ReportHandler) Anomalies(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	out, err := h.reports.Anomalies(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to score anomalies")
	}
	return c.JSON(out)
}

// Summary godoc
// @Summary Totals for the window
// @Tags reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {object} service.Summary
// @Router /api/v1/reports/summary [get]
func (h *ReportHandler) Summary(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	out, err := h.reports.Summary(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to build summary")
	}
	return c.JSON(out)
}

// Leaderboard godoc
// @Summary Officers ranked by missing receipts
// @Tags reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Security Bearer
// @Success 200 {array} service.LeaderboardEntry
// @Router /api/v1/reports/leaderboard [get]
func (h *ReportHandler) Leaderboard(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	out, err := h.reports.Leaderboard(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to build leaderboard")
	}
	return c.JSON(out)
}

// Merchants godoc
// @Summary Top merchants by card spend
// @Tags reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {array} service.MerchantTotal
// @Router /api/v1/reports/merchants [get]
func (h *ReportHandler) Merchants(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	out, err := h.reports.Merchants(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to rank merchants")
	}
	return c.JSON(out)
}

// Tasks godoc
// @Summary Caller's dates that still need receipts
// @Tags reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Security Bearer
// @Success 200 {array} service.Task
// @Router /api/v1/reports/tasks [get]
func (h *ReportHandler) Tasks(c *fiber.Ctx) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	out, err := h.reports.Tasks(c.UserContext(), actor.UserID, f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load tasks")
	}
	return c.JSON(out)
}

// Transactions godoc
// @Summary List card transactions
// @Tags reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {array} dto.TransactionResponse
// @Router /api/v1/transactions [get]
func (h *ReportHandler) Transactions(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	txs, err := h.reports.Transactions(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list transactions")
	}
	out := make([]dto.TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, service.ToTransactionResponse(tx))
	}
	return c.JSON(out)
}

func exportName(f service.ReportFilter, ext string) string {
	return "daily_" + f.From.Format("20060102") + "_" + f.To.Format("20060102") + "." + ext
}

// ExportXLSX godoc
// @Summary Daily series as a spreadsheet
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {file} file
// @Router /api/v1/reports/export.xlsx [get]
func (h *ReportHandler) ExportXLSX(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	data, err := h.exports.DailyXLSX(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to export")
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Attachment(exportName(f, "xlsx"))
	return c.Send(data)
}

// ExportCSV godoc
// @Summary Daily series as CSV
// @Tags reports
// @Produce text/csv
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param user_id query string false "Officer id"
// @Security Bearer
// @Success 200 {file} file
// @Router /api/v1/reports/export.csv [get]
func (h *ReportHandler) ExportCSV(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return respondError(c, h.logger, err, "Invalid query")
	}
	data, err := h.exports.DailyCSV(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to export")
	}
	c.Attachment(exportName(f, "csv"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderLastModified, time.Now().UTC().Format(time.RFC1123))
	return c.Send(data)
}
