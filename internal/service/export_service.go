package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const dailySheet = "Daily"

var dailyHeaders = []string{"Date", "Spend", "Receipts", "Missing", "WEX Transactions", "Deficit", "Resolved"}

// ExportService renders the daily report series as spreadsheets.
type ExportService struct {
	reports *ReportService
	logger  *zap.Logger
}

func NewExportService(reports *ReportService, logger *zap.Logger) *ExportService {
	return &ExportService{reports: reports, logger: logger}
}

func dailyRecord(r DailyRow) []string {
	return []string{
		r.Date,
		r.Spend.StringFixed(2),
		strconv.Itoa(r.Receipts),
		strconv.Itoa(r.Missing),
		strconv.Itoa(r.Transactions),
		strconv.Itoa(r.Deficit),
		strconv.Itoa(r.Resolved),
	}
}

func (s *ExportService) DailyXLSX(ctx context.Context, f ReportFilter) ([]byte, error) {
	start := time.Now()

	rows, err := s.reports.Daily(ctx, f)
	if err != nil {
		return nil, err
	}

	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", dailySheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	for i, h := range dailyHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = book.SetCellValue(dailySheet, cell, h)
	}

	for i, r := range rows {
		line := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, line)
			_ = book.SetCellValue(dailySheet, cell, v)
		}
		write(1, r.Date)
		write(2, r.Spend.InexactFloat64())
		write(3, r.Receipts)
		write(4, r.Missing)
		write(5, r.Transactions)
		write(6, r.Deficit)
		write(7, r.Resolved)
	}

	_ = book.SetColWidth(dailySheet, "A", "A", 14)
	_ = book.SetColWidth(dailySheet, "B", "G", 16)

	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("Daily report exported",
		zap.String("format", "xlsx"),
		zap.Int("rows", len(rows)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return buf.Bytes(), nil
}

func (s *ExportService) DailyCSV(ctx context.Context, f ReportFilter) ([]byte, error) {
	rows, err := s.reports.Daily(ctx, f)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(dailyHeaders); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(dailyRecord(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}

	s.logger.Info("Daily report exported", zap.String("format", "csv"), zap.Int("rows", len(rows)))
	return buf.Bytes(), nil
}
