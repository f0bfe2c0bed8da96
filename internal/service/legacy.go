package service

import (
	"context"
	"fmt"
	"time"

	"grts/internal/models"
	"grts/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LegacyResult struct {
	MissingFor string `json:"missing_for"`
	ReceiptID  string `json:"receipt_id"`
}

type LegacySummary struct {
	MissingFlagged int            `json:"missing_flagged"`
	Results        []LegacyResult `json:"results"`
	Effects        []SideEffect   `json:"-"`
}

// FlagMissingLegacy is the deprecated one-directional check: any receipt on
// the same day within a flat tolerance counts, otherwise a terminal missing
// row is written and the officer is emailed. Prefer Run.
func (s *SweepService) FlagMissingLegacy(ctx context.Context, rangeDays int, tolerance *decimal.Decimal) (*LegacySummary, error) {
	if rangeDays <= 0 {
		rangeDays = s.cfg.RangeDays
	}
	flat := s.cfg.LegacyTolerance
	if tolerance != nil {
		flat = *tolerance
	}
	if flat.IsNegative() {
		return nil, &FieldError{Fields: map[string]string{"amount_tolerance": "gte=0"}}
	}
	tol := FlatTolerance(flat)
	since := models.TruncateDate(time.Now().UTC()).AddDate(0, 0, -rangeDays)

	txs, err := s.transactions.List(ctx, repository.TransactionFilter{OnlyMapped: true, DateFrom: &since})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	summary := &LegacySummary{Results: []LegacyResult{}}
	for _, tx := range txs {
		userID := *tx.UserID
		date := models.TruncateDate(tx.TransactedAt)
		low, high := tx.Amount.Sub(flat), tx.Amount.Add(flat)

		existing, err := s.receipts.List(ctx, repository.ReceiptFilter{
			UserID:    &userID,
			DateFrom:  &date,
			DateTo:    &date,
			AmountMin: &low,
			AmountMax: &high,
		})
		if err != nil {
			s.logger.Warn("Legacy check skipped transaction", zap.String("external_id", tx.ExternalID), zap.Error(err))
			continue
		}
		if len(existing) > 0 {
			continue
		}

		reason := fmt.Sprintf("No receipt within $%s of WEX transaction %s", tol.Allowed(tx.Amount).StringFixed(2), tx.ExternalID)
		row := &models.Receipt{
			UserID:      userID,
			Date:        date,
			Total:       tx.Amount,
			Status:      models.StatusMissing,
			WexID:       &tx.ID,
			ReconReason: &reason,
		}
		if err := s.receipts.Create(ctx, row); err != nil {
			s.logger.Warn("Legacy check failed to insert missing row", zap.String("external_id", tx.ExternalID), zap.Error(err))
			continue
		}

		summary.Results = append(summary.Results, LegacyResult{MissingFor: tx.ExternalID, ReceiptID: row.ID.String()})
		change := Change{
			Kind:          ChangeMissingFlagged,
			UserID:        userID,
			Date:          models.FormatDate(date),
			ReceiptID:     &row.ID,
			TransactionID: &tx.ID,
			ExternalID:    tx.ExternalID,
			Amount:        tx.Amount,
		}
		summary.Effects = append(summary.Effects,
			eventEffect(s.publisher, Event{Type: string(change.Kind), Change: &change}),
			s.legacyEmail(tx),
		)
	}
	summary.MissingFlagged = len(summary.Results)

	s.logger.Info("Legacy missing-receipt check completed",
		zap.Int("transactions", len(txs)),
		zap.Int("missing_flagged", summary.MissingFlagged),
		zap.String("tolerance", flat.String()),
	)
	return summary, nil
}

func (s *SweepService) legacyEmail(tx *models.Transaction) SideEffect {
	return SideEffect{
		Name: "email:missing-receipt",
		Run: func(ctx context.Context) error {
			user, err := s.users.GetByID(ctx, *tx.UserID)
			if err != nil {
				return fmt.Errorf("lookup officer %s: %w", *tx.UserID, err)
			}
			return s.notifier.Send(ctx, Email{
				To:      user.Email,
				Subject: "Missing Gas Receipt",
				Text: fmt.Sprintf("Hello %s,\n\nWe detected a fuel transaction on %s for $%s (%s) without a matching receipt. Please upload a receipt in GRTS.",
					user.Name, models.FormatDate(tx.TransactedAt), tx.Amount.StringFixed(2), merchantOrUnknown(tx.Merchant)),
			})
		},
	}
}
