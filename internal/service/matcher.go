package service

import (
	"context"
	"fmt"
	"time"

	"grts/internal/models"
	"grts/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ChangeKind string

const (
	ChangePlaceholderCreated ChangeKind = "placeholder_created"
	ChangeReceiptLinked      ChangeKind = "receipt_linked"
	ChangeReceiptFlagged     ChangeKind = "receipt_flagged"
	ChangeAmbiguous          ChangeKind = "ambiguous_match"
	ChangeMissingFlagged     ChangeKind = "missing_flagged"
)

// Change is one write (or, for ambiguous matches, one deferred decision) made
// by reconciliation.
type Change struct {
	Kind          ChangeKind      `json:"kind"`
	UserID        uuid.UUID       `json:"user_id"`
	Date          string          `json:"date"`
	ReceiptID     *uuid.UUID      `json:"receipt_id,omitempty"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	ExternalID    string          `json:"external_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Candidates    int             `json:"candidates,omitempty"`
	Superseded    int64           `json:"superseded,omitempty"`
}

// Matcher decides, for one officer's day, whether a transaction has a receipt
// and whether a receipt has a transaction.
type Matcher struct {
	receipts     repository.ReceiptStore
	transactions repository.TransactionStore
	resolutions  repository.ResolutionStore
	logger       *zap.Logger
}

func NewMatcher(
	receipts repository.ReceiptStore,
	transactions repository.TransactionStore,
	resolutions repository.ResolutionStore,
	logger *zap.Logger,
) *Matcher {
	return &Matcher{
		receipts:     receipts,
		transactions: transactions,
		resolutions:  resolutions,
		logger:       logger,
	}
}

func (m *Matcher) dayReceipts(ctx context.Context, userID uuid.UUID, date time.Time) ([]*models.Receipt, error) {
	date = models.TruncateDate(date)
	return m.receipts.List(ctx, repository.ReceiptFilter{UserID: &userID, DateFrom: &date, DateTo: &date})
}

// ForwardCheck looks for a receipt backing tx. It links a single unambiguous
// candidate, or creates one pending_review placeholder when nothing matches.
// It returns nil when nothing changed.
func (m *Matcher) ForwardCheck(ctx context.Context, tx *models.Transaction, tol Tolerance) (*Change, error) {
	if !tx.Mapped() {
		return nil, nil
	}
	userID := *tx.UserID
	day := models.NewDayKey(userID, tx.TransactedAt)

	receipts, err := m.dayReceipts(ctx, userID, tx.TransactedAt)
	if err != nil {
		return nil, fmt.Errorf("list receipts for %s: %w", tx.ExternalID, err)
	}

	var (
		tracked    bool
		candidates []*models.Receipt
	)
	for _, r := range receipts {
		if r.LinkedTo(tx.ID) {
			if !r.IsPlaceholder() {
				return nil, nil
			}
			tracked = true
			continue
		}
		if r.IsPlaceholder() || r.Status == models.StatusMissing || r.Linked() {
			continue
		}
		if tol.Satisfies(r.Total, tx.Amount) {
			candidates = append(candidates, r)
		}
	}

	switch {
	case len(candidates) == 1:
		return m.link(ctx, tx, candidates[0], tracked)
	case len(candidates) > 1:
		m.logger.Debug("Ambiguous receipt match, deferring to manager",
			zap.String("external_id", tx.ExternalID),
			zap.Int("candidates", len(candidates)),
		)
		return &Change{
			Kind:          ChangeAmbiguous,
			UserID:        userID,
			Date:          day.Date,
			TransactionID: &tx.ID,
			ExternalID:    tx.ExternalID,
			Amount:        tx.Amount,
			Candidates:    len(candidates),
		}, nil
	}

	if tracked || tx.Dismissed() {
		return nil, nil
	}

	resolved, err := m.resolutions.Exists(ctx, userID, tx.TransactedAt)
	if err != nil {
		return nil, fmt.Errorf("check resolution for %s: %w", tx.ExternalID, err)
	}
	if resolved {
		return nil, nil
	}

	return m.createPlaceholder(ctx, tx, tol)
}

func (m *Matcher) link(ctx context.Context, tx *models.Transaction, r *models.Receipt, tracked bool) (*Change, error) {
	if err := m.receipts.Update(ctx, r.ID, repository.ReceiptPatch{WexID: &tx.ID}); err != nil {
		return nil, fmt.Errorf("link receipt %s to %s: %w", r.ID, tx.ExternalID, err)
	}

	change := &Change{
		Kind:          ChangeReceiptLinked,
		UserID:        r.UserID,
		Date:          models.FormatDate(r.Date),
		ReceiptID:     &r.ID,
		TransactionID: &tx.ID,
		ExternalID:    tx.ExternalID,
		Amount:        tx.Amount,
	}

	// A real receipt arrived after the placeholder was created.
	if tracked {
		n, err := m.receipts.DeletePendingForTransaction(ctx, tx.ID, r.ID)
		if err != nil {
			m.logger.Warn("Failed to remove superseded placeholder",
				zap.String("external_id", tx.ExternalID),
				zap.Error(err),
			)
		}
		change.Superseded = n
	}
	return change, nil
}

func (m *Matcher) createPlaceholder(ctx context.Context, tx *models.Transaction, tol Tolerance) (*Change, error) {
	reason := fmt.Sprintf("No receipt within $%s of WEX transaction %s ($%s at %s)",
		tol.Allowed(tx.Amount).StringFixed(2), tx.ExternalID, tx.Amount.StringFixed(2), merchantOrUnknown(tx.Merchant))

	placeholder := &models.Receipt{
		UserID:      *tx.UserID,
		Date:        tx.TransactedAt,
		Total:       tx.Amount.Abs(),
		Status:      models.StatusPendingReview,
		WexID:       &tx.ID,
		ReconReason: &reason,
	}

	created, err := m.receipts.CreatePlaceholder(ctx, placeholder)
	if err != nil {
		return nil, fmt.Errorf("create placeholder for %s: %w", tx.ExternalID, err)
	}
	if !created {
		return nil, nil
	}

	return &Change{
		Kind:          ChangePlaceholderCreated,
		UserID:        placeholder.UserID,
		Date:          models.FormatDate(placeholder.Date),
		ReceiptID:     &placeholder.ID,
		TransactionID: &tx.ID,
		ExternalID:    tx.ExternalID,
		Amount:        tx.Amount,
	}, nil
}

// Eligible reports whether r takes part in the reverse check.
func Eligible(r *models.Receipt) bool {
	return r.Status != models.StatusPendingReview &&
		r.Status != models.StatusMissing &&
		!r.Linked()
}

// ReverseCheck demotes r to pending_review when no transaction on the same
// officer day is within tolerance. It returns nil when nothing changed.
func (m *Matcher) ReverseCheck(ctx context.Context, r *models.Receipt, tol Tolerance) (*Change, error) {
	if !Eligible(r) {
		return nil, nil
	}

	date := models.TruncateDate(r.Date)
	txs, err := m.transactions.List(ctx, repository.TransactionFilter{UserID: &r.UserID, DateFrom: &date, DateTo: &date})
	if err != nil {
		return nil, fmt.Errorf("list transactions for receipt %s: %w", r.ID, err)
	}
	for _, tx := range txs {
		if tol.Satisfies(r.Total, tx.Amount) {
			return nil, nil
		}
	}

	status := models.StatusPendingReview
	reason := fmt.Sprintf("No WEX transaction within tolerance of $%s on %s", r.Total.StringFixed(2), models.FormatDate(r.Date))
	if len(txs) == 0 {
		reason = fmt.Sprintf("No WEX transaction found for $%s on %s", r.Total.StringFixed(2), models.FormatDate(r.Date))
	}

	if err := m.receipts.Update(ctx, r.ID, repository.ReceiptPatch{Status: &status, ReconReason: &reason}); err != nil {
		return nil, fmt.Errorf("flag receipt %s: %w", r.ID, err)
	}

	return &Change{
		Kind:      ChangeReceiptFlagged,
		UserID:    r.UserID,
		Date:      models.FormatDate(r.Date),
		ReceiptID: &r.ID,
		Amount:    r.Total,
	}, nil
}

func merchantOrUnknown(merchant string) string {
	if merchant == "" {
		return "unknown merchant"
	}
	return merchant
}
