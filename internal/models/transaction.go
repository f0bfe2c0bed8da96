package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is a fuel-card purchase. ExternalID is the card network's id and
// the dedup key; ID is ours and is what receipts reference through wex_id.
type Transaction struct {
	ID           uuid.UUID       `db:"id"`
	ExternalID   string          `db:"external_id"`
	UserID       *uuid.UUID      `db:"user_id"`
	Amount       decimal.Decimal `db:"amount"`
	TransactedAt time.Time       `db:"transacted_at"`
	Merchant     string          `db:"merchant"`
	CardLast4    string          `db:"card_last4"`
	Raw          json.RawMessage `db:"raw"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
	// DismissedAt is set when a manager discards the transaction's placeholder.
	DismissedAt  *time.Time      `db:"dismissed_at"`
}

// Dismissed reports whether a manager ruled that no receipt is expected.
func (t *Transaction) Dismissed() bool {
	return t.DismissedAt != nil
}

// Mapped reports whether the transaction belongs to a known officer.
func (t *Transaction) Mapped() bool {
	return t.UserID != nil && *t.UserID != uuid.Nil
}
