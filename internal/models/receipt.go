package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReceiptStatus string

const (
	StatusUploaded      ReceiptStatus = "uploaded"
	StatusVerified      ReceiptStatus = "verified"
	StatusMissing       ReceiptStatus = "missing"
	StatusPendingReview ReceiptStatus = "pending_review"
)

func (s ReceiptStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusVerified, StatusMissing, StatusPendingReview:
		return true
	}
	return false
}

type Receipt struct {
	ID          uuid.UUID       `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	Date        time.Time       `db:"date"`
	Total       decimal.Decimal `db:"total"`
	Status      ReceiptStatus   `db:"status"`
	ImageURL    *string         `db:"image_url"`
	WexID       *uuid.UUID      `db:"wex_id"`
	ReconReason *string         `db:"recon_reason"`

	// OCR fields are advisory and never take part in matching.
	Time           *string          `db:"time"`
	Gallons        *decimal.Decimal `db:"gallons"`
	PricePerGallon *decimal.Decimal `db:"price_per_gallon"`
	FuelGrade      *string          `db:"fuel_grade"`
	Station        *string          `db:"station"`
	PaymentMethod  *string          `db:"payment_method"`
	CardLast4      *string          `db:"card_last4"`
	OCRConfidence  *float64         `db:"ocr_confidence"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *Receipt) HasImage() bool {
	return r.ImageURL != nil && *r.ImageURL != ""
}

// IsPlaceholder reports whether the row was generated by reconciliation
// rather than submitted by an officer.
func (r *Receipt) IsPlaceholder() bool {
	return !r.HasImage() && (r.Status == StatusPendingReview || r.Status == StatusMissing)
}

func (r *Receipt) Linked() bool {
	return r.WexID != nil && *r.WexID != uuid.Nil
}

func (r *Receipt) LinkedTo(txID uuid.UUID) bool {
	return r.WexID != nil && *r.WexID == txID
}
