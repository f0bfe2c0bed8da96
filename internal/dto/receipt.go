package dto

import (
	"github.com/shopspring/decimal"
)

// UploadReceiptRequest holds the multipart form fields sent with a receipt image.
type UploadReceiptRequest struct {
	Date           string `form:"date" validate:"required,datetime=2006-01-02"`
	Total          string `form:"total" validate:"required,numeric"`
	Time           string `form:"time" validate:"omitempty,max=8"`
	Gallons        string `form:"gallons" validate:"omitempty,numeric"`
	PricePerGallon string `form:"price_per_gallon" validate:"omitempty,numeric"`
	FuelGrade      string `form:"fuel_grade" validate:"omitempty,max=40"`
	Station        string `form:"station" validate:"omitempty,max=200"`
	PaymentMethod  string `form:"payment_method" validate:"omitempty,max=40"`
	CardLast4      string `form:"card_last4" validate:"omitempty,len=4,numeric"`
	OCRConfidence  string `form:"ocr_confidence" validate:"omitempty,numeric"`
	OCRText        string `form:"ocr_text" validate:"omitempty,max=20000"`
}

type ReceiptListQuery struct {
	UserID    string   `query:"user_id" validate:"omitempty,uuid"`
	Status    []string `query:"status" validate:"dive,oneof=uploaded verified missing pending_review"`
	DateFrom  string   `query:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo    string   `query:"date_to" validate:"omitempty,datetime=2006-01-02"`
	AmountMin string   `query:"amount_min" validate:"omitempty,numeric"`
	AmountMax string   `query:"amount_max" validate:"omitempty,numeric"`
	Limit     int      `query:"limit" validate:"omitempty,min=1,max=1000"`
	Offset    int      `query:"offset" validate:"omitempty,min=0"`
}

type ReceiptResponse struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Date           string           `json:"date"`
	Total          decimal.Decimal  `json:"total"`
	Status         string           `json:"status"`
	ImageURL       *string          `json:"image_url"`
	SignedURL      string           `json:"signed_url,omitempty"`
	ThumbnailURL   string           `json:"thumbnail_url,omitempty"`
	WexID          *string          `json:"wex_id"`
	ReconReason    *string          `json:"recon_reason,omitempty"`
	Time           *string          `json:"time,omitempty"`
	Gallons        *decimal.Decimal `json:"gallons,omitempty"`
	PricePerGallon *decimal.Decimal `json:"price_per_gallon,omitempty"`
	FuelGrade      *string          `json:"fuel_grade,omitempty"`
	Station        *string          `json:"station,omitempty"`
	PaymentMethod  *string          `json:"payment_method,omitempty"`
	CardLast4      *string          `json:"card_last4,omitempty"`
	OCRConfidence  *float64         `json:"ocr_confidence,omitempty"`
	CreatedAt      string           `json:"created_at"`
}

type ReceiptListResponse struct {
	Receipts []ReceiptResponse `json:"receipts"`
	Count    int               `json:"count"`
}

type OCRRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

// ReceiptDraft is a best-effort parse of receipt text. None of it is trusted
// until the officer submits the receipt.
type ReceiptDraft struct {
	Date           string   `json:"date,omitempty"`
	Time           string   `json:"time,omitempty"`
	Total          *float64 `json:"total,omitempty"`
	Gallons        *float64 `json:"gallons,omitempty"`
	PricePerGallon *float64 `json:"price_per_gallon,omitempty"`
	FuelGrade      string   `json:"fuel_grade,omitempty"`
	Station        string   `json:"station,omitempty"`
	PaymentMethod  string   `json:"payment_method,omitempty"`
	CardLast4      string   `json:"card_last4,omitempty"`
	Confidence     float64  `json:"confidence"`
}
