package dto

type SweepQuery struct {
	RangeDays  int    `query:"range_days" validate:"omitempty,min=1,max=366"`
	TolDollars string `query:"amount_tol_dollars" validate:"omitempty,numeric"`
	TolPercent string `query:"amount_tol_percent" validate:"omitempty,numeric"`
}

type LegacyQuery struct {
	RangeDays int    `query:"range_days" validate:"omitempty,min=1,max=366"`
	Tolerance string `query:"amount_tolerance" validate:"omitempty,numeric"`
}

type ResolveMissingRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type LinkReceiptRequest struct {
	ReceiptID string `json:"receipt_id" validate:"required,uuid"`
}

type LinkTransactionRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid"`
}

type ResolutionResponse struct {
	OK       bool     `json:"ok"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

type CandidatesResponse struct {
	Receipt      ReceiptResponse       `json:"receipt"`
	Receipts     []ReceiptResponse     `json:"receipts"`
	Transactions []TransactionResponse `json:"transactions"`
}

type PendingResponse struct {
	Items []CandidatesResponse `json:"items"`
	Count int                  `json:"count"`
}

// RangeQuery is shared by the transaction listing and every report.
type RangeQuery struct {
	DateFrom string `query:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `query:"date_to" validate:"omitempty,datetime=2006-01-02"`
	UserID   string `query:"user_id" validate:"omitempty,uuid"`
}
