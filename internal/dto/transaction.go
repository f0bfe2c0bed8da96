package dto

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// FlexString accepts a JSON string or number. Card networks are not
// consistent about the type of transaction ids.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// WexTransaction is one item from the WEX API or a webhook body.
type WexTransaction struct {
	ID        FlexString       `json:"id" validate:"required"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
	Date      string           `json:"date" validate:"required,min=10"`
	CardLast4 FlexString       `json:"card_last4"`
	Merchant  string           `json:"merchant"`
	UserID    string           `json:"user_id,omitempty" validate:"omitempty,uuid"`
}

type WebhookResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// PollResponse reports items upserted before the poll stopped. Error is set
// when a later item failed.
type PollResponse struct {
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

type TransactionResponse struct {
	ID           string          `json:"id"`
	ExternalID   string          `json:"external_id"`
	UserID       *string         `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	TransactedAt string          `json:"transacted_at"`
	Merchant     string          `json:"merchant"`
	CardLast4    string          `json:"card_last4"`
	Dismissed    bool            `json:"dismissed,omitempty"`
}
