package service

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Tolerance bounds the gap between a transaction amount and a receipt total.
// The allowed gap is max(Dollars, |amount| * Percent / 100).
type Tolerance struct {
	Dollars decimal.Decimal
	Percent decimal.Decimal
}

func DefaultTolerance() Tolerance {
	return Tolerance{
		Dollars: decimal.NewFromInt(1),
		Percent: decimal.NewFromInt(5),
	}
}

// FlatTolerance is the deprecated fixed-cents rule used by legacy flagging.
func FlatTolerance(dollars decimal.Decimal) Tolerance {
	return Tolerance{Dollars: dollars, Percent: decimal.Zero}
}

func (t Tolerance) Allowed(amount decimal.Decimal) decimal.Decimal {
	relative := amount.Abs().Mul(t.Percent).Div(hundred)
	return decimal.Max(t.Dollars, relative)
}

func (t Tolerance) Satisfies(total, amount decimal.Decimal) bool {
	return total.Sub(amount).Abs().LessThanOrEqual(t.Allowed(amount))
}

// WithOverrides replaces the fields that are set.
func (t Tolerance) WithOverrides(dollars, percent *decimal.Decimal) Tolerance {
	if dollars != nil {
		t.Dollars = *dollars
	}
	if percent != nil {
		t.Percent = *percent
	}
	return t
}

// Validate rejects negative bounds. A negative gap fails every pair, which
// would turn each linked receipt into a review item on the next sweep.
func (t Tolerance) Validate() error {
	fields := map[string]string{}
	if t.Dollars.IsNegative() {
		fields["amount_tol_dollars"] = "gte=0"
	}
	if t.Percent.IsNegative() {
		fields["amount_tol_percent"] = "gte=0"
	}
	if len(fields) > 0 {
		return &FieldError{Fields: fields}
	}
	return nil
}
