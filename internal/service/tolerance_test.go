package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestToleranceSatisfies(t *testing.T) {
	tol := DefaultTolerance()

	tests := []struct {
		amount string
		total  string
		want   bool
	}{
		{"100.00", "95.00", true},
		{"100.00", "94.00", false},
		{"100.00", "105.00", true},
		{"100.00", "105.01", false},
		{"10.00", "9.00", true},
		{"10.00", "8.50", false},
		{"10.00", "11.00", true},
		{"40.00", "40.50", true},
		{"0.00", "1.00", true},
		{"-20.00", "-21.00", true},
		{"-100.00", "-94.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.amount+"~"+tt.total, func(t *testing.T) {
			if got := tol.Satisfies(d(tt.total), d(tt.amount)); got != tt.want {
				t.Errorf("Satisfies(%s, %s) = %v, want %v", tt.total, tt.amount, got, tt.want)
			}
		})
	}
}

func TestToleranceAllowed(t *testing.T) {
	tol := DefaultTolerance()
	if got := tol.Allowed(d("100")); !got.Equal(d("5")) {
		t.Errorf("Allowed(100) = %s, want 5", got)
	}
	if got := tol.Allowed(d("10")); !got.Equal(d("1")) {
		t.Errorf("Allowed(10) = %s, want 1", got)
	}
}

func TestFlatTolerance(t *testing.T) {
	tol := FlatTolerance(d("0.02"))
	if !tol.Satisfies(d("40.02"), d("40.00")) {
		t.Error("40.02 should match 40.00")
	}
	if tol.Satisfies(d("40.03"), d("40.00")) {
		t.Error("40.03 should not match 40.00")
	}
}

func TestToleranceOverrides(t *testing.T) {
	dollars := d("2")
	tol := DefaultTolerance().WithOverrides(&dollars, nil)
	if !tol.Dollars.Equal(dollars) || !tol.Percent.Equal(d("5")) {
		t.Errorf("got %+v", tol)
	}
}

func TestToleranceValidate(t *testing.T) {
	tests := []struct {
		name    string
		tol     Tolerance
		invalid []string
	}{
		{"default", DefaultTolerance(), nil},
		{"zero", Tolerance{}, nil},
		{"negative dollars", Tolerance{Dollars: d("-1"), Percent: d("5")}, []string{"amount_tol_dollars"}},
		{"negative percent", Tolerance{Dollars: d("1"), Percent: d("-0.5")}, []string{"amount_tol_percent"}},
		{"both", Tolerance{Dollars: d("-1"), Percent: d("-1")}, []string{"amount_tol_dollars", "amount_tol_percent"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tol.Validate()
			if len(tt.invalid) == 0 {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FieldError", err)
			}
			for _, field := range tt.invalid {
				if _, ok := fe.Fields[field]; !ok {
					t.Errorf("fields = %v, missing %s", fe.Fields, field)
				}
			}
		})
	}
}
