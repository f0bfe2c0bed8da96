package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or any longer timestamp and keeps only the
// calendar date, in UTC.
func ParseDate(s string) (time.Time, error) {
	if len(s) < len(DateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	d, err := time.Parse(DateLayout, s[:len(DateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// TruncateDate drops the clock part while keeping the calendar date as written.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func SameDate(a, b time.Time) bool {
	return FormatDate(a) == FormatDate(b)
}

// DayKey identifies one officer's calendar day.
type DayKey struct {
	UserID uuid.UUID
	Date   string
}

func NewDayKey(userID uuid.UUID, date time.Time) DayKey {
	return DayKey{UserID: userID, Date: FormatDate(date)}
}
