package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-05-01", "2024-05-01", false},
		{"2024-05-01T23:59:59-07:00", "2024-05-01", false},
		{"2024-05-01 08:00", "2024-05-01", false},
		{"2024-5-1", "", true},
		{"", "", true},
		{"yesterday!", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && FormatDate(got) != tt.want {
				t.Errorf("got %s, want %s", FormatDate(got), tt.want)
			}
		})
	}
}

func TestReceiptPlaceholder(t *testing.T) {
	img := "u/x.jpg"
	empty := ""
	tests := []struct {
		name string
		r    Receipt
		want bool
	}{
		{"pending without image", Receipt{Status: StatusPendingReview}, true},
		{"missing without image", Receipt{Status: StatusMissing, ImageURL: &empty}, true},
		{"pending with image", Receipt{Status: StatusPendingReview, ImageURL: &img}, false},
		{"uploaded without image", Receipt{Status: StatusUploaded}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.IsPlaceholder(); got != tt.want {
				t.Errorf("IsPlaceholder = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDayKeyIgnoresClock(t *testing.T) {
	u := uuid.New()
	a := NewDayKey(u, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	b := NewDayKey(u, time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC))
	if a != b {
		t.Errorf("%v != %v", a, b)
	}
}
