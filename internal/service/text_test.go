package service

import "testing"

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Shell #1234 ", "Shell #1234"},
		{"Caf\xc3\xa9", "Café"},
		{"SHELL\xff\xfe OIL", "SHELL OIL"},
		{"\xff", ""},
	}
	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
