package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		level, format string
		want          zapcore.Level
	}{
		{"debug", "json", zapcore.DebugLevel},
		{"warn", "console", zapcore.WarnLevel},
		{"", "", zapcore.InfoLevel},
		{"loud", "json", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		l, err := build(tt.level, tt.format)
		if err != nil {
			t.Fatalf("build(%q, %q): %v", tt.level, tt.format, err)
		}
		if !l.Core().Enabled(tt.want) || (tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1)) {
			t.Errorf("build(%q) level mismatch, want %v", tt.level, tt.want)
		}
	}
}
