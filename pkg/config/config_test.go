package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RECON_RANGE_DAYS", "")
	t.Setenv("RECON_AMOUNT_TOL_DOLLARS", "")
	t.Setenv("RECON_AMOUNT_TOL_PERCENT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Reconcile.RangeDays != 30 {
		t.Errorf("RangeDays = %d, want 30", cfg.Reconcile.RangeDays)
	}
	if !cfg.Reconcile.TolDollars.Equal(decimal.NewFromInt(1)) {
		t.Errorf("TolDollars = %s, want 1", cfg.Reconcile.TolDollars)
	}
	if !cfg.Reconcile.TolPercent.Equal(decimal.NewFromInt(5)) {
		t.Errorf("TolPercent = %s, want 5", cfg.Reconcile.TolPercent)
	}
	if !cfg.Reconcile.LegacyTolerance.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("LegacyTolerance = %s, want 0.02", cfg.Reconcile.LegacyTolerance)
	}
	if cfg.Storage.SignedURLTTL != time.Hour {
		t.Errorf("SignedURLTTL = %s, want 1h", cfg.Storage.SignedURLTTL)
	}
	if cfg.Storage.MaxUpload != 10*1024*1024 {
		t.Errorf("MaxUpload = %d, want 10MB", cfg.Storage.MaxUpload)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECON_AMOUNT_TOL_DOLLARS", "2.50")
	t.Setenv("RECON_AMOUNT_TOL_PERCENT", "not-a-number")
	t.Setenv("RECON_INTERVAL", "1m")
	t.Setenv("WEX_POLL_DAYS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Reconcile.TolDollars.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("TolDollars = %s, want 2.5", cfg.Reconcile.TolDollars)
	}
	// malformed values fall back to the default
	if !cfg.Reconcile.TolPercent.Equal(decimal.NewFromInt(5)) {
		t.Errorf("TolPercent = %s, want 5", cfg.Reconcile.TolPercent)
	}
	if cfg.Reconcile.Interval != time.Minute {
		t.Errorf("Interval = %s, want 1m", cfg.Reconcile.Interval)
	}
	if cfg.WEX.PollDays != 3 {
		t.Errorf("PollDays = %d, want 3", cfg.WEX.PollDays)
	}
}
