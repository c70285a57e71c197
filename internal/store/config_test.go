package store

import (
	"os"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != 8787 {
		t.Errorf("Expected default port 8787, got %d", cfg.Port)
	}
	if cfg.Paper.Timeframe != "5m" {
		t.Errorf("Expected default timeframe 5m, got %s", cfg.Paper.Timeframe)
	}
	if cfg.Paper.Factor != "smart" {
		t.Errorf("Expected default factor smart, got %s", cfg.Paper.Factor)
	}
	if cfg.Entry.JackpotMinConfirmation != 3 {
		t.Errorf("Expected jackpot min confirmation 3, got %d", cfg.Entry.JackpotMinConfirmation)
	}
	if cfg.Entry.JackpotMinRR != 2.2 {
		t.Errorf("Expected jackpot min RR 2.2, got %f", cfg.Entry.JackpotMinRR)
	}
	if cfg.LiveEnabled() {
		t.Error("Live trading must be off by default")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	os.Setenv("PAPER_TF", "15m")
	os.Setenv("MIN_CONFIRMATION", "4")
	os.Setenv("PAPER_CYCLE_MS", "100")
	defer func() {
		os.Unsetenv("PAPER_TF")
		os.Unsetenv("MIN_CONFIRMATION")
		os.Unsetenv("PAPER_CYCLE_MS")
	}()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Paper.Timeframe != "15m" {
		t.Errorf("Expected timeframe 15m, got %s", cfg.Paper.Timeframe)
	}
	if cfg.Entry.MinConfirmation != 4 {
		t.Errorf("Expected min confirmation 4, got %d", cfg.Entry.MinConfirmation)
	}
	// Jackpot confirmation floors at max(MIN_CONFIRMATION, 3).
	if cfg.Entry.JackpotMinConfirmation != 4 {
		t.Errorf("Expected jackpot min confirmation 4, got %d", cfg.Entry.JackpotMinConfirmation)
	}
	// Cycle interval clamps to the 500ms floor.
	if cfg.Paper.CycleMs != 500 {
		t.Errorf("Expected cycle ms clamped to 500, got %d", cfg.Paper.CycleMs)
	}
}

func TestLoadConfigRejectsBadEnums(t *testing.T) {
	os.Setenv("PAPER_TF", "2m")
	defer os.Unsetenv("PAPER_TF")

	if _, err := LoadConfig(""); err == nil {
		t.Error("Expected error for invalid timeframe")
	}
}

func TestLiveEnabledNeedsBothSwitches(t *testing.T) {
	os.Setenv("TRADE_MODE", "live")
	defer os.Unsetenv("TRADE_MODE")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LiveEnabled() {
		t.Error("TRADE_MODE=live alone must not arm live trading")
	}

	os.Setenv("ENABLE_LIVE_TRADING", "1")
	defer os.Unsetenv("ENABLE_LIVE_TRADING")
	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.LiveEnabled() {
		t.Error("TRADE_MODE=live + ENABLE_LIVE_TRADING=1 should arm live trading")
	}
}
