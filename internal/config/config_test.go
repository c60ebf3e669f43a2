package config

import (
	"os"
	"testing"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetEnv(t, "CONFIDENCE_THRESHOLD", "SKIP_SINGLE_UNIT", "WATCH_SOURCE", "MAX_PRICES")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ConfidenceThreshold != 0.95 || !cfg.SkipSingleUnit || cfg.WatchSource != "folder" || cfg.MaxPrices != 10 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("SKIP_SINGLE_UNIT", "off")
	t.Setenv("EXHAUSTIVE_LIMIT", "not-a-number")
	t.Setenv("WATCH_INTERVAL_SEC", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ConfidenceThreshold != 0.9 || cfg.SkipSingleUnit || cfg.ExhaustiveLimit != 500 || cfg.WatchIntervalSec != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsThreshold(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestRequire(t *testing.T) {
	var cfg Config
	if err := cfg.Require("IMAP_HOST", " "); err == nil {
		t.Fatal("expected error for blank value")
	}
	if err := cfg.Require("IMAP_HOST", "mail.example.com"); err != nil {
		t.Fatal(err)
	}
}
