package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_NAME", "jobpulse")
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_DRIVER", "sqlite")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.App.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.App.HTTPPort)
	}
	if !cfg.Database.IsSQLite() {
		t.Fatalf("expected sqlite driver")
	}
	if cfg.Crawl.EmptyStreak != 2 || cfg.Crawl.LowYieldThreshold != 3 || cfg.Crawl.MaxPages != 1000 {
		t.Fatalf("unexpected crawl defaults: %+v", cfg.Crawl)
	}
	if cfg.Retention.StaleAfter != 48*time.Hour {
		t.Fatalf("expected 48h stale threshold, got %s", cfg.Retention.StaleAfter)
	}
	if cfg.Validator.ExpiredMarker != "Annoncen er udløbet!" {
		t.Fatalf("unexpected marker %q", cfg.Validator.ExpiredMarker)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("APP_NAME", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	if !errors.Is(err, errMissingRequiredEnv) {
		t.Fatalf("expected errMissingRequiredEnv, got %v", err)
	}
	for _, key := range []string{"APP_NAME", "APP_ENV", "DB_HOST", "DB_NAME"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CRAWL_MAX_PAGES", "lots")
	t.Setenv("RETENTION_STALE_AFTER", "two days")
	t.Setenv("DETAIL_URL_TEMPLATE", "https://example.com/job")
	t.Setenv("VALIDATOR_RATE", "-1")

	_, err := Load()
	if !errors.Is(err, errInvalidEnv) {
		t.Fatalf("expected errInvalidEnv, got %v", err)
	}
	for _, key := range []string{"CRAWL_MAX_PAGES", "RETENTION_STALE_AFTER", "DETAIL_URL_TEMPLATE", "VALIDATOR_RATE"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CRAWL_EMPTY_STREAK", "4")
	t.Setenv("CRAWL_USE_BROWSER", "true")
	t.Setenv("RETENTION_STALE_AFTER", "24h")
	t.Setenv("SCHEDULE_SWEEP", "@hourly")
	t.Setenv("VALIDATOR_RATE", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Crawl.EmptyStreak != 4 || !cfg.Crawl.UseBrowser {
		t.Fatalf("unexpected crawl config: %+v", cfg.Crawl)
	}
	if cfg.Retention.StaleAfter != 24*time.Hour {
		t.Fatalf("unexpected stale threshold %s", cfg.Retention.StaleAfter)
	}
	if cfg.Schedule.Sweep != "@hourly" {
		t.Fatalf("unexpected sweep spec %q", cfg.Schedule.Sweep)
	}
	if cfg.Validator.Rate != 0.5 {
		t.Fatalf("unexpected validator rate %v", cfg.Validator.Rate)
	}
}
