package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/config"
)

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
}

func TestLoadDotEnv_LoadsValuesAndSkipsMissing(t *testing.T) {
	unsetAfter(t, "TS_DOTENV_A", "TS_DOTENV_B", "TS_DOTENV_C")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := []byte(`
# comment

TS_DOTENV_A=one
export TS_DOTENV_B=two
TS_DOTENV_C="three"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for key, want := range map[string]string{"TS_DOTENV_A": "one", "TS_DOTENV_B": "two", "TS_DOTENV_C": "three"} {
		if got := os.Getenv(key); got != want {
			t.Errorf("%s=%q, want %q", key, got, want)
		}
	}
}

func TestLoadDotEnv_DoesNotOverwriteExistingEnv(t *testing.T) {
	t.Setenv("TS_DOTENV_KEEP", "already")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TS_DOTENV_KEEP=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	if err := config.LoadDotEnv(path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := os.Getenv("TS_DOTENV_KEEP"); got != "already" {
		t.Errorf("expected existing value to win, got %q", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetAfter(t, "PORT", "STORE_DRIVER", "AUTH_DISABLED", "FUEL_PRICE", "REPORT_CACHE_TTL", "TIER_MULTIPLIERS", "BURDEN_MULTIPLIERS")

	cfg := config.Load()
	if cfg.Port != 8080 || cfg.StoreDriver != config.StoreSQLite || cfg.AuthDisabled {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.FuelPrice != 3.50 || cfg.ReportCacheTTL != time.Minute {
		t.Errorf("unexpected pricing/cache defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_DISABLED", "true")
	t.Setenv("DEFAULT_TAX_RATE", "0.07")
	t.Setenv("REPORT_CACHE_TTL", "30s")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := config.Load()
	if cfg.Port != 9090 || cfg.StoreDriver != config.StoreMemory || !cfg.AuthDisabled {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.DefaultTaxRate != 0.07 || cfg.ReportCacheTTL != 30*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected malformed MAX_RETRIES to fall back to 3, got %d", cfg.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			StoreDriver:       config.StoreMemory,
			JWTSecret:         "secret",
			TierMultipliers:   "1.6,1.7,1.8,2.0,2.2",
			BurdenMultipliers: "1.5,1.5,1.6,1.7,1.8",
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }, "STORE_DRIVER"},
		{"postgres without url", func(c *config.Config) { c.StoreDriver = config.StorePostgres }, "DATABASE_URL"},
		{"four tiers", func(c *config.Config) { c.TierMultipliers = "1.6,1.7,1.8,2.0" }, "TIER_MULTIPLIERS"},
		{"bad burden", func(c *config.Config) { c.BurdenMultipliers = "1.6,x,1.8,2.0,2.2" }, "BURDEN_MULTIPLIERS"},
		{"tax above one", func(c *config.Config) { c.DefaultTaxRate = 7 }, "DEFAULT_TAX_RATE"},
		{"no secret", func(c *config.Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"no secret auth off", func(c *config.Config) { c.JWTSecret = ""; c.AuthDisabled = true }, ""},
		{"half calendar", func(c *config.Config) { c.GCalCalendarID = "crew@group.calendar.google.com" }, "GCAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestCompensationTable_IndependentLists(t *testing.T) {
	cfg := &config.Config{TierMultipliers: "1.6,1.7,1.8,2.0,2.2", BurdenMultipliers: "1.5,1.5,1.6,1.7,1.8"}

	table, err := cfg.CompensationTable()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if table.TierMultipliers[4] != 2.2 || table.BurdenMultipliers[4] != 1.8 {
		t.Errorf("unexpected multipliers %v / %v", table.TierMultipliers, table.BurdenMultipliers)
	}
}
