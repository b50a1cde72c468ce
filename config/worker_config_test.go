package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"driver", cfg.DatabaseDriver, DriverPgx},
		{"batch limit", cfg.RulesBatchLimit, 500},
		{"lead window", cfg.RulesLeadDedupWindow, 7 * 24 * time.Hour},
		{"cache ttl", cfg.RulesCacheTTL, 5 * time.Minute},
		{"post sync off", cfg.RulesPostSyncInterval, time.Duration(0)},
		{"default provider", cfg.DefaultProvider, "outlook"},
		{"run retention", cfg.RuleRunRetention, 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("DATABASE_DRIVER", "POSTGRES")
	t.Setenv("RULES_LEAD_DEDUP_WINDOW_HOURS", "24")
	t.Setenv("RULES_BATCH_LIMIT", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDriver != DriverPq {
		t.Errorf("driver = %q", cfg.DatabaseDriver)
	}
	if cfg.RulesLeadDedupWindow != 24*time.Hour {
		t.Errorf("lead window = %v", cfg.RulesLeadDedupWindow)
	}
	if cfg.RulesBatchLimit != 500 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.RulesBatchLimit)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{DatabaseURL: "x", DatabaseDriver: DriverPgx, RulesBatchLimit: 1}, false},
		{"missing url", Config{DatabaseDriver: DriverPgx, RulesBatchLimit: 1}, true},
		{"bad driver", Config{DatabaseURL: "x", DatabaseDriver: "mysql", RulesBatchLimit: 1}, true},
		{"prod without secret", Config{DatabaseURL: "x", DatabaseDriver: DriverPgx, RulesBatchLimit: 1, Environment: "production"}, true},
		{"zero batch", Config{DatabaseURL: "x", DatabaseDriver: DriverPgx}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
