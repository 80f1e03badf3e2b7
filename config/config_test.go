package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "no section paths",
			mutate: func(cfg *Config) {
				cfg.SectionPaths = nil
			},
			wantErr: "section path",
		},
		{
			name: "zero discovery workers",
			mutate: func(cfg *Config) {
				cfg.DiscoveryWorkers = 0
			},
			wantErr: "discovery workers",
		},
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "negative delay",
			mutate: func(cfg *Config) {
				cfg.Delay = -time.Second
			},
			wantErr: "delay",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero max retries",
			mutate: func(cfg *Config) {
				cfg.MaxRetries = 0
			},
			wantErr: "max retries",
		},
		{
			name: "backoff exceeds max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 10 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "bad output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xlsx"
			},
			wantErr: "output format",
		},
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestAlphabetFilters(t *testing.T) {
	filters := AlphabetFilters()
	if len(filters) != 27 {
		t.Fatalf("filters = %d, want 27", len(filters))
	}
	if filters[0] != "" {
		t.Fatalf("first filter = %q, want the trending (empty) filter", filters[0])
	}
	if filters[1] != "a" || filters[26] != "z" {
		t.Fatalf("letter filters = %q..%q, want a..z", filters[1], filters[26])
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SCRAPER_TEST_INT", "12")
	if value, ok, err := EnvInt("SCRAPER_TEST_INT"); err != nil || !ok || value != 12 {
		t.Fatalf("EnvInt = (%d, %v, %v), want (12, true, nil)", value, ok, err)
	}

	t.Setenv("SCRAPER_TEST_INT", "nope")
	if _, _, err := EnvInt("SCRAPER_TEST_INT"); err == nil {
		t.Fatalf("expected parse error")
	}

	if _, ok, err := EnvInt("SCRAPER_TEST_INT_UNSET"); ok || err != nil {
		t.Fatalf("unset int should report absent")
	}

	t.Setenv("SCRAPER_TEST_STR", "output.csv")
	if value, ok := EnvString("SCRAPER_TEST_STR"); !ok || value != "output.csv" {
		t.Fatalf("EnvString = (%q, %v), want (output.csv, true)", value, ok)
	}
}
