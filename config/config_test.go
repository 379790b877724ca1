package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty supplier name",
			mutate: func(cfg *Config) {
				cfg.SupplierName = ""
			},
			wantErr: "supplier name",
		},
		{
			name: "empty supplier base url",
			mutate: func(cfg *Config) {
				cfg.SupplierBaseURL = ""
			},
			wantErr: "supplier base URL",
		},
		{
			name: "hostless amazon url",
			mutate: func(cfg *Config) {
				cfg.AmazonBaseURL = "http://"
			},
			wantErr: "amazon base URL",
		},
		{
			name: "inverted price window",
			mutate: func(cfg *Config) {
				cfg.MinPrice = decimal.NewFromInt(30)
				cfg.MaxPrice = decimal.NewFromInt(20)
			},
			wantErr: "max price",
		},
		{
			name: "title threshold out of range",
			mutate: func(cfg *Config) {
				cfg.TitleMatchThreshold = 1.5
			},
			wantErr: "title match threshold",
		},
		{
			name: "unordered match tiers",
			mutate: func(cfg *Config) {
				cfg.MediumMatchThreshold = 0.9
			},
			wantErr: "tier thresholds",
		},
		{
			name: "zero cache max age",
			mutate: func(cfg *Config) {
				cfg.CacheMaxAge = 0
			},
			wantErr: "cache max age",
		},
		{
			name: "zero cycle size",
			mutate: func(cfg *Config) {
				cfg.MaxProductsPerCycle = 0
			},
			wantErr: "per cycle",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff exceeds max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 5 * time.Second
				cfg.RetryBackoffMax = 1 * time.Second
			},
			wantErr: "retry backoff",
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

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MIN_ROI_PERCENT", "50")
	t.Setenv("MAX_PRICE", "12.50")
	t.Setenv("CHECKPOINT_INTERVAL", "5")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.MinROIPercent != 50 {
		t.Fatalf("MinROIPercent = %v, want 50", cfg.MinROIPercent)
	}
	if !cfg.MaxPrice.Equal(decimal.NewFromFloat(12.50)) {
		t.Fatalf("MaxPrice = %s, want 12.50", cfg.MaxPrice)
	}
	if cfg.CheckpointInterval != 5 {
		t.Fatalf("CheckpointInterval = %d, want 5", cfg.CheckpointInterval)
	}
}

func TestPriceInWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPrice = decimal.NewFromInt(1)
	cfg.MaxPrice = decimal.NewFromInt(20)

	tests := []struct {
		price float64
		want  bool
	}{
		{0.5, false},
		{1.0, true},
		{19.99, true},
		{20.0, true},
		{20.01, false},
	}
	for _, tt := range tests {
		if got := cfg.PriceInWindow(decimal.NewFromFloat(tt.price)); got != tt.want {
			t.Fatalf("PriceInWindow(%v) = %v, want %v", tt.price, got, tt.want)
		}
	}
}
