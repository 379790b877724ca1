// Package config holds the single configuration object shared by every
// pipeline component. It is constructed once in main and passed by reference;
// no component reads ambient globals.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config carries supplier identity, price and profitability thresholds,
// batching knobs, and network settings for one sourcing run.
type Config struct {
	SupplierName    string `env:"SUPPLIER_NAME"`
	SupplierBaseURL string `env:"SUPPLIER_BASE_URL"`
	AmazonBaseURL   string `env:"AMAZON_BASE_URL"`

	MinPrice decimal.Decimal `env:"MIN_PRICE"`
	MaxPrice decimal.Decimal `env:"MAX_PRICE"`

	MinROIPercent    float64         `env:"MIN_ROI_PERCENT"`
	MinProfitPerUnit decimal.Decimal `env:"MIN_PROFIT_PER_UNIT"`

	MinRating    float64 `env:"MIN_RATING"`
	MinReviews   int     `env:"MIN_REVIEWS"`
	MaxSalesRank int     `env:"MAX_SALES_RANK"`

	TitleMatchThreshold  float64 `env:"TITLE_MATCH_THRESHOLD"`
	HighMatchThreshold   float64 `env:"HIGH_MATCH_THRESHOLD"`
	MediumMatchThreshold float64 `env:"MEDIUM_MATCH_THRESHOLD"`
	LowMatchThreshold    float64 `env:"LOW_MATCH_THRESHOLD"`

	CacheMaxAge time.Duration `env:"CACHE_MAX_AGE"`

	MaxProductsToProcess   int `env:"MAX_PRODUCTS_TO_PROCESS"`
	MaxProductsPerCategory int `env:"MAX_PRODUCTS_PER_CATEGORY"`
	MaxProductsPerCycle    int `env:"MAX_PRODUCTS_PER_CYCLE"`
	ExtractionBatchSize    int `env:"SUPPLIER_EXTRACTION_BATCH_SIZE"`
	CheckpointInterval     int `env:"CHECKPOINT_INTERVAL"`

	Timeout         time.Duration `env:"SCRAPER_TIMEOUT"`
	MaxRetries      int           `env:"SCRAPER_MAX_RETRIES"`
	RetryBackoff    time.Duration `env:"SCRAPER_RETRY_BACKOFF"`
	RetryBackoffMax time.Duration `env:"SCRAPER_RETRY_BACKOFF_MAX"`
	UserAgent       string        `env:"SCRAPER_USER_AGENT"`

	OutputDir   string `env:"OUTPUT_DIR"`
	MetricsAddr string `env:"METRICS_ADDR"`
	Verbose     bool   `env:"VERBOSE"`
}

// DefaultConfig returns conservative defaults for a UK marketplace run.
func DefaultConfig() *Config {
	return &Config{
		SupplierName:           "clearance-king",
		SupplierBaseURL:        "https://www.clearance-king.co.uk",
		AmazonBaseURL:          "https://www.amazon.co.uk",
		MinPrice:               decimal.NewFromFloat(0.1),
		MaxPrice:               decimal.NewFromFloat(20.0),
		MinROIPercent:          35.0,
		MinProfitPerUnit:       decimal.NewFromFloat(3.0),
		MinRating:              3.8,
		MinReviews:             20,
		MaxSalesRank:           150000,
		TitleMatchThreshold:    0.5,
		HighMatchThreshold:     0.75,
		MediumMatchThreshold:   0.5,
		LowMatchThreshold:      0.25,
		CacheMaxAge:            14 * 24 * time.Hour,
		MaxProductsToProcess:   0,
		MaxProductsPerCategory: 50,
		MaxProductsPerCycle:    25,
		ExtractionBatchSize:    3,
		CheckpointInterval:     10,
		Timeout:                10 * time.Second,
		MaxRetries:             2,
		RetryBackoff:           200 * time.Millisecond,
		RetryBackoffMax:        2 * time.Second,
		UserAgent:              "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		OutputDir:              "output",
		MetricsAddr:            "",
		Verbose:                false,
	}
}

// FromEnv overlays environment variables onto the defaults.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SupplierName == "" {
		return fmt.Errorf("supplier name cannot be empty")
	}
	for _, base := range []struct {
		label string
		value string
	}{
		{"supplier base URL", c.SupplierBaseURL},
		{"amazon base URL", c.AmazonBaseURL},
	} {
		if base.value == "" {
			return fmt.Errorf("%s cannot be empty", base.label)
		}
		parsed, err := url.Parse(base.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", base.label, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s must include a host", base.label)
		}
	}

	if c.MinPrice.IsNegative() {
		return fmt.Errorf("min price cannot be negative")
	}
	if !c.MaxPrice.IsPositive() {
		return fmt.Errorf("max price must be positive")
	}
	if c.MaxPrice.LessThan(c.MinPrice) {
		return fmt.Errorf("max price (%s) cannot be below min price (%s)", c.MaxPrice, c.MinPrice)
	}
	if c.TitleMatchThreshold <= 0 || c.TitleMatchThreshold > 1 {
		return fmt.Errorf("title match threshold must be in (0, 1]")
	}
	if c.HighMatchThreshold < c.MediumMatchThreshold || c.MediumMatchThreshold < c.LowMatchThreshold {
		return fmt.Errorf("match tier thresholds must be ordered high >= medium >= low")
	}
	if c.CacheMaxAge <= 0 {
		return fmt.Errorf("cache max age must be positive")
	}
	if c.MaxProductsToProcess < 0 {
		return fmt.Errorf("max products to process cannot be negative")
	}
	if c.MaxProductsPerCategory <= 0 {
		return fmt.Errorf("max products per category must be positive")
	}
	if c.MaxProductsPerCycle <= 0 {
		return fmt.Errorf("max products per cycle must be positive")
	}
	if c.ExtractionBatchSize <= 0 {
		return fmt.Errorf("extraction batch size must be positive")
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint interval must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	return nil
}

// PriceInWindow reports whether a supplier price is eligible for matching.
func (c *Config) PriceInWindow(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(c.MinPrice) && price.LessThanOrEqual(c.MaxPrice)
}
