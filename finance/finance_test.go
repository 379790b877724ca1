package finance

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fbasourcing/go-source-fba/config"
	"github.com/fbasourcing/go-source-fba/models"
)

func TestEvaluateRoundTrip(t *testing.T) {
	// Supplier £2.00, Amazon £10.00, fees £3.00: profit £5.00, ROI 250%.
	supplier := models.SupplierProduct{
		Title: "Widget",
		Price: decimal.NewFromFloat(2.00),
		URL:   "https://supplier.test/widget",
	}
	amazon := models.AmazonProduct{
		ASIN:         "B00WIDGET01",
		CurrentPrice: decimal.NewFromFloat(10.00),
		HasPrice:     true,
		Fees: map[string]decimal.Decimal{
			"referral":  decimal.NewFromFloat(1.50),
			"pick_pack": decimal.NewFromFloat(1.50),
		},
	}

	result, err := NewFeeScheduleEvaluator().Evaluate(supplier, amazon)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.NetProfit.Equal(decimal.NewFromFloat(5.00)) {
		t.Fatalf("net profit = %s, want 5.00", result.NetProfit)
	}
	if math.Abs(result.ROIPercent-250.0) > 1e-9 {
		t.Fatalf("roi = %v, want 250", result.ROIPercent)
	}

	cfg := config.DefaultConfig() // ROI > 35%, profit > £3
	if !Gate(result, cfg) {
		t.Fatal("result should pass the default profitability gate")
	}
}

func TestEvaluateFallbackFeeSchedule(t *testing.T) {
	supplier := models.SupplierProduct{
		Title: "Widget",
		Price: decimal.NewFromFloat(2.00),
		URL:   "https://supplier.test/widget",
	}
	amazon := models.AmazonProduct{
		ASIN:         "B00WIDGET01",
		CurrentPrice: decimal.NewFromFloat(10.00),
		HasPrice:     true,
	}

	result, err := NewFeeScheduleEvaluator().Evaluate(supplier, amazon)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// 15% referral (1.50) + 2.50 fulfilment = 4.00 in fees; 10 - 4 - 2 = 4.
	if !result.NetProfit.Equal(decimal.NewFromFloat(4.00)) {
		t.Fatalf("net profit = %s, want 4.00", result.NetProfit)
	}
	if math.Abs(result.ROIPercent-200.0) > 1e-9 {
		t.Fatalf("roi = %v, want 200", result.ROIPercent)
	}
}

func TestEvaluateRejectsInvalidInputs(t *testing.T) {
	evaluator := NewFeeScheduleEvaluator()

	if _, err := evaluator.Evaluate(
		models.SupplierProduct{Price: decimal.Zero},
		models.AmazonProduct{CurrentPrice: decimal.NewFromFloat(10), HasPrice: true},
	); err == nil {
		t.Fatal("zero supplier price should fail")
	}

	if _, err := evaluator.Evaluate(
		models.SupplierProduct{Price: decimal.NewFromFloat(2)},
		models.AmazonProduct{ASIN: "B00NOPRICE1"},
	); err == nil {
		t.Fatal("missing amazon price should fail")
	}
}

func TestGateThresholds(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name   string
		roi    float64
		profit float64
		want   bool
	}{
		{"both clear", 36, 3.01, true},
		{"roi at threshold", 35, 4, false},
		{"profit at threshold", 100, 3, false},
		{"both below", 10, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := models.ProfitabilityResult{
				ROIPercent: tt.roi,
				NetProfit:  decimal.NewFromFloat(tt.profit),
			}
			if got := Gate(result, cfg); got != tt.want {
				t.Fatalf("Gate(roi=%v, profit=%v) = %v, want %v", tt.roi, tt.profit, got, tt.want)
			}
		})
	}
}

func TestMeetsCriteria(t *testing.T) {
	cfg := config.DefaultConfig() // rating >= 3.8, reviews >= 20, rank <= 150000

	tests := []struct {
		name   string
		amazon models.AmazonProduct
		want   bool
	}{
		{
			name:   "all good",
			amazon: models.AmazonProduct{Rating: 4.5, ReviewCount: 120, SalesRank: 5000},
			want:   true,
		},
		{
			name:   "low rating",
			amazon: models.AmazonProduct{Rating: 3.0, ReviewCount: 120, SalesRank: 5000},
			want:   false,
		},
		{
			name:   "few reviews",
			amazon: models.AmazonProduct{Rating: 4.5, ReviewCount: 5, SalesRank: 5000},
			want:   false,
		},
		{
			name:   "deep sales rank",
			amazon: models.AmazonProduct{Rating: 4.5, ReviewCount: 120, SalesRank: 900000},
			want:   false,
		},
		{
			name:   "missing signals pass",
			amazon: models.AmazonProduct{},
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MeetsCriteria(tt.amazon, cfg); got != tt.want {
				t.Fatalf("MeetsCriteria(%+v) = %v, want %v", tt.amazon, got, tt.want)
			}
		})
	}
}
