// Package finance wraps the fee/ROI arithmetic behind a narrow evaluator
// boundary and applies the profitability and listing-quality gates.
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fbasourcing/go-source-fba/config"
	"github.com/fbasourcing/go-source-fba/models"
)

// Evaluator computes fee-adjusted profitability for one supplier/Amazon pair.
// The arithmetic is a pure function of the two prices and the fee map.
type Evaluator interface {
	Evaluate(supplier models.SupplierProduct, amazon models.AmazonProduct) (models.ProfitabilityResult, error)
}

// FeeScheduleEvaluator is the default evaluator. When the Amazon product
// carries no scraped fee breakdown it falls back to a flat referral
// percentage plus a fixed fulfilment fee.
type FeeScheduleEvaluator struct {
	ReferralRate  decimal.Decimal
	FulfilmentFee decimal.Decimal
}

// NewFeeScheduleEvaluator returns an evaluator with UK marketplace defaults.
func NewFeeScheduleEvaluator() *FeeScheduleEvaluator {
	return &FeeScheduleEvaluator{
		ReferralRate:  decimal.NewFromFloat(0.15),
		FulfilmentFee: decimal.NewFromFloat(2.50),
	}
}

// Evaluate computes net profit per unit and ROI percent.
func (e *FeeScheduleEvaluator) Evaluate(supplier models.SupplierProduct, amazon models.AmazonProduct) (models.ProfitabilityResult, error) {
	if !supplier.Price.IsPositive() {
		return models.ProfitabilityResult{}, fmt.Errorf("supplier price must be positive, got %s", supplier.Price)
	}
	if !amazon.HasPrice || !amazon.CurrentPrice.IsPositive() {
		return models.ProfitabilityResult{}, fmt.Errorf("amazon price unavailable for %s", amazon.ASIN)
	}

	fees := amazon.TotalFees()
	if fees.IsZero() {
		fees = amazon.CurrentPrice.Mul(e.ReferralRate).Add(e.FulfilmentFee)
	}

	profit := amazon.CurrentPrice.Sub(fees).Sub(supplier.Price)
	roi := profit.Div(supplier.Price).Mul(decimal.NewFromInt(100))
	roiPercent, _ := roi.Float64()

	return models.ProfitabilityResult{
		ROIPercent: roiPercent,
		NetProfit:  profit,
	}, nil
}

// Gate applies the profitability thresholds from cfg.
func Gate(result models.ProfitabilityResult, cfg *config.Config) bool {
	return result.ROIPercent > cfg.MinROIPercent &&
		result.NetProfit.GreaterThan(cfg.MinProfitPerUnit)
}

// MeetsCriteria applies the listing-quality thresholds: rating, review count,
// and sales rank. A missing sales rank passes; an absurdly deep one does not.
func MeetsCriteria(amazon models.AmazonProduct, cfg *config.Config) bool {
	if amazon.Rating > 0 && amazon.Rating < cfg.MinRating {
		return false
	}
	if amazon.ReviewCount > 0 && amazon.ReviewCount < cfg.MinReviews {
		return false
	}
	if amazon.SalesRank > 0 && cfg.MaxSalesRank > 0 && amazon.SalesRank > cfg.MaxSalesRank {
		return false
	}
	return true
}
