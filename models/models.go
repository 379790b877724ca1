// Package models defines the data structures exchanged between pipeline stages.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MatchMethod records which resolution path produced an Amazon match.
type MatchMethod string

const (
	MatchEAN         MatchMethod = "EAN"
	MatchEANCached   MatchMethod = "EAN_cached"
	MatchTitle       MatchMethod = "title"
	MatchTitleCached MatchMethod = "title_cached"
)

// Confidence grades how trustworthy a supplier-to-Amazon link is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceForMethod derives link confidence from the resolution path that
// actually succeeded. Identifier matches are high, fuzzy title matches medium.
func ConfidenceForMethod(m MatchMethod) Confidence {
	switch m {
	case MatchEAN, MatchEANCached:
		return ConfidenceHigh
	case MatchTitle, MatchTitleCached:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SupplierProduct is one listing scraped from a supplier catalog page.
type SupplierProduct struct {
	Title             string          `json:"title"`
	Price             decimal.Decimal `json:"price"`
	URL               string          `json:"url"`
	EAN               string          `json:"ean,omitempty"`
	SourceCategoryURL string          `json:"source_category_url"`
	ExtractedAt       time.Time       `json:"extraction_timestamp"`
}

// Valid reports whether the record carries the fields required for matching.
func (p *SupplierProduct) Valid() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.Title) != "" &&
		strings.TrimSpace(p.URL) != "" &&
		p.Price.IsPositive()
}

// Identifier returns the key used for linking-map entries: the EAN when the
// supplier published one, otherwise the listing URL.
func (p *SupplierProduct) Identifier() string {
	if strings.TrimSpace(p.EAN) != "" {
		return p.EAN
	}
	return p.URL
}

// AmazonProduct is the detail extracted for one ASIN.
type AmazonProduct struct {
	ASIN         string                     `json:"asin"`
	Title        string                     `json:"title"`
	CurrentPrice decimal.Decimal            `json:"current_price"`
	HasPrice     bool                       `json:"has_price"`
	Rating       float64                    `json:"rating"`
	ReviewCount  int                        `json:"review_count"`
	SalesRank    int                        `json:"sales_rank,omitempty"`
	EANsOnPage   []string                   `json:"eans_on_page,omitempty"`
	Fees         map[string]decimal.Decimal `json:"fee_breakdown,omitempty"`
	FetchedAt    time.Time                  `json:"fetched_at"`
}

// HasEAN reports whether ean appears among the EANs observed on the detail page.
func (a *AmazonProduct) HasEAN(ean string) bool {
	ean = strings.TrimSpace(ean)
	if ean == "" {
		return false
	}
	for _, candidate := range a.EANsOnPage {
		if candidate == ean {
			return true
		}
	}
	return false
}

// TotalFees sums the fee breakdown.
func (a *AmazonProduct) TotalFees() decimal.Decimal {
	total := decimal.Zero
	for _, fee := range a.Fees {
		total = total.Add(fee)
	}
	return total
}

// LinkingMapEntry records one supplier-to-Amazon correspondence.
type LinkingMapEntry struct {
	SupplierIdentifier string          `json:"supplier_identifier"`
	ASIN               string          `json:"amazon_asin"`
	Method             MatchMethod     `json:"match_method"`
	Confidence         Confidence      `json:"confidence"`
	SupplierPrice      decimal.Decimal `json:"supplier_price"`
	AmazonPrice        decimal.Decimal `json:"amazon_price"`
	CreatedAt          time.Time       `json:"created_at"`
}

// RunStatus tracks where a supplier run is in its lifecycle.
type RunStatus string

const (
	StatusNotStarted RunStatus = "not_started"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
)

// ProcessingState is the resume record persisted between runs. The index is
// the sole resume point into the price-filtered product list.
type ProcessingState struct {
	LastProcessedIndex       int               `json:"last_processed_index"`
	TotalProducts            int               `json:"total_products"`
	ConsecutivePriceFailures int               `json:"consecutive_price_failures"`
	ProductsSinceLastLogin   int               `json:"products_since_last_login"`
	Status                   RunStatus         `json:"status"`
	ProcessedURLs            []string          `json:"processed_urls,omitempty"`
	FailedStages             map[string]string `json:"failed_stages,omitempty"`
}

// NewProcessingState returns a zeroed state ready for a first run.
func NewProcessingState() *ProcessingState {
	return &ProcessingState{
		Status:       StatusNotStarted,
		FailedStages: make(map[string]string),
	}
}

// Reset clears progress after a stale-cache conflict. A dangling index against
// missing cache data silently loses products, so the state always restarts.
func (s *ProcessingState) Reset() {
	s.LastProcessedIndex = 0
	s.TotalProducts = 0
	s.ConsecutivePriceFailures = 0
	s.ProductsSinceLastLogin = 0
	s.Status = StatusNotStarted
	s.ProcessedURLs = nil
	s.FailedStages = make(map[string]string)
}

// Advance moves the resume index forward. The index never moves backwards
// within a run.
func (s *ProcessingState) Advance(index int) error {
	if index < s.LastProcessedIndex {
		return fmt.Errorf("processing index moved backwards: %d < %d", index, s.LastProcessedIndex)
	}
	s.LastProcessedIndex = index
	return nil
}

// MarkProcessed records that a product URL completed its pipeline pass.
func (s *ProcessingState) MarkProcessed(url string) {
	for _, seen := range s.ProcessedURLs {
		if seen == url {
			return
		}
	}
	s.ProcessedURLs = append(s.ProcessedURLs, url)
}

// Processed reports whether a product URL already completed a pass.
func (s *ProcessingState) Processed(url string) bool {
	for _, seen := range s.ProcessedURLs {
		if seen == url {
			return true
		}
	}
	return false
}

// MarkFailed annotates a product with the pipeline stage that rejected it.
func (s *ProcessingState) MarkFailed(url, stage string) {
	if s.FailedStages == nil {
		s.FailedStages = make(map[string]string)
	}
	s.FailedStages[url] = stage
}

// ProfitabilityResult is the output of the financial evaluator.
type ProfitabilityResult struct {
	ROIPercent float64         `json:"roi_percent"`
	NetProfit  decimal.Decimal `json:"net_profit_per_unit"`
}

// CombinedRecord joins the supplier listing, its Amazon match, and the
// financial verdict for reporting.
type CombinedRecord struct {
	Supplier    SupplierProduct     `json:"supplier_product"`
	Amazon      AmazonProduct       `json:"amazon_product"`
	Method      MatchMethod         `json:"match_method"`
	Confidence  Confidence          `json:"confidence"`
	Financials  ProfitabilityResult `json:"financials"`
	EvaluatedAt time.Time           `json:"evaluated_at"`
}

// RunSummary aggregates counters for the end-of-run operator report.
type RunSummary struct {
	StartTime        time.Time
	EndTime          time.Time
	ProductsScraped  int
	ProductsFiltered int
	ProductsAnalyzed int
	MatchedByEAN     int
	MatchedByTitle   int
	Profitable       int
	NoMatch          int
	Errored          int
	ErrorsByStage    map[string]int
	CacheReused      bool
}
