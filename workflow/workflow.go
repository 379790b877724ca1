// Package workflow drives the end-to-end sourcing pass for one supplier:
// scrape, filter, match, evaluate, checkpoint, report. A run is resumable
// across process restarts via the persisted processing state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fbasourcing/go-source-fba/config"
	"github.com/fbasourcing/go-source-fba/finance"
	"github.com/fbasourcing/go-source-fba/matcher"
	"github.com/fbasourcing/go-source-fba/models"
	"github.com/fbasourcing/go-source-fba/report"
	"github.com/fbasourcing/go-source-fba/scraper"
	"github.com/fbasourcing/go-source-fba/store"
)

// SupplierSource yields product records for one category page.
type SupplierSource interface {
	ScrapeCategory(ctx context.Context, categoryURL string, maxProducts int) ([]models.SupplierProduct, error)
}

// ProductMatcher resolves a supplier product to its Amazon counterpart.
type ProductMatcher interface {
	Resolve(ctx context.Context, supplier models.SupplierProduct) (*matcher.Resolution, error)
}

// FinancialReporter triggers the external financial CSV generation. The core
// only passes cache locations; the arithmetic lives with the collaborator.
type FinancialReporter interface {
	GenerateFinancialReport(ctx context.Context, supplierCachePath string) error
}

// Failure-stage annotations recorded in the processing state.
const (
	stageNoMatch    = "no_match"
	stageExtraction = "failed_amazon_extraction"
	stageFinancial  = "failed_financial_calculation"
)

// Workflow is the orchestrator for one supplier run.
type Workflow struct {
	cfg       *config.Config
	supplier  SupplierSource
	matcher   ProductMatcher
	evaluator finance.Evaluator
	reporter  FinancialReporter

	supplierCache *store.SupplierCache
	stateStore    *store.StateStore
	linkingMap    *store.LinkingMap
	metrics       *scraper.Metrics

	sessionID string
	summary   models.RunSummary
}

// New wires the orchestrator. reporter may be nil when no external financial
// report is configured.
func New(
	cfg *config.Config,
	supplier SupplierSource,
	productMatcher ProductMatcher,
	evaluator finance.Evaluator,
	reporter FinancialReporter,
	supplierCache *store.SupplierCache,
	stateStore *store.StateStore,
	linkingMap *store.LinkingMap,
	metrics *scraper.Metrics,
) *Workflow {
	return &Workflow{
		cfg:           cfg,
		supplier:      supplier,
		matcher:       productMatcher,
		evaluator:     evaluator,
		reporter:      reporter,
		supplierCache: supplierCache,
		stateStore:    stateStore,
		linkingMap:    linkingMap,
		metrics:       metrics,
		sessionID:     time.Now().UTC().Format("20060102_150405"),
	}
}

// Summary returns the counters accumulated by the last Run.
func (w *Workflow) Summary() models.RunSummary {
	return w.summary
}

// Run executes one resumable sourcing pass over the given category URLs and
// returns the records that cleared the profitability gate.
func (w *Workflow) Run(ctx context.Context, categoryURLs []string) ([]models.CombinedRecord, error) {
	w.summary = models.RunSummary{
		StartTime:     time.Now(),
		ErrorsByStage: make(map[string]int),
	}

	state, err := w.stateStore.Load()
	if err != nil {
		return nil, fmt.Errorf("load processing state: %w", err)
	}

	cached, cacheAge, err := w.supplierCache.Load()
	if err != nil {
		return nil, fmt.Errorf("load supplier cache: %w", err)
	}
	cacheFresh := len(cached) > 0 && cacheAge <= w.cfg.CacheMaxAge

	// A resume index pointing into a missing or stale product list silently
	// drops products; the state always resets rather than being trusted.
	if !cacheFresh && state.LastProcessedIndex > 0 {
		slog.Warn("supplier cache stale or missing with recorded progress, resetting state",
			slog.Int("last_processed_index", state.LastProcessedIndex),
			slog.Duration("cache_age", cacheAge),
		)
		state.Reset()
	}

	var products []models.SupplierProduct
	if cacheFresh && state.LastProcessedIndex > 0 {
		// Re-scraping is expensive and the product set is assumed stable
		// within the freshness window, so recorded progress reuses the cache.
		slog.Info("reusing fresh supplier cache",
			slog.Int("products", len(cached)),
			slog.Duration("age", cacheAge),
		)
		products = cached
		w.summary.CacheReused = true
	} else {
		products, err = w.scrapeCategories(ctx, categoryURLs)
		if err != nil {
			return nil, err
		}
	}
	w.summary.ProductsScraped = len(products)

	if len(products) == 0 {
		slog.Error("no usable supplier products, terminating run", slog.String("supplier", w.cfg.SupplierName))
		w.summary.EndTime = time.Now()
		return nil, nil
	}

	filtered := w.filterProducts(products)
	w.summary.ProductsFiltered = len(filtered)
	state.TotalProducts = len(filtered)
	state.Status = models.StatusInProgress

	profitable := w.processProducts(ctx, state, filtered)

	// An interrupted window stays in_progress so a later run (and the
	// operator) can tell a clean finish from a signal.
	if ctx.Err() == nil {
		state.Status = models.StatusCompleted
	}
	w.checkpoint(state)

	reportPath := report.JSONReportPath(w.cfg.OutputDir, w.sessionID)
	if err := report.WriteJSONReport(reportPath, profitable); err != nil {
		slog.Error("write profitable-finds report", slog.Any("error", err))
	} else {
		slog.Info("profitable-finds report written",
			slog.String("path", reportPath),
			slog.Int("records", len(profitable)),
		)
	}

	if w.reporter != nil {
		if err := w.reporter.GenerateFinancialReport(ctx, w.supplierCache.Path()); err != nil {
			slog.Error("external financial report failed", slog.Any("error", err))
		}
	}

	w.summary.EndTime = time.Now()
	return profitable, nil
}

// scrapeCategories pulls products category by category in fixed-size batches.
// The accumulator is saved after every batch so partial progress survives an
// interruption before the category list finishes.
func (w *Workflow) scrapeCategories(ctx context.Context, categoryURLs []string) ([]models.SupplierProduct, error) {
	var accumulated []models.SupplierProduct
	for start := 0; start < len(categoryURLs); start += w.cfg.ExtractionBatchSize {
		end := start + w.cfg.ExtractionBatchSize
		if end > len(categoryURLs) {
			end = len(categoryURLs)
		}

		for _, categoryURL := range categoryURLs[start:end] {
			if ctx.Err() != nil {
				return accumulated, ctx.Err()
			}
			batch, err := w.supplier.ScrapeCategory(ctx, categoryURL, w.cfg.MaxProductsPerCategory)
			if err != nil {
				slog.Error("category scrape failed",
					slog.String("category", categoryURL),
					slog.Any("error", err),
				)
				w.summary.ErrorsByStage["category_scrape"]++
				continue
			}
			accumulated = append(accumulated, batch...)
		}

		if err := w.supplierCache.Save(accumulated); err != nil {
			slog.Error("supplier cache checkpoint failed", slog.Any("error", err))
		}
	}
	return accumulated, nil
}

// filterProducts keeps valid records whose price sits in the configured
// window, preserving scrape order so the resume index stays meaningful.
func (w *Workflow) filterProducts(products []models.SupplierProduct) []models.SupplierProduct {
	filtered := make([]models.SupplierProduct, 0, len(products))
	for i := range products {
		p := &products[i]
		if !p.Valid() {
			continue
		}
		if !w.cfg.PriceInWindow(p.Price) {
			continue
		}
		filtered = append(filtered, *p)
	}
	return filtered
}

// processProducts walks the resume slice in cycles, running the per-product
// match/evaluate pipeline and checkpointing mutable state periodically.
func (w *Workflow) processProducts(ctx context.Context, state *models.ProcessingState, filtered []models.SupplierProduct) []models.CombinedRecord {
	startIndex := state.LastProcessedIndex
	endIndex := len(filtered)
	if w.cfg.MaxProductsToProcess > 0 && startIndex+w.cfg.MaxProductsToProcess < endIndex {
		endIndex = startIndex + w.cfg.MaxProductsToProcess
	}

	var profitable []models.CombinedRecord
	sinceCheckpoint := 0

	for cycleStart := startIndex; w.shouldContinue(ctx, cycleStart, endIndex); cycleStart += w.cfg.MaxProductsPerCycle {
		cycleEnd := cycleStart + w.cfg.MaxProductsPerCycle
		if cycleEnd > endIndex {
			cycleEnd = endIndex
		}

		for i := cycleStart; i < cycleEnd; i++ {
			if ctx.Err() != nil {
				break
			}
			product := filtered[i]

			if state.Processed(product.URL) {
				w.advance(state, i+1)
				continue
			}

			if record, ok := w.processOne(ctx, state, product); ok {
				profitable = append(profitable, record)
			}

			state.MarkProcessed(product.URL)
			w.advance(state, i+1)
			state.ProductsSinceLastLogin++

			sinceCheckpoint++
			if sinceCheckpoint >= w.cfg.CheckpointInterval {
				w.checkpoint(state)
				sinceCheckpoint = 0
			}
		}
	}

	return profitable
}

// processOne runs a single product through match, validate, and finance.
// Failures annotate the state and never unwind past this boundary.
func (w *Workflow) processOne(ctx context.Context, state *models.ProcessingState, product models.SupplierProduct) (models.CombinedRecord, bool) {
	w.summary.ProductsAnalyzed++

	resolution, err := w.matcher.Resolve(ctx, product)
	if err != nil {
		if errors.Is(err, matcher.ErrNoMatch) {
			w.summary.NoMatch++
			w.summary.ErrorsByStage[stageNoMatch]++
			state.MarkFailed(product.URL, stageNoMatch)
			slog.Debug("no acceptable amazon candidate", slog.String("title", product.Title))
		} else {
			w.summary.Errored++
			w.summary.ErrorsByStage[stageExtraction]++
			state.MarkFailed(product.URL, stageExtraction)
			slog.Error("amazon match failed",
				slog.String("title", product.Title),
				slog.Any("error", err),
			)
		}
		return models.CombinedRecord{}, false
	}

	amazon := resolution.Product
	w.metrics.IncMatch(string(resolution.Method))
	switch resolution.Method {
	case models.MatchEAN, models.MatchEANCached:
		w.summary.MatchedByEAN++
	default:
		w.summary.MatchedByTitle++
	}

	entry := w.linkingMap.Upsert(product, amazon, resolution.Method)

	if amazon.HasPrice {
		state.ConsecutivePriceFailures = 0
	} else {
		state.ConsecutivePriceFailures++
	}

	result, err := w.evaluator.Evaluate(product, *amazon)
	if err != nil {
		// The linking entry stays valid: matching and financial evaluation
		// are independent concerns.
		w.summary.Errored++
		w.summary.ErrorsByStage[stageFinancial]++
		state.MarkFailed(product.URL, stageFinancial)
		slog.Debug("financial evaluation failed",
			slog.String("asin", amazon.ASIN),
			slog.Any("error", err),
		)
		return models.CombinedRecord{}, false
	}

	if !finance.Gate(result, w.cfg) || !finance.MeetsCriteria(*amazon, w.cfg) {
		return models.CombinedRecord{}, false
	}

	w.summary.Profitable++
	w.metrics.IncProfitable()
	slog.Info("profitable product found",
		slog.String("title", product.Title),
		slog.String("asin", amazon.ASIN),
		slog.Float64("roi_percent", result.ROIPercent),
		slog.String("net_profit", result.NetProfit.StringFixed(2)),
	)

	return models.CombinedRecord{
		Supplier:    product,
		Amazon:      *amazon,
		Method:      resolution.Method,
		Confidence:  entry.Confidence,
		Financials:  result,
		EvaluatedAt: time.Now().UTC(),
	}, true
}

// shouldContinue is the explicit cycle-decision gate for the outer loop.
func (w *Workflow) shouldContinue(ctx context.Context, next, end int) bool {
	if ctx.Err() != nil {
		return false
	}
	return next < end
}

func (w *Workflow) advance(state *models.ProcessingState, index int) {
	if err := state.Advance(index); err != nil {
		slog.Error("resume index violation", slog.Any("error", err))
	}
}

// checkpoint persists state and linking map. Persistence is best-effort: a
// failed save is logged and retried at the next interval.
func (w *Workflow) checkpoint(state *models.ProcessingState) {
	if err := w.stateStore.Save(state); err != nil {
		slog.Error("processing state checkpoint failed", slog.Any("error", err))
	}
	if err := w.linkingMap.Save(); err != nil {
		slog.Error("linking map checkpoint failed", slog.Any("error", err))
	}
}

// SessionID identifies this run's report artifacts.
func (w *Workflow) SessionID() string {
	return w.sessionID
}
