package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fbasourcing/go-source-fba/config"
	"github.com/fbasourcing/go-source-fba/finance"
	"github.com/fbasourcing/go-source-fba/matcher"
	"github.com/fbasourcing/go-source-fba/models"
	"github.com/fbasourcing/go-source-fba/report"
	"github.com/fbasourcing/go-source-fba/scraper"
	"github.com/fbasourcing/go-source-fba/store"
	"github.com/fbasourcing/go-source-fba/workflow"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment configuration: %v\n", err)
		os.Exit(1)
	}

	supplierName := flag.String("supplier", cfg.SupplierName, "Supplier name (cache/state file prefix)")
	supplierURL := flag.String("supplier-url", cfg.SupplierBaseURL, "Supplier base URL")
	categories := flag.String("categories", "", "Comma-separated category URLs to scrape")
	maxProducts := flag.Int("max-products", cfg.MaxProductsToProcess, "Maximum products to process this run (0 = unlimited)")
	maxPerCategory := flag.Int("max-per-category", cfg.MaxProductsPerCategory, "Maximum products per category")
	outputDir := flag.String("output", cfg.OutputDir, "Output directory for caches and reports")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", cfg.Verbose, "Enable verbose logging")

	flag.Parse()

	cfg.SupplierName = *supplierName
	cfg.SupplierBaseURL = *supplierURL
	cfg.MaxProductsToProcess = *maxProducts
	cfg.MaxProductsPerCategory = *maxPerCategory
	cfg.OutputDir = *outputDir
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	categoryURLs := splitCategories(*categories)
	if len(categoryURLs) == 0 {
		categoryURLs = []string{cfg.SupplierBaseURL}
	}

	slog.Info("starting sourcing run",
		slog.String("supplier", cfg.SupplierName),
		slog.Int("categories", len(categoryURLs)),
		slog.Int("max_products", cfg.MaxProductsToProcess),
	)

	metrics := scraper.NewMetrics()

	supplierScraper, err := scraper.NewSupplierScraper(cfg, metrics)
	if err != nil {
		slog.Error("initialising supplier scraper", slog.Any("error", err))
		os.Exit(1)
	}

	amazonClient := scraper.NewAmazonClient(cfg, metrics, 20)
	defer amazonClient.Close()

	amazonCache, err := store.NewAmazonCache(filepath.Join(cfg.OutputDir, "amazon_cache"), cfg.CacheMaxAge)
	if err != nil {
		slog.Error("initialising amazon cache", slog.Any("error", err))
		os.Exit(1)
	}
	supplierCache := store.NewSupplierCache(cfg.OutputDir, cfg.SupplierName)
	stateStore := store.NewStateStore(cfg.OutputDir, cfg.SupplierName)
	linkingMap, err := store.NewLinkingMap(cfg.OutputDir)
	if err != nil {
		slog.Error("loading linking map", slog.Any("error", err))
		os.Exit(1)
	}

	productMatcher := matcher.New(cfg, amazonClient, amazonCache)
	evaluator := finance.NewFeeScheduleEvaluator()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current product before checkpointing")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	run := workflow.New(cfg, supplierScraper, productMatcher, evaluator, nil,
		supplierCache, stateStore, linkingMap, metrics)

	profitable, err := run.Run(ctx, categoryURLs)
	if err != nil {
		slog.Error("sourcing run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if len(profitable) > 0 {
		csvPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("fba_profitable_finds_%s.csv", run.SessionID()))
		if err := writeCSVReport(csvPath, profitable); err != nil {
			slog.Error("csv report failed", slog.Any("error", err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(run.Summary(), len(profitable))
}

func writeCSVReport(path string, records []models.CombinedRecord) error {
	writer, err := report.NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := writer.Write(records); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func splitCategories(raw string) []string {
	var urls []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func printSummary(summary models.RunSummary, profitable int) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Sourcing run complete")
	fmt.Printf("  Scraped:         %d\n", summary.ProductsScraped)
	fmt.Printf("  Price-filtered:  %d\n", summary.ProductsFiltered)
	fmt.Printf("  Analyzed:        %d\n", summary.ProductsAnalyzed)
	fmt.Printf("  Matched by EAN:  %d\n", summary.MatchedByEAN)
	fmt.Printf("  Matched by title:%d\n", summary.MatchedByTitle)
	fmt.Printf("  No match:        %d\n", summary.NoMatch)
	fmt.Printf("  Errors:          %d\n", summary.Errored)
	if len(summary.ErrorsByStage) > 0 {
		fmt.Printf("  Error stages:    %v\n", summary.ErrorsByStage)
	}
	fmt.Printf("  Profitable:      %d\n", profitable)
	if summary.CacheReused {
		fmt.Println("  Supplier cache:  reused (no re-scrape)")
	}
	fmt.Printf("  Duration:        %v\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
