// Package scraper implements the two extraction surfaces of the pipeline:
// the colly-based supplier catalog scraper and the rate-limited Amazon
// search/detail client.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/fbasourcing/go-source-fba/config"
	"github.com/fbasourcing/go-source-fba/models"
)

// SupplierScraper crawls supplier category pages and yields product records.
type SupplierScraper struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	requestCount int64
	errorCount   int64
	retryCount   int64

	mu           sync.Mutex
	errorsByType map[string]int

	// transport applied to per-category collector clones; tests override it.
	transport http.RoundTripper
}

// NewSupplierScraper builds a scraper bounded to the supplier host.
func NewSupplierScraper(cfg *config.Config, metrics *Metrics) (*SupplierScraper, error) {
	parsed, err := url.Parse(cfg.SupplierBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse supplier base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("supplier base url must include a host")
	}

	// AllowURLRevisit lets the retry manager re-fetch a failed page; colly
	// would otherwise dedup the second visit of the same URL.
	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	collector.WithTransport(transport)

	return &SupplierScraper{
		cfg:          cfg,
		collector:    collector,
		errorsByType: make(map[string]int),
		Metrics:      metrics,
		transport:    transport,
	}, nil
}

// SetTransport overrides the HTTP transport. Used by tests.
func (s *SupplierScraper) SetTransport(rt http.RoundTripper) {
	s.transport = rt
	s.collector.WithTransport(rt)
}

// ScrapeCategory fetches up to maxProducts listings from one category page,
// following pagination links within the category.
func (s *SupplierScraper) ScrapeCategory(ctx context.Context, categoryURL string, maxProducts int) ([]models.SupplierProduct, error) {
	collector := s.collector.Clone()
	if s.transport != nil {
		collector.WithTransport(s.transport)
	}
	retry := newRetryManager(s.cfg, s.Metrics)

	var (
		mu       sync.Mutex
		products []models.SupplierProduct
	)

	collector.OnRequest(func(r *colly.Request) {
		current := atomic.AddInt64(&s.requestCount, 1)
		s.Metrics.IncRequest("supplier")
		r.Ctx.Put("start", time.Now())
		if current%50 == 0 {
			slog.Debug("supplier scrape progress",
				slog.Int64("requests", current),
				slog.String("url", r.URL.String()),
			)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		atomic.AddInt64(&s.errorCount, 1)
		statusCode := 0
		failedURL := ""
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				failedURL = r.Request.URL.String()
			}
		}
		category := errorTypeLabel(classifyError(err, statusCode))

		s.mu.Lock()
		s.errorsByType[category]++
		s.mu.Unlock()

		slog.Error("supplier request error",
			slog.String("url", failedURL),
			slog.String("category", category),
			slog.Any("error", err),
		)
		s.Metrics.IncError(category)
		retry.Schedule(collector, failedURL)
	})

	collector.OnHTML("li.item.product, div.product-item, article.product", func(e *colly.HTMLElement) {
		mu.Lock()
		full := maxProducts > 0 && len(products) >= maxProducts
		mu.Unlock()
		if full || ctx.Err() != nil {
			return
		}

		product := extractSupplierProduct(e, categoryURL)
		if product == nil {
			return
		}
		s.Metrics.IncItems()

		mu.Lock()
		products = append(products, *product)
		mu.Unlock()
	})

	collector.OnHTML("a.next, li.pages-item-next a, a[rel='next']", func(e *colly.HTMLElement) {
		mu.Lock()
		full := maxProducts > 0 && len(products) >= maxProducts
		mu.Unlock()
		if full || ctx.Err() != nil {
			return
		}
		collector.Visit(e.Request.AbsoluteURL(e.Attr("href")))
	})

	if err := collector.Visit(categoryURL); err != nil {
		// A URL the collector refuses outright can never be retried into
		// success; anything request-level was already classified by OnError
		// and handed to the retry schedule.
		if errors.Is(err, colly.ErrForbiddenDomain) || errors.Is(err, colly.ErrMissingURL) {
			retry.Stop()
			return nil, fmt.Errorf("visit category %s: %w", categoryURL, err)
		}
		slog.Debug("category fetch failed, awaiting retries",
			slog.String("category", categoryURL),
			slog.Any("error", err),
		)
	}
	collector.Wait()
	retry.Wait()
	retry.Stop()
	atomic.AddInt64(&s.retryCount, int64(retry.TotalRetries()))

	if maxProducts > 0 && len(products) > maxProducts {
		products = products[:maxProducts]
	}
	return products, nil
}

// ErrorsByType snapshots the error counters accumulated so far.
func (s *SupplierScraper) ErrorsByType() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func extractSupplierProduct(e *colly.HTMLElement, categoryURL string) *models.SupplierProduct {
	title := strings.TrimSpace(e.ChildAttr("a.product-item-link", "title"))
	if title == "" {
		title = strings.TrimSpace(e.ChildText("a.product-item-link, h2 a, h3 a"))
	}
	if title == "" {
		return nil
	}

	href := e.ChildAttr("a.product-item-link, h2 a, h3 a", "href")
	if href == "" {
		return nil
	}

	priceText := strings.TrimSpace(e.ChildText("span.price"))
	price, err := ParsePrice(priceText)
	if err != nil || !price.IsPositive() {
		return nil
	}

	ean := strings.TrimSpace(e.ChildAttr("[data-ean]", "data-ean"))
	if ean == "" {
		ean = strings.TrimSpace(e.ChildText("span.product-ean, span.barcode"))
	}

	return &models.SupplierProduct{
		Title:             title,
		Price:             price,
		URL:               e.Request.AbsoluteURL(href),
		EAN:               ean,
		SourceCategoryURL: categoryURL,
		ExtractedAt:       time.Now().UTC(),
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case http.StatusServiceUnavailable:
			return ErrBlocked{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
