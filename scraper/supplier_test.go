package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"

	"github.com/fbasourcing/go-source-fba/config"
)

const categoryPageHTML = `<html><body>
<ul>
<li class="item product">
  <a class="product-item-link" href="/pound-lines/fairy-liquid" title="Fairy Washing Up Liquid 500ml"></a>
  <span class="price">£1.99</span>
  <span class="product-ean">5000112630992</span>
</li>
<li class="item product">
  <a class="product-item-link" href="/pound-lines/sponge-pack" title="Sponge Scourer 10 Pack"></a>
  <span class="price">£0.89</span>
</li>
<li class="item product">
  <a class="product-item-link" href="/pound-lines/broken-listing" title="Broken Listing"></a>
  <span class="price">call for price</span>
</li>
</ul>
</body></html>`

// htmlResponder serves body with an HTML content type; the collector only
// parses responses it recognises as HTML.
func htmlResponder(body string) httpmock.Responder {
	return httpmock.NewStringResponder(http.StatusOK, body).
		HeaderSet(http.Header{"Content-Type": []string{"text/html; charset=utf-8"}})
}

func newTestSupplierScraper(t *testing.T) (*SupplierScraper, *httpmock.MockTransport, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SupplierBaseURL = "http://supplier.test"
	cfg.MaxRetries = 0

	s, err := NewSupplierScraper(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new supplier scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	s.SetTransport(transport)
	return s, transport, cfg
}

func TestScrapeCategoryExtractsProducts(t *testing.T) {
	s, transport, _ := newTestSupplierScraper(t)
	transport.RegisterResponder("GET", "http://supplier.test/pound-lines",
		htmlResponder(categoryPageHTML))

	products, err := s.ScrapeCategory(context.Background(), "http://supplier.test/pound-lines", 0)
	if err != nil {
		t.Fatalf("scrape category: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2 (unparseable price dropped)", len(products))
	}

	first := products[0]
	if first.Title != "Fairy Washing Up Liquid 500ml" {
		t.Fatalf("title = %q", first.Title)
	}
	if !first.Price.Equal(decimal.NewFromFloat(1.99)) {
		t.Fatalf("price = %s, want 1.99", first.Price)
	}
	if first.EAN != "5000112630992" {
		t.Fatalf("ean = %q", first.EAN)
	}
	if first.URL != "http://supplier.test/pound-lines/fairy-liquid" {
		t.Fatalf("url = %q, want absolute", first.URL)
	}
	if first.SourceCategoryURL != "http://supplier.test/pound-lines" {
		t.Fatalf("source category = %q", first.SourceCategoryURL)
	}

	if products[1].EAN != "" {
		t.Fatalf("second product should have no EAN, got %q", products[1].EAN)
	}
}

func TestScrapeCategoryHonoursLimit(t *testing.T) {
	s, transport, _ := newTestSupplierScraper(t)
	transport.RegisterResponder("GET", "http://supplier.test/pound-lines",
		htmlResponder(categoryPageHTML))

	products, err := s.ScrapeCategory(context.Background(), "http://supplier.test/pound-lines", 1)
	if err != nil {
		t.Fatalf("scrape category: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("products = %d, want 1", len(products))
	}
}

func TestScrapeCategoryRecordsErrors(t *testing.T) {
	s, transport, _ := newTestSupplierScraper(t)
	transport.RegisterResponder("GET", "http://supplier.test/missing",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	products, err := s.ScrapeCategory(context.Background(), "http://supplier.test/missing", 0)
	if err != nil {
		t.Fatalf("scrape should not fail the call: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("products = %d, want 0", len(products))
	}
	errorsByType := s.ErrorsByType()
	if errorsByType["not_found"] != 1 {
		t.Fatalf("errorsByType = %v, want one not_found", errorsByType)
	}
}

func TestScrapeCategoryRejectsForeignHost(t *testing.T) {
	s, _, _ := newTestSupplierScraper(t)

	_, err := s.ScrapeCategory(context.Background(), "http://elsewhere.test/catalog", 0)
	if err == nil {
		t.Fatal("a category outside the supplier domain should fail outright")
	}
}

func TestScrapeCategoryRetriesFailedFetch(t *testing.T) {
	s, transport, cfg := newTestSupplierScraper(t)
	cfg.MaxRetries = 2
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.RetryBackoffMax = 20 * time.Millisecond

	var calls int32
	transport.RegisterResponder("GET", "http://supplier.test/pound-lines",
		func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return httpmock.NewStringResponse(http.StatusInternalServerError, ""), nil
			}
			resp := httpmock.NewStringResponse(http.StatusOK, categoryPageHTML)
			resp.Header.Set("Content-Type", "text/html; charset=utf-8")
			return resp, nil
		})

	products, err := s.ScrapeCategory(context.Background(), "http://supplier.test/pound-lines", 0)
	if err != nil {
		t.Fatalf("scrape category: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("server calls = %d, want the failed fetch plus one retry", got)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2 extracted by the retried fetch", len(products))
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "blocked", err: nil, statusCode: http.StatusServiceUnavailable, expected: "blocked"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestRetryManagerRespectsLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Hour
	cfg.RetryBackoffMax = time.Hour
	rm := newRetryManager(cfg, NewMetrics())

	s, _, _ := newTestSupplierScraper(t)
	collector := s.collector.Clone()

	url := "http://supplier.test/page"
	if !rm.Schedule(collector, url) {
		t.Fatal("first retry should be scheduled")
	}
	if !rm.Schedule(collector, url) {
		t.Fatal("second retry should be scheduled")
	}
	if rm.Schedule(collector, url) {
		t.Fatal("third retry should not be scheduled")
	}

	rm.Stop()
	rm.Wait()
	if got := rm.TotalRetries(); got != 2 {
		t.Fatalf("total retries = %d, want 2", got)
	}
	if rm.Schedule(collector, url) {
		t.Fatal("stopped manager should not schedule")
	}
}

func TestRetryManagerBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	rm := newRetryManager(cfg, NewMetrics())

	for attempt := 1; attempt <= 8; attempt++ {
		if delay := rm.backoff(attempt); delay > cfg.RetryBackoffMax {
			t.Fatalf("backoff(%d) = %v exceeds cap %v", attempt, delay, cfg.RetryBackoffMax)
		}
	}
}

func TestScrapeCategoryFollowsPagination(t *testing.T) {
	s, transport, _ := newTestSupplierScraper(t)

	page1 := `<html><body>
<li class="item product">
  <a class="product-item-link" href="/p/one" title="Product One"></a>
  <span class="price">£2.00</span>
</li>
<a class="next" href="/pound-lines?p=2">Next</a>
</body></html>`
	page2 := `<html><body>
<li class="item product">
  <a class="product-item-link" href="/p/two" title="Product Two"></a>
  <span class="price">£3.00</span>
</li>
</body></html>`

	transport.RegisterResponder("GET", "http://supplier.test/pound-lines",
		htmlResponder(page1))
	transport.RegisterResponder("GET", "http://supplier.test/pound-lines?p=2",
		htmlResponder(page2))

	products, err := s.ScrapeCategory(context.Background(), "http://supplier.test/pound-lines", 0)
	if err != nil {
		t.Fatalf("scrape category: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2 across pages", len(products))
	}
}
