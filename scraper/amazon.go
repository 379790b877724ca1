package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/fbasourcing/go-source-fba/config"
	"github.com/fbasourcing/go-source-fba/models"
)

// ErrNoCandidates indicates a search returned no organic results. Callers
// distinguish this from transport errors when choosing a fallback strategy.
var ErrNoCandidates = errors.New("scraper: no organic candidates")

// ErrClientClosed indicates the Amazon client has been shut down.
var ErrClientClosed = errors.New("scraper: amazon client closed")

// AmazonClient fetches Amazon search pages and product detail pages over a
// single rate-limited HTTP session. The session is stateful and must not be
// shared across concurrent callers; the orchestrator serializes access.
type AmazonClient struct {
	cfg       *config.Config
	client    *http.Client
	metrics   *Metrics
	ticker    *time.Ticker
	closed    chan struct{}
	closeOnce sync.Once
}

// NewAmazonClient builds a client limited to requestsPerMinute.
func NewAmazonClient(cfg *config.Config, metrics *Metrics, requestsPerMinute int) *AmazonClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 20
	}
	return &AmazonClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: metrics,
		ticker:  time.NewTicker(time.Minute / time.Duration(requestsPerMinute)),
		closed:  make(chan struct{}),
	}
}

// Close stops the rate ticker and unblocks pending waiters.
func (a *AmazonClient) Close() {
	a.closeOnce.Do(func() {
		a.ticker.Stop()
		close(a.closed)
	})
}

// SetTransport swaps the HTTP transport. Used by tests.
func (a *AmazonClient) SetTransport(rt http.RoundTripper) {
	a.client.Transport = rt
}

func (a *AmazonClient) fetch(ctx context.Context, endpoint string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.closed:
		return nil, ErrClientClosed
	case <-a.ticker.C:
	}

	start := time.Now()
	a.metrics.IncRequest("amazon")
	resp, err := a.client.Do(req)
	if err != nil {
		a.metrics.IncError(errorTypeLabel(classifyError(err, 0)))
		return nil, err
	}
	defer resp.Body.Close()
	a.metrics.ObserveDuration(time.Since(start))

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, endpoint)
		a.metrics.IncError(errorTypeLabel(classifyError(err, resp.StatusCode)))
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", endpoint, err)
	}
	return doc, nil
}

// Search submits a query and returns the organic (non-sponsored) result tiles
// in the engine's own relevance order.
func (a *AmazonClient) Search(ctx context.Context, query string) ([]Tile, error) {
	endpoint := fmt.Sprintf("%s/s?k=%s", strings.TrimRight(a.cfg.AmazonBaseURL, "/"), url.QueryEscape(query))
	doc, err := a.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var organic []Tile
	doc.Find("div.s-result-item[data-asin]").Each(func(_ int, sel *goquery.Selection) {
		tile := tileFromSelection(sel)
		if tile.ASIN == "" || tile.Title == "" {
			return
		}
		if IsSponsored(tile) {
			return
		}
		organic = append(organic, tile)
	})

	if len(organic) == 0 {
		return nil, ErrNoCandidates
	}
	return organic, nil
}

// FetchProduct retrieves the detail page for one ASIN.
func (a *AmazonClient) FetchProduct(ctx context.Context, asin string) (*models.AmazonProduct, error) {
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return nil, fmt.Errorf("asin is required")
	}
	endpoint := fmt.Sprintf("%s/dp/%s", strings.TrimRight(a.cfg.AmazonBaseURL, "/"), url.PathEscape(asin))
	doc, err := a.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return parseProductPage(doc, asin), nil
}

var (
	reviewCountPattern = regexp.MustCompile(`([\d,]+)`)
	salesRankPattern   = regexp.MustCompile(`([\d,]+)\s+in\b`)
	eanPattern         = regexp.MustCompile(`\b(\d{13}|\d{12}|\d{8})\b`)
)

func parseProductPage(doc *goquery.Document, asin string) *models.AmazonProduct {
	product := &models.AmazonProduct{
		ASIN:      strings.ToUpper(asin),
		Title:     strings.TrimSpace(doc.Find("#productTitle").First().Text()),
		FetchedAt: time.Now().UTC(),
	}

	priceText := firstNonEmpty(
		strings.TrimSpace(doc.Find("span#priceblock_ourprice").First().Text()),
		strings.TrimSpace(doc.Find("span#priceblock_dealprice").First().Text()),
		strings.TrimSpace(doc.Find("span.a-price span.a-offscreen").First().Text()),
	)
	if price, err := ParsePrice(priceText); err == nil {
		product.CurrentPrice = price
		product.HasPrice = true
	}

	ratingText := doc.Find("span[data-hook='rating-out-of-text']").First().Text()
	if ratingText == "" {
		ratingText = doc.Find("span.a-icon-alt").First().Text()
	}
	if fields := strings.Fields(strings.TrimSpace(ratingText)); len(fields) > 0 {
		if rating, err := strconv.ParseFloat(fields[0], 64); err == nil {
			product.Rating = rating
		}
	}

	if m := reviewCountPattern.FindStringSubmatch(doc.Find("#acrCustomerReviewText").First().Text()); len(m) == 2 {
		if count, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			product.ReviewCount = count
		}
	}

	rankText := doc.Find("#SalesRank").First().Text()
	if rankText == "" {
		doc.Find("#detailBullets_feature_div li, #productDetails_detailBullets_sections1 tr").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := sel.Text()
			if strings.Contains(text, "Best Sellers Rank") {
				rankText = text
				return false
			}
			return true
		})
	}
	if m := salesRankPattern.FindStringSubmatch(rankText); len(m) == 2 {
		if rank, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			product.SalesRank = rank
		}
	}

	seen := make(map[string]struct{})
	doc.Find("#detailBullets_feature_div li, #productDetails_techSpec_section_1 tr, #productDetails_detailBullets_sections1 tr").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		lower := strings.ToLower(text)
		if !strings.Contains(lower, "ean") && !strings.Contains(lower, "upc") && !strings.Contains(lower, "gtin") {
			return
		}
		for _, match := range eanPattern.FindAllString(text, -1) {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			product.EANsOnPage = append(product.EANsOnPage, match)
		}
	})

	fees := make(map[string]decimal.Decimal)
	doc.Find("table#fee-breakdown tr").Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find("td").First().Text())
		amountText := strings.TrimSpace(sel.Find("td").Last().Text())
		if name == "" {
			return
		}
		if amount, err := ParsePrice(amountText); err == nil {
			fees[name] = amount
		}
	})
	if len(fees) > 0 {
		product.Fees = fees
	}

	return product
}

// ParsePrice strips currency symbols and grouping from a displayed price.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("£", "", "$", "", "€", "", ",", "", "\u00a0", " ").Replace(text)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty price text")
	}
	if fields := strings.Fields(cleaned); len(fields) > 0 {
		cleaned = fields[0]
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", text, err)
	}
	return price, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
