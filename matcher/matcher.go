package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fbasourcing/go-source-fba/config"
	"github.com/fbasourcing/go-source-fba/models"
	"github.com/fbasourcing/go-source-fba/scraper"
	"github.com/fbasourcing/go-source-fba/store"
)

// ErrNoMatch indicates neither the EAN path nor the title path produced a
// candidate clearing the confidence threshold. Distinct from transport
// errors so callers can count "couldn't find it" apart from "couldn't
// reach Amazon".
var ErrNoMatch = errors.New("matcher: no acceptable candidate")

// AmazonSearcher is the slice of the Amazon client the matcher consumes.
// Search reports an empty result set as an error (scraper.ErrNoCandidates);
// the matcher also tolerates implementations that return an empty slice.
type AmazonSearcher interface {
	Search(ctx context.Context, query string) ([]scraper.Tile, error)
	FetchProduct(ctx context.Context, asin string) (*models.AmazonProduct, error)
}

// Resolution pairs the matched product with the path that found it.
type Resolution struct {
	Product *models.AmazonProduct
	Method  models.MatchMethod
	Verdict Verdict
}

// Matcher implements the EAN-first, title-fallback resolution strategy.
type Matcher struct {
	cfg       *config.Config
	amazon    AmazonSearcher
	cache     *store.AmazonCache
	validator *Validator
}

// New builds a matcher over the given search client and cache.
func New(cfg *config.Config, amazon AmazonSearcher, cache *store.AmazonCache) *Matcher {
	return &Matcher{
		cfg:       cfg,
		amazon:    amazon,
		cache:     cache,
		validator: NewValidator(cfg),
	}
}

// Resolve finds the best Amazon listing for a supplier product.
//
// Order of attempts: fresh cache entry confirmed by EAN, live EAN search,
// title search gated by the overlap threshold. EAN search results are taken
// in the engine's own relevance order; they are never re-ranked by title
// similarity, since a barcode hit already outranks any fuzzy text signal.
func (m *Matcher) Resolve(ctx context.Context, supplier models.SupplierProduct) (*Resolution, error) {
	if supplier.EAN != "" {
		if cached, err := m.cache.GetByEAN(supplier.EAN); err == nil {
			return &Resolution{
				Product: cached,
				Method:  models.MatchEANCached,
				Verdict: m.validator.Assess(supplier.Title, cached.Title),
			}, nil
		} else if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, store.ErrStaleEntry) {
			slog.Warn("amazon cache lookup failed", slog.String("ean", supplier.EAN), slog.Any("error", err))
		}

		resolution, err := m.resolveByEAN(ctx, supplier)
		if err == nil {
			return resolution, nil
		}
		if !errors.Is(err, scraper.ErrNoCandidates) {
			slog.Debug("ean search failed, falling back to title",
				slog.String("ean", supplier.EAN),
				slog.Any("error", err),
			)
		}
	}

	return m.resolveByTitle(ctx, supplier)
}

func (m *Matcher) resolveByEAN(ctx context.Context, supplier models.SupplierProduct) (*Resolution, error) {
	tiles, err := m.amazon.Search(ctx, supplier.EAN)
	if err != nil {
		return nil, fmt.Errorf("ean search %q: %w", supplier.EAN, err)
	}
	if len(tiles) == 0 {
		return nil, scraper.ErrNoCandidates
	}

	// First organic result wins; the engine's ranking is the signal here.
	chosen := tiles[0]
	product, fromCache, err := m.fetchAndCache(ctx, chosen.ASIN, supplier, true)
	if err != nil {
		return nil, err
	}
	method := models.MatchEAN
	if fromCache {
		method = models.MatchEANCached
	}
	return &Resolution{
		Product: product,
		Method:  method,
		Verdict: m.validator.Assess(supplier.Title, product.Title),
	}, nil
}

func (m *Matcher) resolveByTitle(ctx context.Context, supplier models.SupplierProduct) (*Resolution, error) {
	tiles, err := m.amazon.Search(ctx, supplier.Title)
	if err != nil {
		if errors.Is(err, scraper.ErrNoCandidates) {
			return nil, ErrNoMatch
		}
		return nil, fmt.Errorf("title search %q: %w", supplier.Title, err)
	}

	bestScore := -1.0
	var best scraper.Tile
	for _, tile := range tiles {
		score := TitleOverlap(supplier.Title, tile.Title)
		if score > bestScore {
			bestScore = score
			best = tile
		}
	}
	if bestScore < m.cfg.TitleMatchThreshold {
		// A best-of-the-worst guess is worse than no match.
		return nil, ErrNoMatch
	}

	product, fromCache, err := m.fetchAndCache(ctx, best.ASIN, supplier, false)
	if err != nil {
		return nil, err
	}
	method := models.MatchTitle
	if fromCache {
		method = models.MatchTitleCached
	}
	return &Resolution{
		Product: product,
		Method:  method,
		Verdict: m.validator.Assess(supplier.Title, product.Title),
	}, nil
}

// fetchAndCache pulls the detail page for asin, preferring a fresh cache
// entry. eanConfirmed records that an identifier search located this ASIN, in
// which case the supplier EAN joins the product's known identifiers so a
// later GetByEAN can confirm the entry against the same barcode.
func (m *Matcher) fetchAndCache(ctx context.Context, asin string, supplier models.SupplierProduct, eanConfirmed bool) (*models.AmazonProduct, bool, error) {
	key := store.ProvenanceKey(supplier.EAN, supplier.Title)
	if cached, err := m.cache.Get(asin, key); err == nil {
		return cached, true, nil
	}

	product, err := m.amazon.FetchProduct(ctx, asin)
	if err != nil {
		return nil, false, fmt.Errorf("fetch product %s: %w", asin, err)
	}
	if eanConfirmed && supplier.EAN != "" && !product.HasEAN(supplier.EAN) {
		product.EANsOnPage = append(product.EANsOnPage, supplier.EAN)
	}
	if err := m.cache.Put(product, key); err != nil {
		slog.Warn("amazon cache write failed", slog.String("asin", asin), slog.Any("error", err))
	}
	return product, false, nil
}
