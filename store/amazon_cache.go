package store

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fbasourcing/go-source-fba/models"
)

// ErrStaleEntry marks a cache hit older than the configured max age.
var ErrStaleEntry = errors.New("store: cache entry stale")

// AmazonCache stores one AmazonProduct per file named
// amazon_{ASIN}_{EAN-or-title-hash}.json. The filename embeds which supplier
// product triggered the lookup, since one ASIN can be reached from several
// supplier listings. Decoded entries sit behind an in-memory LRU so hot ASINs
// skip repeated JSON reads.
type AmazonCache struct {
	dir    string
	maxAge time.Duration
	hot    *lru.Cache[string, *models.AmazonProduct]
}

// NewAmazonCache builds a cache rooted at dir with the given freshness window.
func NewAmazonCache(dir string, maxAge time.Duration) (*AmazonCache, error) {
	hot, err := lru.New[string, *models.AmazonProduct](256)
	if err != nil {
		return nil, fmt.Errorf("init amazon cache lru: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create amazon cache dir: %w", err)
	}
	return &AmazonCache{dir: dir, maxAge: maxAge, hot: hot}, nil
}

// ProvenanceKey derives the filename component identifying the supplier
// product that triggered a lookup: the EAN when present, else a short hash of
// the supplier title.
func ProvenanceKey(ean, title string) string {
	if strings.TrimSpace(ean) != "" {
		return strings.TrimSpace(ean)
	}
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(title))))
	return hex.EncodeToString(sum[:])[:12]
}

func (c *AmazonCache) filename(asin, key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("amazon_%s_%s.json", asin, key))
}

// Get returns the cached product for (asin, provenance key) when fresh.
// Stale entries return ErrStaleEntry; missing entries return os.ErrNotExist.
func (c *AmazonCache) Get(asin, key string) (*models.AmazonProduct, error) {
	path := c.filename(asin, key)
	if product, ok := c.hot.Get(path); ok {
		if time.Since(product.FetchedAt) > c.maxAge {
			c.hot.Remove(path)
			return nil, ErrStaleEntry
		}
		return product, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if time.Since(info.ModTime()) > c.maxAge {
		return nil, ErrStaleEntry
	}

	var product models.AmazonProduct
	if err := readJSON(path, &product); err != nil {
		return nil, fmt.Errorf("load amazon cache entry: %w", err)
	}
	c.hot.Add(path, &product)
	return &product, nil
}

// GetByEAN scans cache entries whose filename carries the supplier EAN and
// returns the first fresh product that actually lists that EAN among its
// on-page identifiers. The strict check matters: a filename match alone only
// proves the EAN was used as a search term, not that Amazon confirmed it.
func (c *AmazonCache) GetByEAN(ean string) (*models.AmazonProduct, error) {
	ean = strings.TrimSpace(ean)
	if ean == "" {
		return nil, os.ErrNotExist
	}

	pattern := filepath.Join(c.dir, fmt.Sprintf("amazon_*_%s.json", ean))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan amazon cache: %w", err)
	}

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || time.Since(info.ModTime()) > c.maxAge {
			continue
		}
		var product models.AmazonProduct
		if err := readJSON(path, &product); err != nil {
			continue
		}
		if !product.HasEAN(ean) {
			continue
		}
		c.hot.Add(path, &product)
		return &product, nil
	}
	return nil, os.ErrNotExist
}

// Put writes a product under its provenance key.
func (c *AmazonCache) Put(product *models.AmazonProduct, key string) error {
	if product == nil || product.ASIN == "" {
		return fmt.Errorf("amazon cache: product missing asin")
	}
	path := c.filename(product.ASIN, key)
	if err := AtomicWriteJSON(path, product); err != nil {
		return fmt.Errorf("save amazon cache entry: %w", err)
	}
	c.hot.Add(path, product)
	return nil
}
