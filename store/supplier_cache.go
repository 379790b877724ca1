package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fbasourcing/go-source-fba/models"
)

// SupplierCache persists the scraped product list for one supplier as
// {supplier}_products_cache.json.
type SupplierCache struct {
	path string
}

// NewSupplierCache places the cache file under dir.
func NewSupplierCache(dir, supplierName string) *SupplierCache {
	return &SupplierCache{
		path: filepath.Join(dir, fmt.Sprintf("%s_products_cache.json", supplierName)),
	}
}

// Path returns the backing file location.
func (c *SupplierCache) Path() string {
	return c.path
}

// Load reads the cached product list and the file age. A missing file returns
// an empty slice with no error; callers treat empty as "must scrape".
func (c *SupplierCache) Load() ([]models.SupplierProduct, time.Duration, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("stat supplier cache: %w", err)
	}

	var products []models.SupplierProduct
	if err := readJSON(c.path, &products); err != nil {
		return nil, 0, fmt.Errorf("load supplier cache: %w", err)
	}
	return products, time.Since(info.ModTime()), nil
}

// Save replaces the cached product list atomically.
func (c *SupplierCache) Save(products []models.SupplierProduct) error {
	if err := AtomicWriteJSON(c.path, products); err != nil {
		return fmt.Errorf("save supplier cache: %w", err)
	}
	return nil
}

// Fresh reports whether the cache file exists, has content, and is younger
// than maxAge.
func (c *SupplierCache) Fresh(maxAge time.Duration) bool {
	products, age, err := c.Load()
	if err != nil || len(products) == 0 {
		return false
	}
	return age <= maxAge
}
