package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fbasourcing/go-source-fba/models"
)

// LinkingMap is the persistent supplier-to-Amazon correspondence table,
// keyed by supplier identifier (EAN when published, else listing URL).
// Upserts are last-write-wins; persistence is atomic.
type LinkingMap struct {
	path    string
	entries map[string]models.LinkingMapEntry
}

// NewLinkingMap opens (or initialises) the map at dir/linking_map.json.
func NewLinkingMap(dir string) (*LinkingMap, error) {
	lm := &LinkingMap{
		path:    filepath.Join(dir, "linking_map.json"),
		entries: make(map[string]models.LinkingMapEntry),
	}
	if err := readJSON(lm.path, &lm.entries); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load linking map: %w", err)
		}
	}
	return lm, nil
}

// Upsert records a resolved match. Confidence is derived from the method that
// actually succeeded, never from which supplier data happened to be present.
func (lm *LinkingMap) Upsert(supplier models.SupplierProduct, amazon *models.AmazonProduct, method models.MatchMethod) models.LinkingMapEntry {
	entry := models.LinkingMapEntry{
		SupplierIdentifier: supplier.Identifier(),
		ASIN:               amazon.ASIN,
		Method:             method,
		Confidence:         models.ConfidenceForMethod(method),
		SupplierPrice:      supplier.Price,
		AmazonPrice:        amazon.CurrentPrice,
		CreatedAt:          time.Now().UTC(),
	}
	lm.entries[entry.SupplierIdentifier] = entry
	return entry
}

// Get returns the active entry for a supplier identifier.
func (lm *LinkingMap) Get(identifier string) (models.LinkingMapEntry, bool) {
	entry, ok := lm.entries[identifier]
	return entry, ok
}

// Len returns the number of active links.
func (lm *LinkingMap) Len() int {
	return len(lm.entries)
}

// Save persists the map atomically.
func (lm *LinkingMap) Save() error {
	if err := AtomicWriteJSON(lm.path, lm.entries); err != nil {
		return fmt.Errorf("save linking map: %w", err)
	}
	return nil
}
