package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fbasourcing/go-source-fba/models"
)

func TestAtomicWriteJSONReplacesWithoutTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := AtomicWriteJSON(path, map[string]int{"v": 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWriteJSON(path, map[string]int{"v": 2}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	var decoded map[string]int
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["v"] != 2 {
		t.Fatalf("v = %d, want 2", decoded["v"])
	}

	// A leftover temp file stands in for a crash mid-write: the target file
	// must still decode cleanly.
	if err := os.WriteFile(filepath.Join(dir, "state.json.tmp-crash"), []byte("{\"v\":"), 0o644); err != nil {
		t.Fatalf("plant partial temp file: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("target corrupted by partial temp write: %v", err)
	}
}

func TestSupplierCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewSupplierCache(dir, "acme")

	products, age, err := cache.Load()
	if err != nil {
		t.Fatalf("load missing cache: %v", err)
	}
	if len(products) != 0 || age != 0 {
		t.Fatalf("missing cache should be empty, got %d products", len(products))
	}

	saved := []models.SupplierProduct{
		{Title: "Widget", Price: decimal.NewFromFloat(2.50), URL: "https://supplier.test/widget", ExtractedAt: time.Now()},
	}
	if err := cache.Save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	products, _, err = cache.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(products) != 1 || products[0].Title != "Widget" {
		t.Fatalf("unexpected products: %+v", products)
	}
	if !products[0].Price.Equal(decimal.NewFromFloat(2.50)) {
		t.Fatalf("price = %s, want 2.50", products[0].Price)
	}

	if !cache.Fresh(time.Hour) {
		t.Fatal("just-written cache should be fresh")
	}
	if cache.Fresh(0) {
		t.Fatal("zero max age should never be fresh")
	}
}

func TestAmazonCacheGetAndStaleness(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewAmazonCache(dir, time.Hour)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	product := &models.AmazonProduct{
		ASIN:         "B00TESTASIN",
		Title:        "Fairy Washing Up Liquid",
		CurrentPrice: decimal.NewFromFloat(9.99),
		HasPrice:     true,
		EANsOnPage:   []string{"5000112630992"},
		FetchedAt:    time.Now().UTC(),
	}
	key := ProvenanceKey("5000112630992", product.Title)
	if err := cache.Put(product, key); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cache.Get("B00TESTASIN", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != product.Title {
		t.Fatalf("title = %q, want %q", got.Title, product.Title)
	}

	if _, err := cache.Get("B00MISSING1", key); !os.IsNotExist(err) {
		t.Fatalf("missing entry error = %v, want not-exist", err)
	}

	// Entries older than max age are rejected, not silently reused.
	stale, err := NewAmazonCache(dir, time.Nanosecond)
	if err != nil {
		t.Fatalf("new stale-view cache: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := stale.Get("B00TESTASIN", key); err == nil {
		t.Fatal("expected stale entry to be rejected")
	}
}

func TestAmazonCacheGetByEANStrict(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewAmazonCache(dir, time.Hour)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	confirmed := &models.AmazonProduct{
		ASIN:       "B00CONFIRM1",
		Title:      "Confirmed product",
		EANsOnPage: []string{"5000112630992"},
		FetchedAt:  time.Now().UTC(),
	}
	if err := cache.Put(confirmed, "5000112630992"); err != nil {
		t.Fatalf("put confirmed: %v", err)
	}

	// Filename carries the EAN but the page never listed it: the strict
	// policy refuses to reuse it.
	unconfirmed := &models.AmazonProduct{
		ASIN:      "B00UNCONF01",
		Title:     "Unconfirmed product",
		FetchedAt: time.Now().UTC(),
	}
	if err := cache.Put(unconfirmed, "4011200296908"); err != nil {
		t.Fatalf("put unconfirmed: %v", err)
	}

	got, err := cache.GetByEAN("5000112630992")
	if err != nil {
		t.Fatalf("get by ean: %v", err)
	}
	if got.ASIN != "B00CONFIRM1" {
		t.Fatalf("asin = %s, want B00CONFIRM1", got.ASIN)
	}

	if _, err := cache.GetByEAN("4011200296908"); !os.IsNotExist(err) {
		t.Fatalf("unconfirmed EAN should miss, got %v", err)
	}
	if _, err := cache.GetByEAN(""); !os.IsNotExist(err) {
		t.Fatalf("empty EAN should miss, got %v", err)
	}
}

func TestProvenanceKey(t *testing.T) {
	if got := ProvenanceKey("5000112630992", "anything"); got != "5000112630992" {
		t.Fatalf("key = %q, want the EAN", got)
	}
	hashed := ProvenanceKey("", "Fairy Washing Up Liquid")
	if hashed == "" || hashed == "Fairy Washing Up Liquid" {
		t.Fatalf("title key should be hashed, got %q", hashed)
	}
	if hashed != ProvenanceKey("", "  fairy washing up liquid  ") {
		t.Fatal("title hashing should normalise case and spacing")
	}
}

func TestLinkingMapUpsertLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	lm, err := NewLinkingMap(dir)
	if err != nil {
		t.Fatalf("new linking map: %v", err)
	}

	supplier := models.SupplierProduct{
		Title: "Widget",
		Price: decimal.NewFromFloat(2.00),
		URL:   "https://supplier.test/widget",
		EAN:   "5000112630992",
	}
	first := &models.AmazonProduct{ASIN: "B000000001", CurrentPrice: decimal.NewFromFloat(8.00)}
	second := &models.AmazonProduct{ASIN: "B000000002", CurrentPrice: decimal.NewFromFloat(9.00)}

	lm.Upsert(supplier, first, models.MatchTitle)
	entry := lm.Upsert(supplier, second, models.MatchEAN)

	if lm.Len() != 1 {
		t.Fatalf("len = %d, want 1 (last write wins)", lm.Len())
	}
	if entry.ASIN != "B000000002" {
		t.Fatalf("asin = %s, want B000000002", entry.ASIN)
	}
	if entry.Confidence != models.ConfidenceHigh {
		t.Fatalf("confidence = %s, want high for an EAN match", entry.Confidence)
	}

	if err := lm.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	reloaded, err := NewLinkingMap(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.Get("5000112630992")
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if got.Method != models.MatchEAN {
		t.Fatalf("method = %s, want EAN", got.Method)
	}
}

func TestStateStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ss := NewStateStore(dir, "acme")

	state, err := ss.Load()
	if err != nil {
		t.Fatalf("load missing state: %v", err)
	}
	if state.Status != models.StatusNotStarted {
		t.Fatalf("status = %s, want not_started", state.Status)
	}

	state.Advance(7)
	state.TotalProducts = 50
	state.Status = models.StatusInProgress
	state.MarkFailed("https://supplier.test/x", "failed_amazon_extraction")
	if err := ss.Save(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := ss.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.LastProcessedIndex != 7 || reloaded.TotalProducts != 50 {
		t.Fatalf("reloaded state = %+v", reloaded)
	}
	if reloaded.FailedStages["https://supplier.test/x"] != "failed_amazon_extraction" {
		t.Fatalf("failure annotation lost: %+v", reloaded.FailedStages)
	}
}
