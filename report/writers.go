// Package report emits the end-of-run artifacts: the profitable-finds JSON
// report and the operator CSV of combined records.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fbasourcing/go-source-fba/models"
	"github.com/fbasourcing/go-source-fba/store"
)

// JSONReportPath names the profitable-finds report for one session.
func JSONReportPath(dir, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("fba_profitable_finds_%s.json", sessionID))
}

// WriteJSONReport persists the profitable records atomically.
func WriteJSONReport(path string, records []models.CombinedRecord) error {
	if records == nil {
		records = []models.CombinedRecord{}
	}
	if err := store.AtomicWriteJSON(path, records); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}

// CSVWriter streams combined records to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter initialises the file and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv report: %w", err)
	}

	writer := csv.NewWriter(f)
	header := []string{
		"supplier_title", "supplier_price", "supplier_ean", "supplier_url",
		"asin", "amazon_title", "amazon_price", "rating", "review_count", "sales_rank",
		"match_method", "confidence", "roi_percent", "net_profit", "evaluated_at",
	}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVWriter{file: f, writer: writer}, nil
}

// Write appends combined records.
func (w *CSVWriter) Write(records []models.CombinedRecord) error {
	for _, r := range records {
		row := []string{
			r.Supplier.Title,
			r.Supplier.Price.StringFixed(2),
			r.Supplier.EAN,
			r.Supplier.URL,
			r.Amazon.ASIN,
			r.Amazon.Title,
			r.Amazon.CurrentPrice.StringFixed(2),
			strconv.FormatFloat(r.Amazon.Rating, 'f', 1, 64),
			strconv.Itoa(r.Amazon.ReviewCount),
			strconv.Itoa(r.Amazon.SalesRank),
			string(r.Method),
			string(r.Confidence),
			strconv.FormatFloat(r.Financials.ROIPercent, 'f', 2, 64),
			r.Financials.NetProfit.StringFixed(2),
			r.EvaluatedAt.Format(time.RFC3339),
		}
		if err := w.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (w *CSVWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return w.file.Close()
}

// Validate ensures the report holds content beyond the header.
func (w *CSVWriter) Validate() error {
	info, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv report: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv report is empty")
	}
	return nil
}
