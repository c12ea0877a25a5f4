// Package store persists accumulated item sequences as one durable file per
// record, sharded into fixed-size batch directories. One file per record
// keeps partial downstream failures cheap: no large page file ever needs
// re-parsing to recover a single record.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kalshi-ingest/pkg/dedup"
	"github.com/Sternrassler/kalshi-ingest/pkg/logging"
)

// Prometheus metrics for persistence operations.
var (
	recordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_written_total",
		Help: "Total record files written by endpoint",
	}, []string{"endpoint"})

	recordsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_skipped_total",
		Help: "Total records skipped due to write or serialization failures",
	}, []string{"endpoint"})
)

// BatchSize is the number of records per batch directory.
const BatchSize = 1000

// BatchNumber returns the batch a zero-based record index belongs to,
// independent of fetch order.
func BatchNumber(index int) int {
	return index / BatchSize
}

// SafeEndpoint returns the endpoint path with slashes replaced and
// placeholder braces stripped, suitable for directory and file names.
func SafeEndpoint(endpoint string) string {
	s := strings.ReplaceAll(endpoint, "/", "_")
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	return strings.Trim(s, "_")
}

// BatchInfo locates a record within its endpoint's accumulated sequence.
type BatchInfo struct {
	RecordIndex  int `json:"record_index"`
	BatchNumber  int `json:"batch_number"`
	TotalRecords int `json:"total_records"`
}

// RecordFile is the on-disk document written for each record, embedding
// provenance metadata alongside the raw payload.
type RecordFile struct {
	Endpoint      string         `json:"endpoint"`
	IngestionTime string         `json:"ingestion_time"`
	RecordID      string         `json:"record_id"`
	RecordHash    string         `json:"record_hash"`
	BatchInfo     BatchInfo      `json:"batch_info"`
	Data          map[string]any `json:"data"`
}

// Writer persists records under a session root directory, one subdirectory
// per endpoint and one subdirectory per batch. Concurrent WriteRecord calls
// are safe as long as each caller owns distinct record indexes; the writer
// holds no mutable state beyond the filesystem.
type Writer struct {
	root      string
	timestamp string
	logger    zerolog.Logger
}

// NewWriter creates a writer rooted at dir. The ingestion timestamp embedded
// in file names and metadata is fixed at creation.
func NewWriter(root string) *Writer {
	return &Writer{
		root:      root,
		timestamp: time.Now().Format("20060102_150405"),
		logger:    logging.NewLogger("store"),
	}
}

// Root returns the session root directory.
func (w *Writer) Root() string {
	return w.root
}

// WriteAll writes one file per record for a completed item sequence.
// Returns the number of files written and the number of records skipped.
// A single bad record is skipped and counted, never fatal; only a failure
// to create the output directory tree aborts.
func (w *Writer) WriteAll(endpoint string, records []map[string]any) (written, skipped int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	w.logger.Info().
		Str("endpoint", endpoint).
		Int("records", len(records)).
		Msg("Saving records")

	for i, record := range records {
		if err := w.WriteRecord(endpoint, record, i, len(records)); err != nil {
			if dirErr, ok := err.(*dirError); ok {
				return written, skipped, dirErr.err
			}
			skipped++
			recordsSkippedTotal.WithLabelValues(endpoint).Inc()
			w.logger.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("record_index", i).
				Msg("Skipping record, write failed")
			continue
		}
		written++

		if (i+1)%BatchSize == 0 {
			w.logger.Info().
				Str("endpoint", endpoint).
				Int("batch", BatchNumber(i)).
				Int("from", i-BatchSize+1).
				Int("to", i).
				Msg("Batch saved")
		}
	}

	w.logger.Info().
		Str("endpoint", endpoint).
		Int("files", written).
		Int("skipped", skipped).
		Msg("Save complete")

	return written, skipped, nil
}

// WriteRecord writes a single record at a known position within the
// endpoint's sequence. The parallel fetch path calls this directly with
// pre-computed indexes; each worker owns distinct files, so no
// synchronization is needed on the persistence path.
func (w *Writer) WriteRecord(endpoint string, record map[string]any, index, total int) error {
	hash, err := dedup.Hash(record)
	if err != nil {
		return fmt.Errorf("hash record: %w", err)
	}

	safe := SafeEndpoint(endpoint)
	batchDir := filepath.Join(w.root, safe, fmt.Sprintf("batch_%04d", BatchNumber(index)))
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return &dirError{err: fmt.Errorf("create batch dir: %w", err)}
	}

	recordID := recordIdentifier(record, index)
	filename := fmt.Sprintf("kalshi_%s_%s_%s.json", safe, recordID, w.timestamp)
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "__", "_")

	out := RecordFile{
		Endpoint:      endpoint,
		IngestionTime: w.timestamp,
		RecordID:      recordID,
		RecordHash:    hash,
		BatchInfo: BatchInfo{
			RecordIndex:  index,
			BatchNumber:  BatchNumber(index),
			TotalRecords: total,
		},
		Data: record,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := os.WriteFile(filepath.Join(batchDir, filename), data, 0o644); err != nil {
		return fmt.Errorf("write record file: %w", err)
	}

	recordsWrittenTotal.WithLabelValues(endpoint).Inc()
	return nil
}

// recordIdentifier derives a stable record id from an identifier-like field,
// falling back to a zero-padded positional id.
func recordIdentifier(record map[string]any, index int) string {
	for _, field := range []string{"ticker", "id"} {
		switch v := record[field].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return fmt.Sprintf("record_%04d", index+1)
}

// dirError marks directory-creation failures, which abort a WriteAll rather
// than being skipped per record.
type dirError struct {
	err error
}

func (e *dirError) Error() string { return e.err.Error() }
func (e *dirError) Unwrap() error { return e.err }
