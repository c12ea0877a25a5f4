package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestSafeEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"/markets", "markets"},
		{"/events", "events"},
		{"/series", "series"},
		{"/markets/trades", "markets_trades"},
		{"/markets/{ticker}", "markets_ticker"},
		{"/series/{series_ticker}/markets/{ticker}/candlesticks", "series_series_ticker_markets_ticker_candlesticks"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			if got := SafeEndpoint(tt.endpoint); got != tt.want {
				t.Errorf("SafeEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestBatchNumber(t *testing.T) {
	tests := []struct {
		index int
		want  int
	}{
		{0, 0},
		{999, 0},
		{1000, 1},
		{1999, 1},
		{2000, 2},
		{2399, 2},
	}

	for _, tt := range tests {
		if got := BatchNumber(tt.index); got != tt.want {
			t.Errorf("BatchNumber(%d) = %d, want %d", tt.index, got, tt.want)
		}
	}
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	records := []map[string]any{
		{"ticker": "KXBTC-25AUG", "status": "open"},
		{"ticker": "KXETH-25AUG", "status": "open"},
		{"id": float64(42), "status": "settled"},
	}

	written, skipped, err := w.WriteAll("/markets", records)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if written != 3 {
		t.Errorf("written = %d, want 3", written)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}

	batchDir := filepath.Join(dir, "markets", "batch_0000")
	entries, err := os.ReadDir(batchDir)
	if err != nil {
		t.Fatalf("read batch dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("batch dir has %d files, want 3", len(entries))
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "kalshi_markets_") {
			t.Errorf("unexpected file name %q", e.Name())
		}
		if !strings.HasSuffix(e.Name(), ".json") {
			t.Errorf("file %q missing .json suffix", e.Name())
		}
	}
}

func TestWriteAll_Empty(t *testing.T) {
	w := NewWriter(t.TempDir())
	written, skipped, err := w.WriteAll("/markets", nil)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if written != 0 || skipped != 0 {
		t.Errorf("written=%d skipped=%d, want 0/0", written, skipped)
	}
}

func TestWriteRecord_FileContents(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	record := map[string]any{"ticker": "KXBTC-25AUG", "status": "open"}
	if err := w.WriteRecord("/markets", record, 1500, 2400); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	batchDir := filepath.Join(dir, "markets", "batch_0001")
	entries, err := os.ReadDir(batchDir)
	if err != nil {
		t.Fatalf("read batch dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("batch dir has %d files, want 1", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(batchDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read record file: %v", err)
	}

	var out RecordFile
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal record file: %v", err)
	}

	if out.Endpoint != "/markets" {
		t.Errorf("endpoint = %q, want /markets", out.Endpoint)
	}
	if out.RecordID != "KXBTC-25AUG" {
		t.Errorf("record_id = %q, want KXBTC-25AUG", out.RecordID)
	}
	if len(out.RecordHash) != 16 {
		t.Errorf("record_hash length = %d, want 16", len(out.RecordHash))
	}
	if out.BatchInfo.RecordIndex != 1500 {
		t.Errorf("record_index = %d, want 1500", out.BatchInfo.RecordIndex)
	}
	if out.BatchInfo.BatchNumber != 1 {
		t.Errorf("batch_number = %d, want 1", out.BatchInfo.BatchNumber)
	}
	if out.BatchInfo.TotalRecords != 2400 {
		t.Errorf("total_records = %d, want 2400", out.BatchInfo.TotalRecords)
	}
	if out.Data["status"] != "open" {
		t.Errorf("data.status = %v, want open", out.Data["status"])
	}
	if out.IngestionTime == "" {
		t.Error("ingestion_time is empty")
	}
}

func TestRecordIdentifier(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		index  int
		want   string
	}{
		{"ticker preferred", map[string]any{"ticker": "KXBTC", "id": float64(7)}, 0, "KXBTC"},
		{"id fallback", map[string]any{"id": float64(7)}, 0, "7"},
		{"string id", map[string]any{"id": "ev-123"}, 0, "ev-123"},
		{"positional fallback", map[string]any{"status": "open"}, 0, "record_0001"},
		{"positional is one-based", map[string]any{}, 41, "record_0042"},
		{"empty ticker ignored", map[string]any{"ticker": "", "id": "x"}, 0, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recordIdentifier(tt.record, tt.index); got != tt.want {
				t.Errorf("recordIdentifier = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteAll_BatchAssignment(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	records := make([]map[string]any, 2400)
	for i := range records {
		records[i] = map[string]any{"id": float64(i), "seq": float64(i)}
	}

	written, skipped, err := w.WriteAll("/events", records)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if written != 2400 || skipped != 0 {
		t.Fatalf("written=%d skipped=%d, want 2400/0", written, skipped)
	}

	wantCounts := map[string]int{
		"batch_0000": 1000,
		"batch_0001": 1000,
		"batch_0002": 400,
	}
	for batch, want := range wantCounts {
		entries, err := os.ReadDir(filepath.Join(dir, "events", batch))
		if err != nil {
			t.Fatalf("read %s: %v", batch, err)
		}
		if len(entries) != want {
			t.Errorf("%s has %d files, want %d", batch, len(entries), want)
		}
	}
}

func TestWriteAll_SkipsBadRecord(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	records := []map[string]any{
		{"ticker": "OK-1"},
		{"bad": func() {}}, // not serializable
		{"ticker": "OK-2"},
	}

	written, skipped, err := w.WriteAll("/markets", records)
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if written != 2 {
		t.Errorf("written = %d, want 2", written)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}
