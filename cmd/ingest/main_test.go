package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/kalshi-ingest/internal/testutil"
)

func TestRun_InvalidConfigPath(t *testing.T) {
	if err := run("/nonexistent/ingest.yaml", false); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetCollection("/markets", "markets", [][]map[string]any{
		testutil.MakeItems("MKT", 0, 3),
		testutil.MakeItems("MKT", 3, 2),
	})

	dir := t.TempDir()
	discovery := `{
  "public_endpoints": [
    {
      "endpoint": "/markets",
      "description": "Get all markets",
      "capabilities": ["Supports pagination", "Returns 'markets' field"],
      "method": "GET"
    }
  ]
}`
	if err := os.WriteFile(filepath.Join(dir, "kalshi_api_discovery_20260101_000000.json"), []byte(discovery), 0o644); err != nil {
		t.Fatalf("write discovery: %v", err)
	}

	configPath := filepath.Join(dir, "ingest.yaml")
	content := fmt.Sprintf(`
api:
  base_url: %s
pacing:
  initial_delay: 1ms
  min_delay: 1ms
session:
  output_root: %s
  discovery_dir: %s
`, api.URL(), dir, dir)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := run(configPath, false); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	sessions, err := filepath.Glob(filepath.Join(dir, "kalshi_ingestion_*"))
	if err != nil || len(sessions) != 1 {
		t.Fatalf("session dirs = %v (err %v), want exactly one", sessions, err)
	}
	files, err := filepath.Glob(filepath.Join(sessions[0], "markets", "batch_0000", "*.json"))
	if err != nil {
		t.Fatalf("glob record files: %v", err)
	}
	if len(files) != 5 {
		t.Errorf("record files = %d, want 5", len(files))
	}
}
