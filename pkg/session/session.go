// Package session orchestrates a full ingestion run: one endpoint at a time
// through pagination, deduplication and persistence, with per-endpoint
// failure isolation and an aggregate summary written at the end.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kalshi-ingest/pkg/catalog"
	"github.com/Sternrassler/kalshi-ingest/pkg/logging"
	"github.com/Sternrassler/kalshi-ingest/pkg/paginate"
	"github.com/Sternrassler/kalshi-ingest/pkg/store"
)

var (
	endpointsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_endpoints_processed_total",
		Help: "Endpoints processed per session by outcome",
	}, []string{"outcome"})

	sessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_session_duration_seconds",
		Help:    "Wall clock duration of complete ingestion sessions",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)

// Config holds session orchestration settings.
type Config struct {
	// OutputRoot is the directory under which the session directory is
	// created. Empty means the current working directory.
	OutputRoot string
	// Parallel selects the two-phase parallel strategy per endpoint.
	Parallel bool
	// Workers sizes the parallel worker pool. Ignored when Parallel is
	// false; clamped by the paginate package.
	Workers int
}

// DefaultConfig returns sequential processing in the working directory.
func DefaultConfig() Config {
	return Config{
		OutputRoot: ".",
		Parallel:   false,
		Workers:    10,
	}
}

// EndpointResult is the immutable per-endpoint outcome folded into the
// session summary.
type EndpointResult struct {
	Endpoint         string  `json:"endpoint"`
	Success          bool    `json:"success"`
	RecordsProcessed int     `json:"records_processed"`
	FilesSaved       int     `json:"files_saved"`
	DuplicatesFound  int     `json:"duplicates_found"`
	PagesProcessed   int     `json:"pages_processed"`
	DurationSeconds  float64 `json:"duration_seconds"`
	RecordsPerSecond float64 `json:"records_per_second"`
}

// Summary aggregates all endpoint results for one session. It is written
// once at session end and never mutated afterwards.
type Summary struct {
	SessionStart            string           `json:"session_start"`
	SessionDurationSeconds  float64          `json:"session_duration_seconds"`
	TotalEndpointsProcessed int              `json:"total_endpoints_processed"`
	SuccessfulEndpoints     []string         `json:"successful_endpoints"`
	FailedEndpoints         []string         `json:"failed_endpoints"`
	TotalUniqueRecords      int              `json:"total_unique_records"`
	TotalFilesSaved         int              `json:"total_files_saved"`
	OutputFolder            string           `json:"output_folder"`
	EndpointResults         []EndpointResult `json:"endpoint_results"`
}

// Orchestrator runs bulk ingestion over an endpoint catalog. Endpoints are
// processed strictly one at a time; pacing and dedup state never interleave
// across endpoints.
type Orchestrator struct {
	fetcher paginate.PageFetcher
	catalog *catalog.Catalog
	config  Config
	logger  zerolog.Logger

	now func() time.Time
}

// New creates an orchestrator over a catalog and a resilient page fetcher.
func New(fetcher paginate.PageFetcher, cat *catalog.Catalog, config Config) *Orchestrator {
	if config.OutputRoot == "" {
		config.OutputRoot = "."
	}
	return &Orchestrator{
		fetcher: fetcher,
		catalog: cat,
		config:  config,
		logger:  logging.NewLogger("session"),
		now:     time.Now,
	}
}

// Run processes every non-parameterized endpoint in catalog order and writes
// the session summary into the session directory. Endpoint failures are
// isolated; only a failure to create the session directory or to persist the
// summary aborts.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := o.now()
	timestamp := start.Format("20060102_150405")
	sessionDir := filepath.Join(o.config.OutputRoot, fmt.Sprintf("kalshi_ingestion_%s", timestamp))
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	o.logger.Info().
		Str("output", sessionDir).
		Int("endpoints", o.catalog.Len()).
		Bool("parallel", o.config.Parallel).
		Msg("Session start")

	writer := store.NewWriter(sessionDir)

	summary := &Summary{
		SessionStart:        start.Format(time.RFC3339),
		SuccessfulEndpoints: []string{},
		FailedEndpoints:     []string{},
		OutputFolder:        sessionDir,
		EndpointResults:     []EndpointResult{},
	}

	for _, desc := range o.catalog.Descriptors() {
		if desc.IsParameterized() {
			o.logger.Info().
				Str("endpoint", desc.Path).
				Msg("Skipping parameterized endpoint")
			continue
		}

		result := o.processEndpoint(ctx, desc, writer)
		summary.EndpointResults = append(summary.EndpointResults, result)

		if result.Success {
			summary.SuccessfulEndpoints = append(summary.SuccessfulEndpoints, desc.Path)
			summary.TotalUniqueRecords += result.RecordsProcessed
			summary.TotalFilesSaved += result.FilesSaved
			endpointsProcessedTotal.WithLabelValues("success").Inc()
		} else {
			summary.FailedEndpoints = append(summary.FailedEndpoints, desc.Path)
			endpointsProcessedTotal.WithLabelValues("failure").Inc()
		}
	}

	summary.TotalEndpointsProcessed = len(summary.EndpointResults)
	summary.SessionDurationSeconds = o.now().Sub(start).Seconds()
	sessionDurationSeconds.Observe(summary.SessionDurationSeconds)

	if err := o.writeSummary(sessionDir, timestamp, summary); err != nil {
		return summary, err
	}

	o.logger.Info().
		Int("endpoints", summary.TotalEndpointsProcessed).
		Int("successful", len(summary.SuccessfulEndpoints)).
		Int("failed", len(summary.FailedEndpoints)).
		Int("records", summary.TotalUniqueRecords).
		Int("files", summary.TotalFilesSaved).
		Float64("duration_seconds", summary.SessionDurationSeconds).
		Msg("Session complete")

	return summary, nil
}

// processEndpoint runs one endpoint to completion. An endpoint counts as
// successful when it yielded at least one record, even if pagination ended
// early; partial data on disk is valid output.
func (o *Orchestrator) processEndpoint(ctx context.Context, desc catalog.Descriptor, writer *store.Writer) EndpointResult {
	start := o.now()

	o.logger.Info().
		Str("endpoint", desc.Path).
		Str("description", desc.Description).
		Msg("Processing endpoint")

	var result EndpointResult
	result.Endpoint = desc.Path

	if o.config.Parallel && desc.SupportsPagination() {
		pf := paginate.NewParallelFetcher(o.fetcher, paginate.ParallelConfig{Workers: o.config.Workers})
		pres, err := pf.FetchAll(ctx, desc, writer)
		if err != nil {
			o.logger.Error().
				Err(err).
				Str("endpoint", desc.Path).
				Msg("Endpoint failed")
		} else {
			result.RecordsProcessed = pres.Records
			result.FilesSaved = pres.Files
			result.DuplicatesFound = pres.Duplicates
			result.PagesProcessed = pres.Pages
		}
	} else {
		p := paginate.NewPaginator(o.fetcher)
		pres := p.FetchAll(ctx, desc)
		result.RecordsProcessed = len(pres.Records)
		result.DuplicatesFound = pres.Duplicates
		result.PagesProcessed = pres.Pages

		written, _, err := writer.WriteAll(desc.Path, pres.Records)
		if err != nil {
			o.logger.Error().
				Err(err).
				Str("endpoint", desc.Path).
				Msg("Persistence failed")
		}
		result.FilesSaved = written
	}

	duration := o.now().Sub(start)
	result.DurationSeconds = duration.Seconds()
	if duration > 0 {
		result.RecordsPerSecond = float64(result.RecordsProcessed) / duration.Seconds()
	}
	result.Success = result.RecordsProcessed > 0

	o.logger.Info().
		Str("endpoint", desc.Path).
		Bool("success", result.Success).
		Int("records", result.RecordsProcessed).
		Int("files", result.FilesSaved).
		Int("duplicates", result.DuplicatesFound).
		Int("pages", result.PagesProcessed).
		Float64("duration_seconds", result.DurationSeconds).
		Msg("Endpoint complete")

	return result
}

func (o *Orchestrator) writeSummary(dir, timestamp string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("session_summary_%s.json", timestamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	o.logger.Info().Str("file", path).Msg("Session summary written")
	return nil
}
