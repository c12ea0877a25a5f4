// Package paginate walks cursor-paginated collection endpoints. The
// sequential Paginator follows the cursor chain page by page; the parallel
// Fetcher in parallel.go discovers cursors first and then fetches pages
// with a worker pool.
package paginate

import (
	"context"
	"net/url"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kalshi-ingest/pkg/catalog"
	"github.com/Sternrassler/kalshi-ingest/pkg/client"
	"github.com/Sternrassler/kalshi-ingest/pkg/dedup"
	"github.com/Sternrassler/kalshi-ingest/pkg/logging"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_pages_fetched_total",
		Help: "Total pages fetched by endpoint",
	}, []string{"endpoint"})

	recordsCollectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_collected_total",
		Help: "Total unique records collected by endpoint",
	}, []string{"endpoint"})
)

// progressInterval is the page count between progress log lines.
const progressInterval = 10

// PageFetcher fetches a single document, with retry and rate pacing applied
// behind the call. *client.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, path string, params url.Values) (client.Document, error)
}

// Result holds the outcome of walking one endpoint. When Err is set the
// other fields describe the pages completed before the failure; partial
// data is a valid terminal state and callers persist it.
type Result struct {
	Records    []map[string]any
	Pages      int
	Duplicates int
	Err        error
}

// Paginator walks an endpoint's cursor chain sequentially.
type Paginator struct {
	fetcher PageFetcher
	logger  zerolog.Logger
}

// NewPaginator creates a sequential paginator on top of a page fetcher.
func NewPaginator(fetcher PageFetcher) *Paginator {
	return &Paginator{
		fetcher: fetcher,
		logger:  logging.NewLogger("paginate"),
	}
}

// FetchAll retrieves every page of an endpoint, deduplicating records as
// pages arrive. Pagination stops on an empty page, a missing cursor, or a
// response without a recognizable collection field. A fetch failure ends
// the walk and returns the records accumulated so far in Result.Err.
func (p *Paginator) FetchAll(ctx context.Context, desc catalog.Descriptor) *Result {
	limit := desc.PageLimit()
	field := desc.CollectionField()
	set := dedup.NewSet()
	result := &Result{}
	cursor := ""

	p.logger.Info().
		Str("endpoint", desc.Path).
		Int("limit", limit).
		Bool("paginated", desc.SupportsPagination()).
		Msg("Starting pagination")

	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		// The attempted page counts even when the fetch fails.
		result.Pages++

		doc, err := p.fetcher.Fetch(ctx, desc.Path, params)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("endpoint", desc.Path).
				Int("page", result.Pages).
				Int("records", len(result.Records)).
				Msg("Pagination stopped, keeping partial results")
			result.Duplicates = set.Duplicates()
			result.Err = err
			return result
		}

		pagesFetchedTotal.WithLabelValues(desc.Path).Inc()

		if field == "" {
			field = probeCollectionField(doc)
			if field == "" {
				// Non-collection payload: keep the whole document as a
				// single record.
				if len(doc) > 0 {
					if _, kept, err := set.Add(map[string]any(doc)); err == nil && kept {
						result.Records = append(result.Records, map[string]any(doc))
					}
				}
				p.logger.Info().
					Str("endpoint", desc.Path).
					Int("records", len(result.Records)).
					Msg("No collection field in response, kept as single record")
				result.Duplicates = set.Duplicates()
				return result
			}
		}

		items := doc.Collection(field)
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			_, kept, err := set.Add(map[string]any(item))
			if err != nil {
				p.logger.Warn().
					Err(err).
					Str("endpoint", desc.Path).
					Msg("Skipping unhashable record")
				continue
			}
			if kept {
				result.Records = append(result.Records, map[string]any(item))
			}
		}

		if result.Pages%progressInterval == 0 {
			p.logger.Info().
				Str("endpoint", desc.Path).
				Int("pages", result.Pages).
				Int("records", len(result.Records)).
				Int("duplicates", set.Duplicates()).
				Msg("Pagination progress")
		}

		if !desc.SupportsPagination() {
			break
		}
		cursor = doc.Cursor()
		if cursor == "" {
			break
		}
	}

	result.Duplicates = set.Duplicates()
	recordsCollectedTotal.WithLabelValues(desc.Path).Add(float64(len(result.Records)))

	p.logger.Info().
		Str("endpoint", desc.Path).
		Int("pages", result.Pages).
		Int("records", len(result.Records)).
		Int("duplicates", result.Duplicates).
		Msg("Pagination complete")

	return result
}

// probeCollectionField finds the first known collection field present as an
// array in a response document.
func probeCollectionField(doc client.Document) string {
	for _, field := range catalog.KnownCollectionFields {
		if _, ok := doc[field].([]any); ok {
			return field
		}
	}
	return ""
}
