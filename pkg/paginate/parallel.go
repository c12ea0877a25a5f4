package paginate

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/kalshi-ingest/pkg/catalog"
	"github.com/Sternrassler/kalshi-ingest/pkg/dedup"
	"github.com/Sternrassler/kalshi-ingest/pkg/logging"
	"github.com/Sternrassler/kalshi-ingest/pkg/store"
)

// MaxWorkers caps the worker pool regardless of configuration.
const MaxWorkers = 30

// ParallelConfig holds parallel fetcher configuration.
type ParallelConfig struct {
	// Workers is the number of concurrent page fetchers.
	Workers int
}

// DefaultParallelConfig returns the default worker-pool sizing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Workers: 10,
	}
}

// pageJob addresses one page during the parallel phase. Base is the record
// index of the page's first item, fixed from the page position so each
// worker owns a disjoint index range and writes without coordination.
type pageJob struct {
	page   int
	cursor string
	base   int
}

// ParallelResult summarizes a two-phase parallel fetch. Page order is not
// preserved; records land on disk addressed by their discovery position.
type ParallelResult struct {
	Pages      int
	Records    int
	Files      int
	Duplicates int
	Skipped    int
	Errors     []error
}

// ParallelFetcher retrieves an endpoint in two phases: a serial walk that
// discovers the cursor chain, then a bounded worker pool that refetches
// pages by cursor and persists records directly. Refetches hit the page
// cache when one is configured, so the discovery pass is the only one that
// spends request budget.
type ParallelFetcher struct {
	fetcher PageFetcher
	config  ParallelConfig
	logger  zerolog.Logger
}

// NewParallelFetcher creates a parallel fetcher. Worker counts outside
// [1, MaxWorkers] are clamped.
func NewParallelFetcher(fetcher PageFetcher, config ParallelConfig) *ParallelFetcher {
	if config.Workers <= 0 {
		config.Workers = DefaultParallelConfig().Workers
	}
	if config.Workers > MaxWorkers {
		config.Workers = MaxWorkers
	}

	return &ParallelFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("paginate-parallel"),
	}
}

// FetchAll runs both phases for one endpoint and writes every unique record
// through the writer. Worker failures are collected, not fatal; the records
// from surviving pages remain on disk.
func (pf *ParallelFetcher) FetchAll(ctx context.Context, desc catalog.Descriptor, writer *store.Writer) (*ParallelResult, error) {
	start := time.Now()
	limit := desc.PageLimit()

	jobs, total, err := pf.discoverCursors(ctx, desc, limit)
	if err != nil {
		return nil, err
	}

	result := &ParallelResult{Pages: len(jobs)}
	if total == 0 {
		return result, nil
	}

	pf.logger.Info().
		Str("endpoint", desc.Path).
		Int("pages", len(jobs)).
		Int("total_records", total).
		Int("workers", pf.config.Workers).
		Msg("Starting parallel page fetch")

	queue := make(chan pageJob, len(jobs))
	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	// All cross-page state shares one mutex: the dedup set, the running
	// totals, and the error list. File writes stay outside the lock, each
	// worker owns its page's index range.
	var mu sync.Mutex
	set := dedup.NewSet()

	var wg sync.WaitGroup
	for i := 0; i < pf.config.Workers; i++ {
		wg.Add(1)
		go pf.worker(ctx, desc, writer, queue, limit, total, set, &mu, result, &wg, i)
	}
	wg.Wait()

	result.Duplicates = set.Duplicates()

	pf.logger.Info().
		Str("endpoint", desc.Path).
		Int("pages", result.Pages).
		Int("records", result.Records).
		Int("files", result.Files).
		Int("duplicates", result.Duplicates).
		Int("worker_errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Parallel fetch complete")

	return result, nil
}

// discoverCursors walks the cursor chain serially, recording the cursor and
// item count of each non-empty page. Item positions are addressed with a
// fixed page stride so only the final page may be short.
func (pf *ParallelFetcher) discoverCursors(ctx context.Context, desc catalog.Descriptor, limit int) ([]pageJob, int, error) {
	var jobs []pageJob
	total := 0
	field := desc.CollectionField()
	cursor := ""

	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		doc, err := pf.fetcher.Fetch(ctx, desc.Path, params)
		if err != nil {
			return nil, 0, err
		}

		if field == "" {
			field = probeCollectionField(doc)
			if field == "" {
				return jobs, total, nil
			}
		}

		items := doc.Collection(field)
		if len(items) == 0 {
			return jobs, total, nil
		}

		jobs = append(jobs, pageJob{
			page:   len(jobs) + 1,
			cursor: cursor,
			base:   len(jobs) * limit,
		})
		total += len(items)

		if len(jobs)%progressInterval == 0 {
			pf.logger.Info().
				Str("endpoint", desc.Path).
				Int("pages", len(jobs)).
				Int("records", total).
				Msg("Cursor discovery progress")
		}

		cursor = doc.Cursor()
		if cursor == "" {
			return jobs, total, nil
		}
	}
}

// worker refetches pages from the queue and persists their records.
func (pf *ParallelFetcher) worker(ctx context.Context, desc catalog.Descriptor, writer *store.Writer, queue <-chan pageJob, limit, total int, set *dedup.Set, mu *sync.Mutex, result *ParallelResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	field := desc.CollectionField()
	pagesProcessed := 0

	for job := range queue {
		select {
		case <-ctx.Done():
			pf.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		if job.cursor != "" {
			params.Set("cursor", job.cursor)
		}

		doc, err := pf.fetcher.Fetch(ctx, desc.Path, params)
		if err != nil {
			pf.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", job.page).
				Msg("Page fetch failed")
			mu.Lock()
			result.Errors = append(result.Errors, err)
			mu.Unlock()
			continue
		}

		if field == "" {
			field = probeCollectionField(doc)
		}
		items := doc.Collection(field)

		for j, item := range items {
			record := map[string]any(item)

			mu.Lock()
			_, kept, err := set.Add(record)
			if err != nil || !kept {
				mu.Unlock()
				continue
			}
			result.Records++
			mu.Unlock()

			if err := writer.WriteRecord(desc.Path, record, job.base+j, total); err != nil {
				pf.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Int("record_index", job.base+j).
					Msg("Record write failed")
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				continue
			}

			mu.Lock()
			result.Files++
			mu.Unlock()
		}

		pagesProcessed++
	}

	if pagesProcessed > 0 {
		pf.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
