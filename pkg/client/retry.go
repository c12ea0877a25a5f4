package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kalshi-ingest/pkg/logging"
	"github.com/Sternrassler/kalshi-ingest/pkg/ratelimit"
)

// Prometheus metrics for retry operations.
var (
	ingestRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	ingestRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{1, 3, 5, 10, 30, 60},
	}, []string{"error_class"})

	ingestRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for the bounded retry loop.
type RetryConfig struct {
	// MaxAttempts is the number of ordinary attempts (including the first).
	MaxAttempts int

	// AttemptTimeout is the per-attempt request deadline.
	AttemptTimeout time.Duration

	// RateLimitBase seeds the exponential rate-limit backoff:
	// wait = min(RateLimitBase * 2^attempt, RateLimitMax).
	RateLimitBase time.Duration
	RateLimitMax  time.Duration

	// FailureDelay is the fixed sleep between attempts on upstream,
	// decode, and network failures.
	FailureDelay time.Duration

	// TimeoutStep grows the timeout backoff linearly:
	// wait = min(TimeoutStep * (attempt+1), TimeoutMax).
	TimeoutStep time.Duration
	TimeoutMax  time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		AttemptTimeout: 30 * time.Second,
		RateLimitBase:  3 * time.Second,
		RateLimitMax:   30 * time.Second,
		FailureDelay:   5 * time.Second,
		TimeoutStep:    10 * time.Second,
		TimeoutMax:     60 * time.Second,
	}
}

// Fetcher wraps one logical request in pacing and bounded retry. Sustained
// timeouts escalate to the Recoverer; no other failure class does.
type Fetcher struct {
	client    *Client
	governor  *ratelimit.Governor
	recoverer *Recoverer
	config    RetryConfig
	logger    zerolog.Logger

	// Injected for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher. recoverer may be nil, in which case sustained
// timeouts fail like any other exhausted retry.
func NewFetcher(c *Client, governor *ratelimit.Governor, recoverer *Recoverer, cfg RetryConfig) *Fetcher {
	return &Fetcher{
		client:    c,
		governor:  governor,
		recoverer: recoverer,
		config:    cfg,
		logger:    logging.NewLogger("fetcher"),
		sleep:     sleepContext,
	}
}

// Fetch performs one logical page request: cache short-circuit, then up to
// MaxAttempts paced attempts with class-specific backoff. Returns the decoded
// document, or an error once ordinary retries (and recovery, for timeouts)
// are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, path string, params url.Values) (Document, error) {
	// A cache hit spends no request budget and skips pacing entirely.
	if doc, ok := f.client.CachedDocument(ctx, path, params); ok {
		return doc, nil
	}

	var lastErr error
	for attempt := 0; attempt < f.config.MaxAttempts; attempt++ {
		if err := f.governor.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		doc, err := f.client.FetchDocument(ctx, path, params, f.config.AttemptTimeout)
		if err == nil {
			f.governor.RecordSuccess()
			if attempt > 0 {
				f.logger.Info().
					Str("endpoint", path).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return doc, nil
		}

		lastErr = err
		class := Classify(err)
		final := attempt == f.config.MaxAttempts-1

		switch class {
		case ErrorClassRateLimit:
			f.governor.RecordRateLimit()
			if final {
				break
			}
			wait := min(f.config.RateLimitBase<<attempt, f.config.RateLimitMax)
			f.logger.Warn().
				Str("endpoint", path).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Rate limited, backing off")
			if err := f.backoff(ctx, class, wait); err != nil {
				return nil, err
			}

		case ErrorClassTimeout:
			if final {
				if f.recoverer == nil {
					break
				}
				f.logger.Warn().
					Str("endpoint", path).
					Int("attempts", f.config.MaxAttempts).
					Msg("Timeouts exhausted ordinary retries, entering recovery")
				return f.recoverer.Recover(ctx, path, params)
			}
			wait := min(f.config.TimeoutStep*time.Duration(attempt+1), f.config.TimeoutMax)
			f.logger.Warn().
				Str("endpoint", path).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Request timed out, retrying")
			if err := f.backoff(ctx, class, wait); err != nil {
				return nil, err
			}

		default:
			if final {
				break
			}
			f.logger.Warn().
				Err(err).
				Str("endpoint", path).
				Int("attempt", attempt+1).
				Str("error_class", string(class)).
				Dur("wait", f.config.FailureDelay).
				Msg("Request failed, retrying")
			if err := f.backoff(ctx, class, f.config.FailureDelay); err != nil {
				return nil, err
			}
		}
	}

	class := Classify(lastErr)
	ingestRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	f.logger.Warn().
		Str("endpoint", path).
		Int("max_attempts", f.config.MaxAttempts).
		Str("error_class", string(class)).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, f.config.MaxAttempts, lastErr)
}

// backoff records retry metrics and sleeps with cancellation support.
func (f *Fetcher) backoff(ctx context.Context, class ErrorClass, wait time.Duration) error {
	ingestRetriesTotal.WithLabelValues(string(class)).Inc()
	ingestRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

	if err := f.sleep(ctx, wait); err != nil {
		return fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}
	return nil
}
