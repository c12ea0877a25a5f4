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
)

// Prometheus metrics for recovery operations.
var (
	ingestRecoveryAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_recovery_attempts_total",
		Help: "Total number of extended recovery attempts",
	})

	ingestRecoveryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_recovery_exhausted_total",
		Help: "Total number of times extended recovery gave up",
	})
)

// RecoveryConfig holds the configuration for the extended recovery loop.
type RecoveryConfig struct {
	// MaxAttempts is the number of extended attempts.
	MaxAttempts int

	// WaitBase scales the pre-attempt wait: attempt k waits WaitBase*(k+1).
	WaitBase time.Duration

	// AttemptTimeout is the extended per-attempt request deadline.
	AttemptTimeout time.Duration
}

// DefaultRecoveryConfig returns the default recovery configuration:
// 10 attempts with waits of 60s, 120s, ..., 600s and a 90s deadline each.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxAttempts:    10,
		WaitBase:       60 * time.Second,
		AttemptTimeout: 90 * time.Second,
	}
}

// Recoverer rides out prolonged network outages. It is invoked only after
// the Fetcher exhausts ordinary attempts on timeouts: ordinary retry handles
// "the API is momentarily slow", recovery handles "the network path is down
// and needs minutes to come back". Each attempt is one direct request with a
// longer deadline, bypassing the short-timeout retry path.
type Recoverer struct {
	client *Client
	config RecoveryConfig
	logger zerolog.Logger

	// Injected for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRecoverer creates a recoverer.
func NewRecoverer(c *Client, cfg RecoveryConfig) *Recoverer {
	return &Recoverer{
		client: c,
		config: cfg,
		logger: logging.NewLogger("recovery"),
		sleep:  sleepContext,
	}
}

// Recover performs up to MaxAttempts extended attempts, each preceded by a
// strictly increasing wait. Returns the document on first success; reports
// the cumulative wait attempted when giving up.
func (r *Recoverer) Recover(ctx context.Context, path string, params url.Values) (Document, error) {
	var cumulative time.Duration

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		wait := r.config.WaitBase * time.Duration(attempt+1)
		cumulative += wait

		r.logger.Warn().
			Str("endpoint", path).
			Int("attempt", attempt+1).
			Int("max_attempts", r.config.MaxAttempts).
			Dur("wait", wait).
			Dur("cumulative_wait", cumulative).
			Msg("Waiting before recovery attempt")

		if err := r.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		ingestRecoveryAttemptsTotal.Inc()
		doc, err := r.client.FetchDocument(ctx, path, params, r.config.AttemptTimeout)
		if err == nil {
			r.logger.Info().
				Str("endpoint", path).
				Int("attempt", attempt+1).
				Dur("cumulative_wait", cumulative).
				Msg("Recovered after extended wait")
			return doc, nil
		}

		r.logger.Warn().
			Err(err).
			Str("endpoint", path).
			Int("attempt", attempt+1).
			Str("error_class", string(Classify(err))).
			Msg("Recovery attempt failed")
	}

	ingestRecoveryExhaustedTotal.Inc()
	r.logger.Error().
		Str("endpoint", path).
		Int("max_attempts", r.config.MaxAttempts).
		Dur("cumulative_wait", cumulative).
		Msg("Recovery attempts exhausted, giving up")

	return nil, fmt.Errorf("%w after %d attempts (waited %s total)",
		ErrRecoveryExhausted, r.config.MaxAttempts, cumulative)
}

// sleepContext sleeps for d with context cancellation support.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
