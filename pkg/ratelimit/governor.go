// Package ratelimit implements request pacing for upstream API ingestion.
// A Governor keeps outgoing requests under a requests-per-minute ceiling and
// adapts its inter-request delay to recent success and rate-limit signals.
// One Governor instance is shared by all endpoints in a session and is passed
// explicitly into request-issuing code rather than living in process globals.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request pacing.
var (
	paceDelaySeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_pace_delay_seconds",
		Help: "Current adaptive inter-request delay in seconds",
	})

	paceCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_pace_cooldowns_total",
		Help: "Total number of cooldown sleeps after hitting the per-minute ceiling",
	})

	paceRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_pace_requests_total",
		Help: "Total number of requests admitted by the governor",
	})
)

// Config holds governor configuration.
type Config struct {
	// RequestsPerMinute is the ceiling on requests admitted per window.
	RequestsPerMinute int

	// Window is the counting window duration.
	Window time.Duration

	// Cooldown is the fixed sleep applied once the ceiling is reached.
	Cooldown time.Duration

	// InitialDelay is the starting adaptive delay.
	InitialDelay time.Duration

	// MinDelay is the floor the adaptive delay decays toward on success.
	MinDelay time.Duration

	// MaxDelay is the cap the adaptive delay grows toward on rate limiting.
	MaxDelay time.Duration

	// DecayFactor multiplies the delay after each success.
	DecayFactor float64

	// GrowthFactor multiplies the delay after each rate-limit response.
	GrowthFactor float64
}

// DefaultConfig returns the default pacing configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 50,
		Window:            60 * time.Second,
		Cooldown:          1 * time.Second,
		InitialDelay:      100 * time.Millisecond,
		MinDelay:          50 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		DecayFactor:       0.95,
		GrowthFactor:      2.0,
	}
}

// Governor paces outgoing requests. Safe for concurrent use; pacing state is
// guarded by a mutex while sleeps happen outside the lock.
type Governor struct {
	mu          sync.Mutex
	config      Config
	delay       time.Duration
	windowStart time.Time
	count       int
	logger      zerolog.Logger

	// Injected for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor creates a governor with the given configuration.
func NewGovernor(cfg Config, logger zerolog.Logger) *Governor {
	g := &Governor{
		config: cfg,
		delay:  cfg.InitialDelay,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
	g.windowStart = g.now()
	paceDelaySeconds.Set(cfg.InitialDelay.Seconds())
	return g
}

// Wait blocks until the next request may be issued, then counts it against
// the current window. Returns early with the context error on cancellation.
func (g *Governor) Wait(ctx context.Context) error {
	g.mu.Lock()

	now := g.now()
	if now.Sub(g.windowStart) >= g.config.Window {
		g.count = 0
		g.windowStart = now
	}

	var wait time.Duration
	if g.count >= g.config.RequestsPerMinute {
		wait = g.config.Cooldown
		paceCooldownsTotal.Inc()
		g.logger.Debug().
			Int("window_count", g.count).
			Dur("wait", wait).
			Msg("Request ceiling reached, applying cooldown")
	} else {
		wait = g.delay
	}

	g.count++
	paceRequestsTotal.Inc()
	g.mu.Unlock()

	return g.sleep(ctx, wait)
}

// RecordSuccess decays the adaptive delay toward its floor.
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.delay = time.Duration(float64(g.delay) * g.config.DecayFactor)
	if g.delay < g.config.MinDelay {
		g.delay = g.config.MinDelay
	}
	paceDelaySeconds.Set(g.delay.Seconds())
}

// RecordRateLimit grows the adaptive delay toward its cap.
func (g *Governor) RecordRateLimit() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.delay = time.Duration(float64(g.delay) * g.config.GrowthFactor)
	if g.delay > g.config.MaxDelay {
		g.delay = g.config.MaxDelay
	}
	paceDelaySeconds.Set(g.delay.Seconds())

	g.logger.Debug().
		Dur("delay", g.delay).
		Msg("Adaptive delay increased after rate limit")
}

// Delay returns the current adaptive delay.
func (g *Governor) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delay
}

// WindowCount returns the number of requests counted in the current window.
func (g *Governor) WindowCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
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
