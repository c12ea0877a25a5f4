// Package client provides the upstream API transport with typed failures,
// the bounded retry controller, and the extended network-outage recovery
// loop. The transport issues exactly one request per call; all retry policy
// lives in Fetcher and Recoverer.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kalshi-ingest/pkg/cache"
	"github.com/Sternrassler/kalshi-ingest/pkg/logging"
)

// Prometheus metrics for transport operations.
var (
	ingestRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	ingestRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 90},
	}, []string{"endpoint"})

	ingestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Document is one decoded JSON response body. Records are opaque structured
// documents; the engine never interprets fields beyond the collection field,
// the cursor, and an identifier-like field.
type Document map[string]any

// Cursor returns the pagination cursor token, or "" when the document
// carries none. An absent cursor terminates pagination.
func (d Document) Cursor() string {
	cursor, _ := d["cursor"].(string)
	return cursor
}

// Collection returns the item sequence under the named field, or nil when the
// field is absent or not a sequence.
func (d Document) Collection(field string) []Document {
	raw, ok := d[field].([]any)
	if !ok {
		return nil
	}
	items := make([]Document, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			items = append(items, Document(m))
		}
	}
	return items
}

// Config holds the transport configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
	BaseURL string

	// UserAgent identifies this client to the upstream API.
	UserAgent string

	// Timeout is the default per-request deadline.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Cache is the optional page-response cache. Nil disables caching.
	Cache *cache.Manager
}

// DefaultConfig returns a safe default transport configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "kalshi-ingest/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// Client issues single HTTP GET requests against the upstream API.
// It never retries and never mutates shared state beyond the optional cache.
type Client struct {
	httpClient *http.Client
	config     Config
	cache      *cache.Manager
	logger     zerolog.Logger
}

// New creates a new transport client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	return &Client{
		// Deadlines come from per-call contexts, not a client-wide timeout.
		httpClient: &http.Client{Transport: transport},
		config:     cfg,
		cache:      cfg.Cache,
		logger:     logging.NewLogger("transport"),
	}, nil
}

// CachedDocument returns the cached page for (path, params) when present.
// A cache hit consumes no request budget, so callers check it before pacing.
func (c *Client) CachedDocument(ctx context.Context, path string, params url.Values) (Document, bool) {
	body, err := c.cache.Get(ctx, cache.PageKey{Endpoint: path, Params: params})
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Cache get error")
		}
		return nil, false
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", path).Msg("Cached page undecodable, ignoring")
		return nil, false
	}

	c.logger.Debug().Str("endpoint", path).Msg("Page served from cache")
	return doc, true
}

// FetchDocument performs one GET against BaseURL+path with the given query
// parameters and deadline, and decodes the body. Typed failures:
// ErrTimeout (wrapped), *APIError for non-200 statuses, ErrDecode (wrapped)
// for malformed bodies, and plain network errors otherwise.
func (c *Client) FetchDocument(ctx context.Context, path string, params url.Values, timeout time.Duration) (Document, error) {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullURL := c.config.BaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	ingestRequestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())

	if err != nil {
		if isTimeout(err) {
			ingestErrorsTotal.WithLabelValues(string(ErrorClassTimeout)).Inc()
			ingestRequestsTotal.WithLabelValues(path, "timeout").Inc()
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		ingestErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		ingestRequestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		class := ErrorClassUpstream
		if resp.StatusCode == http.StatusTooManyRequests {
			class = ErrorClassRateLimit
		}
		ingestErrorsTotal.WithLabelValues(string(class)).Inc()
		ingestRequestsTotal.WithLabelValues(path, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		c.logger.Warn().
			Str("endpoint", path).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The deadline can fire mid-body just as it can mid-connect.
		if isTimeout(err) {
			ingestErrorsTotal.WithLabelValues(string(ErrorClassTimeout)).Inc()
			ingestRequestsTotal.WithLabelValues(path, "timeout").Inc()
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		ingestErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		ingestErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		ingestRequestsTotal.WithLabelValues(path, "decode_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	ingestRequestsTotal.WithLabelValues(path, "200").Inc()

	if c.cache != nil {
		key := cache.PageKey{Endpoint: path, Params: params}
		if err := c.cache.Set(ctx, key, body); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Failed to cache page")
		}
	}

	return doc, nil
}

// isTimeout reports whether a transport error is a deadline failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
