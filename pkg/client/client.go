// Package client provides the HTTP transport for the RIPE Atlas registry
// API with error classification and retry handling.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/atlas-tools/atlas-fetch/pkg/pacing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for registry requests.
var (
	atlasRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_requests_total",
		Help: "Total registry requests by endpoint and status",
	}, []string{"endpoint", "status"})

	atlasRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_request_duration_seconds",
		Help:    "Registry request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	atlasErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_errors_total",
		Help: "Total registry errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	// These are never retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Response is the outcome of one successful (2xx) registry call.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Config holds the transport configuration.
type Config struct {
	// UserAgent identifies this tool to the registry.
	UserAgent string

	// APIKey is an optional registry API key, sent as
	// "Authorization: Key <key>" on every request. Empty means
	// anonymous access.
	APIKey string

	// Timeout applies per HTTP call, not per page and not per run.
	Timeout time.Duration

	// Retry controls backoff between attempts of the same URL.
	Retry RetryConfig

	// HTTPClient overrides the underlying client (for testing).
	// When nil a client with Timeout is constructed.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client issues GET requests against the registry, absorbing retryable
// failures internally. Safe to reuse across calls; the underlying
// connection pool is shared.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new registry transport.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := log.With().Str("component", "atlas-client").Logger()

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Get fetches url, retrying retryable failures according to the
// configured retry policy. It returns only on success or a fatal
// classification. GET against the registry is read-only, so repeating
// the same URL is safe.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	endpoint := endpointLabel(url)

	start := time.Now()
	defer func() {
		atlasRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var resp *Response
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() (retryAfter time.Duration, err error) {
		resp, retryAfter, err = c.do(ctx, url, endpoint)
		return retryAfter, err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// do performs a single attempt. A non-nil retryAfter carries the
// server's Retry-After hint alongside a retryable error.
func (c *Client) do(ctx context.Context, url, endpoint string) (*Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &APIError{ErrorClass: ErrorClassClient, Message: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Key "+c.config.APIKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation is not a network failure; let the
		// retry loop surface it as an interrupt.
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		atlasErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		atlasRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, 0, &APIError{ErrorClass: ErrorClassNetwork, Message: err.Error(), Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		errClass := classifyStatus(httpResp.StatusCode)
		atlasErrorsTotal.WithLabelValues(string(errClass)).Inc()
		atlasRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", httpResp.StatusCode)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Registry request error")

		apiErr := &APIError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: errClass,
			Message:    httpResp.Status,
		}
		return nil, pacing.ParseRetryAfter(httpResp.Header), apiErr
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		atlasErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, 0, &APIError{ErrorClass: ErrorClassNetwork, Message: fmt.Sprintf("read body: %v", err), Err: err}
	}

	atlasRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", httpResp.StatusCode)).Inc()
	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Header:     httpResp.Header,
	}, 0, nil
}

// classifyStatus categorizes an HTTP status for retry decisions.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// endpointLabel reduces a URL to its path for metric labels. Query
// strings carry cursors and would blow up label cardinality.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return u.Path
}
