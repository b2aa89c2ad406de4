package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	atlasRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	atlasRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	atlasRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts bounds the number of attempts per URL (including the
	// initial request). Zero means unlimited: retries continue until
	// success or a fatal classification. Callers needing a hard stop
	// set a positive value or cancel the context.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed delay, including Retry-After hints.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       0, // retry until success or fatal
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff executes fn until it succeeds, fails fatally, or the
// attempt budget (if any) is spent. fn returns an optional Retry-After
// hint that overrides the computed backoff when larger. Delays respect
// context cancellation and carry ±20% jitter to avoid thundering herd.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func() (retryAfter time.Duration, err error)) error {
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 500 * time.Millisecond
	}
	if config.BackoffMultiplier <= 1 {
		config.BackoffMultiplier = 2.0
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	backoff := config.InitialBackoff

	for attempt := 1; ; attempt++ {
		retryAfter, err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}

		errClass := Classify(err)
		if !shouldRetry(errClass) {
			return err
		}

		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			atlasRetryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
			logger.Warn().
				Str("error_class", string(errClass)).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, config.MaxAttempts, err)
		}

		atlasRetriesTotal.WithLabelValues(string(errClass)).Inc()

		// Add jitter (±20% randomness)
		delay := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

		// Honor the server's Retry-After hint when it asks for more.
		if retryAfter > delay {
			delay = retryAfter
		}
		if delay > config.MaxBackoff {
			delay = config.MaxBackoff
		}
		atlasRetryBackoffSeconds.WithLabelValues(string(errClass)).Observe(delay.Seconds())

		logger.Debug().
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
}
