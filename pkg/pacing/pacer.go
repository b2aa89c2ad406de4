// Package pacing implements the polite-client delays: the courtesy
// sleep between successfully fetched pages and parsing of the server's
// Retry-After hint. Neither is a correctness mechanism; both keep the
// tool a good citizen of a shared public API.
package pacing

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pacing.
var (
	atlasPagePausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlas_page_pauses_total",
		Help: "Total number of courtesy pauses between pages",
	})

	atlasPagePauseSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atlas_page_pause_seconds",
		Help:    "Duration of courtesy pauses between pages",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})
)

// Pacer waits a fixed delay between pages. A zero delay makes Wait a
// no-op, so the engine can call it unconditionally.
type Pacer struct {
	delay  time.Duration
	logger zerolog.Logger
}

// New creates a pacer with the given inter-page delay.
func New(delay time.Duration, logger zerolog.Logger) *Pacer {
	return &Pacer{
		delay:  delay,
		logger: logger,
	}
}

// Wait blocks for the configured delay or until ctx is cancelled,
// in which case it returns the context error.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return nil
	}

	atlasPagePausesTotal.Inc()
	atlasPagePauseSeconds.Observe(p.delay.Seconds())

	p.logger.Debug().
		Dur("delay", p.delay).
		Msg("Pausing between pages")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.delay):
		return nil
	}
}

// ParseRetryAfter reads a delay-seconds Retry-After header. HTTP-date
// values and absent or malformed headers yield zero; the caller falls
// back to its own backoff.
func ParseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
