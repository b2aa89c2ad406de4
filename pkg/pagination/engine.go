package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-tools/atlas-fetch/pkg/client"
	"github.com/atlas-tools/atlas-fetch/pkg/pacing"
	"github.com/atlas-tools/atlas-fetch/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination runs.
var (
	atlasPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlas_pages_fetched_total",
		Help: "Total number of pages fetched",
	})

	atlasRecordsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlas_records_emitted_total",
		Help: "Total number of records handed to the sink",
	})

	atlasRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_runs_total",
		Help: "Total pagination runs by outcome",
	}, []string{"outcome"})

	atlasEarlyStopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlas_early_stops_total",
		Help: "Total runs halted by the minimum-ID threshold",
	})
)

// Outcome is the terminal state of a pagination run.
type Outcome string

const (
	// OutcomeExhausted means the last page was reached: the API
	// returned no next cursor (or an empty results array).
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeStopped means the minimum-ID threshold halted the run
	// before the listing was exhausted.
	OutcomeStopped Outcome = "stopped_by_predicate"

	// OutcomeAborted means a fatal failure or an interrupt ended the
	// run. The result carries the cursor to resume from.
	OutcomeAborted Outcome = "aborted"
)

// Result summarizes a finished run. Success reports true for Exhausted
// and Stopped; Aborted results carry the resume cursor and the cause.
type Result struct {
	Outcome Outcome

	// Pages is the number of pages successfully fetched.
	Pages int

	// Records is the number of records handed to the sink.
	Records int64

	// ResumeURL is the cursor that was being (or about to be) fetched
	// when an Aborted run ended. Empty on success. Feeding it back as
	// EngineConfig.ResumeURL continues the run where it stopped.
	ResumeURL string

	// Err is the fatal cause of an Aborted run, nil otherwise.
	Err error
}

// Success reports whether the run ended cleanly.
func (r Result) Success() bool {
	return r.Outcome == OutcomeExhausted || r.Outcome == OutcomeStopped
}

// PageSource fetches one parsed page, failing only fatally.
// *Fetcher satisfies this; tests substitute scripted sources.
type PageSource interface {
	FetchPage(ctx context.Context, url string) (*Page, error)
}

// EngineConfig holds the engine configuration.
type EngineConfig struct {
	// Query describes the listing to walk.
	Query query.Config

	// ResumeURL, when set, replaces the first-page URL with a cursor
	// captured from an earlier run. The cursor embeds all filter
	// state, so the Query filters are not re-applied.
	ResumeURL string

	// WarnOnDisorder logs a warning (once per run) when record IDs are
	// not monotonically decreasing under "-id" sort. Off by default:
	// the declared sort order is a documented caller precondition, and
	// violating it disables the early stop rather than failing.
	WarnOnDisorder bool
}

// Engine drives the page fetcher across the cursor chain, applies the
// early-stop predicate, and streams records to the caller. Pages are
// fetched strictly sequentially: each page's URL is only discovered
// from the previous response, so there is nothing to parallelize.
type Engine struct {
	config EngineConfig
	source PageSource
	pacer  *pacing.Pacer
	logger zerolog.Logger
}

// NewEngine creates a pagination engine.
func NewEngine(cfg EngineConfig, source PageSource) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("page source is required")
	}
	if cfg.ResumeURL == "" {
		if err := cfg.Query.Validate(); err != nil {
			return nil, fmt.Errorf("query config: %w", err)
		}
	}

	logger := log.With().Str("component", "pagination-engine").Logger()

	return &Engine{
		config: cfg,
		source: source,
		pacer:  pacing.New(cfg.Query.PageDelay, logger),
		logger: logger,
	}, nil
}

// Run walks the listing, calling emit for every record in API order.
// Records are delivered as pages arrive; the stream is forward-only and
// never buffers more than one page. An error from emit aborts the run
// with the current page's cursor as the resume point.
//
// Run blocks until a terminal state. With the default retry policy a
// page that never stops failing retryably blocks indefinitely; bound
// the run with ctx or a positive RetryConfig.MaxAttempts.
func (e *Engine) Run(ctx context.Context, emit func(Record) error) Result {
	url := e.config.ResumeURL
	if url == "" {
		first, err := e.config.Query.FirstPageURL()
		if err != nil {
			return e.aborted(Result{}, "", err)
		}
		url = first
	}

	stopOnMinID := e.config.Query.StopOnMinID()
	idField := e.config.Query.IDField()
	minID := e.config.Query.MinID

	var result Result
	var lastID int64
	var haveLastID, disorderWarned bool

	for url != "" {
		if ctx.Err() != nil {
			return e.aborted(result, url, fmt.Errorf("%w: %v", client.ErrInterrupted, ctx.Err()))
		}

		e.logger.Debug().
			Int("page", result.Pages+1).
			Str("cursor", url).
			Msg("Fetching page")

		page, err := e.source.FetchPage(ctx, url)
		if err != nil {
			return e.aborted(result, url, err)
		}

		result.Pages++
		atlasPagesFetchedTotal.Inc()

		e.logger.Info().
			Int("page", result.Pages).
			Int("records", len(page.Records)).
			Msg("Fetched page")

		// An empty results array means the listing is done even if a
		// next link is present.
		if len(page.Records) == 0 {
			break
		}

		for _, rec := range page.Records {
			if err := emit(rec); err != nil {
				return e.aborted(result, url, fmt.Errorf("sink: %w", err))
			}
			result.Records++
			atlasRecordsEmittedTotal.Inc()

			if !stopOnMinID {
				continue
			}
			id, ok := rec.ID(idField)
			if !ok {
				continue
			}
			if e.config.WarnOnDisorder && haveLastID && id > lastID && !disorderWarned {
				e.logger.Warn().
					Int64("id", id).
					Int64("previous_id", lastID).
					Msg("Record IDs are not descending; early stop may not trigger")
				disorderWarned = true
			}
			lastID, haveLastID = id, true

			// The record at the boundary is emitted: a record whose
			// ID equals MinID does not stop the run.
			if id < minID {
				atlasEarlyStopsTotal.Inc()
				atlasRunsTotal.WithLabelValues(string(OutcomeStopped)).Inc()
				e.logger.Info().
					Int64("id", id).
					Int64("min_id", minID).
					Int("pages", result.Pages).
					Int64("records", result.Records).
					Msg("Stopping early: ID crossed the minimum threshold")
				result.Outcome = OutcomeStopped
				return result
			}
		}

		if page.Next == "" {
			break
		}
		url = page.Next

		if err := e.pacer.Wait(ctx); err != nil {
			return e.aborted(result, url, fmt.Errorf("%w: %v", client.ErrInterrupted, err))
		}
	}

	atlasRunsTotal.WithLabelValues(string(OutcomeExhausted)).Inc()
	e.logger.Info().
		Int("pages", result.Pages).
		Int64("records", result.Records).
		Msg("Listing exhausted")
	result.Outcome = OutcomeExhausted
	return result
}

// aborted finalizes a failed run, preserving the cursor for resume.
func (e *Engine) aborted(result Result, url string, err error) Result {
	atlasRunsTotal.WithLabelValues(string(OutcomeAborted)).Inc()

	event := e.logger.Error()
	if errors.Is(err, client.ErrInterrupted) {
		// An interrupt is a clean abort, not an API failure.
		event = e.logger.Warn()
	}
	event.
		Err(err).
		Str("cursor", url).
		Int("pages", result.Pages).
		Int64("records", result.Records).
		Msg("Run aborted")

	result.Outcome = OutcomeAborted
	result.ResumeURL = url
	result.Err = err
	return result
}
