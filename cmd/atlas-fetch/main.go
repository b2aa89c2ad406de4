// Command atlas-fetch walks a measurement-registry listing and writes
// the records as IDs, JSON Lines, or CSV.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/atlas-tools/atlas-fetch/pkg/checkpoint"
	"github.com/atlas-tools/atlas-fetch/pkg/client"
	"github.com/atlas-tools/atlas-fetch/pkg/logging"
	"github.com/atlas-tools/atlas-fetch/pkg/pagination"
	"github.com/atlas-tools/atlas-fetch/pkg/query"
	"github.com/atlas-tools/atlas-fetch/pkg/sink"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// apiKeyEnvVar is the environment variable consulted when no key flag
// is given. Preferred over --api-key, which leaks into shell history.
const apiKeyEnvVar = "ATLAS_API_KEY"

type options struct {
	endpoint  string
	typ       string
	af        int
	tags      string
	sort      string
	pageSize  int
	fields    string
	extra     string
	output    string
	outfile   string
	timeout   int
	sleep     float64
	resumeURL string
	minID     int64

	apiKey      string
	promptKey   bool
	maxAttempts int

	checkpointRedis string
	job             string
	metricsAddr     string
	logLevel        string
	pretty          bool
	warnDisorder    bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("atlas-fetch", flag.ContinueOnError)

	fs.StringVar(&opts.endpoint, "endpoint", query.EndpointMeasurements,
		"Which list endpoint to use (measurements or anchor-measurements)")
	fs.StringVar(&opts.typ, "type", "ping", "Measurement type (only for the measurements endpoint)")
	fs.IntVar(&opts.af, "af", 4, "Address family, 4 or 6 (only for the measurements endpoint)")
	fs.StringVar(&opts.tags, "tags", "anchoring,probes", "Comma-separated tags (only for the measurements endpoint)")
	fs.StringVar(&opts.sort, "sort", "-id", "Sort order (e.g. -id or id)")
	fs.IntVar(&opts.pageSize, "page-size", 500, "Items per page (API max is usually 500)")
	fs.StringVar(&opts.fields, "fields", "id", "Fields to request (use 'measurement' for anchor-measurements ID)")
	fs.StringVar(&opts.extra, "extra", "", `Extra query params as JSON, e.g. '{"status":1}'`)
	fs.StringVar(&opts.output, "output", "ids", "Output format: ids, jsonl or csv")
	fs.StringVar(&opts.outfile, "outfile", "-", "Output file path or '-' for stdout")
	fs.IntVar(&opts.timeout, "timeout", 30, "HTTP timeout in seconds")
	fs.Float64Var(&opts.sleep, "sleep", 0, "Optional sleep between pages in seconds")
	fs.StringVar(&opts.resumeURL, "resume-url", "", "Start from a previously captured next-page URL")
	fs.Int64Var(&opts.minID, "min-id", 0, "Stop early when sorted by -id and an ID falls below this value")
	fs.StringVar(&opts.apiKey, "api-key", "",
		"API key (WARNING: insecure; prefer --prompt-key or the "+apiKeyEnvVar+" env var)")
	fs.BoolVar(&opts.promptKey, "prompt-key", false, "Prompt for the API key interactively")
	fs.IntVar(&opts.maxAttempts, "max-attempts", 0,
		"Bound retry attempts per page (0 = retry until success or a fatal error)")
	fs.StringVar(&opts.checkpointRedis, "checkpoint-redis", "",
		"Redis address for cursor checkpoints (empty disables checkpointing)")
	fs.StringVar(&opts.job, "job", "default", "Checkpoint job name")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics (empty disables)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.BoolVar(&opts.pretty, "pretty", false, "Human-readable log output")
	fs.BoolVar(&opts.warnDisorder, "warn-disorder", false,
		"Warn when record IDs are not descending under -id sort")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// parseExtra decodes the --extra JSON object into flat string params.
func parseExtra(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON in --extra: %w", err)
	}
	params := make(map[string]string, len(decoded))
	for k, v := range decoded {
		switch val := v.(type) {
		case string:
			params[k] = val
		case float64:
			params[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			params[k] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("--extra value for %q must be a string, number or bool", k)
		}
	}
	return params, nil
}

// resolveAPIKey reads the key from the safest source available:
// interactive prompt, environment variable, then the flag.
func resolveAPIKey(opts options, logger zerolog.Logger) (string, error) {
	if opts.promptKey {
		fmt.Fprint(os.Stderr, "Enter registry API key: ")
		key, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read API key: %w", err)
		}
		return string(key), nil
	}

	if key := os.Getenv(apiKeyEnvVar); key != "" {
		logger.Info().Msgf("Using API key from %s environment variable", apiKeyEnvVar)
		return key, nil
	}

	if opts.apiKey != "" {
		logger.Warn().Msg("Using API key from command-line argument; this leaks into shell history")
		return opts.apiKey, nil
	}

	return "", nil
}

// idFieldFor picks the field the ids output prints. Anchor-measurement
// records point at their measurement through the "measurement" field.
func idFieldFor(q query.Config, output string) string {
	if output == "ids" {
		return q.MeasurementIDField()
	}
	return q.IDField()
}

// newSink builds the sink for the requested output format.
func newSink(output string, w io.Writer, idField string) (sink.Sink, error) {
	switch output {
	case "ids":
		return sink.NewIDSink(w, idField), nil
	case "jsonl":
		return sink.NewJSONLSink(w), nil
	case "csv":
		return sink.NewCSVSink(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", output)
	}
}

// openOut opens the output file, or stdout for "-".
func openOut(path string) (io.Writer, func() error, error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		return 2
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: os.Stderr,
	})

	apiKey, err := resolveAPIKey(opts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("API key entry failed")
		return 1
	}

	extra, err := parseExtra(opts.extra)
	if err != nil {
		logger.Error().Err(err).Msg("Bad --extra argument")
		return 2
	}

	q := query.Config{
		BaseURL:   getEnv("ATLAS_BASE_URL", query.DefaultBaseURL),
		Endpoint:  opts.endpoint,
		Type:      opts.typ,
		AF:        opts.af,
		Tags:      opts.tags,
		Sort:      opts.sort,
		PageSize:  opts.pageSize,
		Fields:    opts.fields,
		Extra:     extra,
		Timeout:   time.Duration(opts.timeout) * time.Second,
		PageDelay: time.Duration(opts.sleep * float64(time.Second)),
		MinID:     opts.minID,
	}

	retryCfg := client.DefaultRetryConfig()
	retryCfg.MaxAttempts = opts.maxAttempts

	transport, err := client.New(client.Config{
		UserAgent: getEnv("ATLAS_USER_AGENT", "atlas-fetch/1.0"),
		APIKey:    apiKey,
		Timeout:   q.Timeout,
		Retry:     retryCfg,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create transport")
		return 1
	}

	// Optional checkpoint store
	var store *checkpoint.Store
	if opts.checkpointRedis != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: opts.checkpointRedis})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error().Err(err).Str("addr", opts.checkpointRedis).Msg("Failed to connect to Redis")
			return 1
		}
		store = checkpoint.NewStore(redisClient, 0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resumeURL := opts.resumeURL
	if resumeURL == "" && store != nil {
		entry, err := store.Load(ctx, opts.job)
		switch {
		case err == nil:
			logger.Info().
				Str("cursor", entry.ResumeURL).
				Time("saved_at", entry.SavedAt).
				Msg("Resuming from checkpoint")
			resumeURL = entry.ResumeURL
		case err != checkpoint.ErrNoCheckpoint:
			logger.Warn().Err(err).Msg("Checkpoint load failed; starting from the first page")
		}
	}

	if opts.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(opts.metricsAddr, mux); err != nil {
				logger.Warn().Err(err).Msg("Metrics listener stopped")
			}
		}()
	}

	engine, err := pagination.NewEngine(pagination.EngineConfig{
		Query:          q,
		ResumeURL:      resumeURL,
		WarnOnDisorder: opts.warnDisorder,
	}, pagination.NewFetcher(transport))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create engine")
		return 2
	}

	out, closeOut, err := openOut(opts.outfile)
	if err != nil {
		logger.Error().Err(err).Str("path", opts.outfile).Msg("Failed to open output file")
		return 1
	}

	s, err := newSink(opts.output, out, idFieldFor(q, opts.output))
	if err != nil {
		logger.Error().Err(err).Msg("Bad output format")
		closeOut()
		return 2
	}

	result := engine.Run(ctx, s.Write)

	if err := s.Flush(); err != nil {
		logger.Error().Err(err).Msg("Failed to flush output")
	}
	if err := closeOut(); err != nil {
		logger.Error().Err(err).Msg("Failed to close output file")
	}

	if store != nil {
		if result.Success() {
			if err := store.Clear(context.Background(), opts.job); err != nil {
				logger.Warn().Err(err).Msg("Checkpoint clear failed")
			}
		} else if result.ResumeURL != "" {
			err := store.Save(context.Background(), opts.job, checkpoint.Entry{
				ResumeURL: result.ResumeURL,
				Pages:     result.Pages,
				Records:   result.Records,
			})
			if err != nil {
				logger.Warn().Err(err).Msg("Checkpoint save failed")
			} else {
				logger.Info().Str("job", opts.job).Msg("Saved resume checkpoint")
			}
		}
	}

	if !result.Success() {
		if result.ResumeURL != "" {
			fmt.Fprintf(os.Stderr, "resume with: --resume-url %q\n", result.ResumeURL)
		}
		return 1
	}

	logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("pages", result.Pages).
		Int64("records", result.Records).
		Msg("Done")
	return 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
