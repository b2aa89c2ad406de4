// Package checkpoint persists resume cursors in Redis so an aborted or
// interrupted run can continue from its last page in a later process.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Prometheus metrics for checkpoint operations.
var (
	atlasCheckpointOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_checkpoint_ops_total",
		Help: "Total checkpoint operations by type",
	}, []string{"operation"}) // "save", "load", "clear"

	atlasCheckpointErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_checkpoint_errors_total",
		Help: "Total checkpoint operation errors by type",
	}, []string{"operation"})
)

var (
	// ErrNoCheckpoint indicates no cursor is stored for the job.
	ErrNoCheckpoint = errors.New("no checkpoint")

	// ErrInvalidEntry indicates the stored entry is corrupted.
	ErrInvalidEntry = errors.New("invalid checkpoint entry")
)

// DefaultTTL is how long a saved cursor is kept. Registry cursors stay
// valid indefinitely, but a week-old partial run is usually better
// restarted than resumed.
const DefaultTTL = 7 * 24 * time.Hour

// Entry is one persisted resume point.
type Entry struct {
	// ResumeURL is the cursor to continue from.
	ResumeURL string `json:"resume_url"`

	// Pages and Records describe the progress made before the save.
	Pages   int   `json:"pages"`
	Records int64 `json:"records"`

	// SavedAt is when this entry was written.
	SavedAt time.Time `json:"saved_at"`
}

// Store handles checkpoint persistence with a Redis backend.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a checkpoint store. A zero ttl means DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis: redisClient,
		ttl:   ttl,
	}
}

// redisKey namespaces checkpoints per job name.
func redisKey(job string) string {
	return "atlas:checkpoint:" + job
}

// Save stores the resume point for a job, overwriting any previous one.
func (s *Store) Save(ctx context.Context, job string, entry Entry) error {
	if job == "" {
		return fmt.Errorf("job name is required")
	}
	if entry.ResumeURL == "" {
		return fmt.Errorf("resume URL is required")
	}
	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		atlasCheckpointErrorsTotal.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, redisKey(job), data, s.ttl).Err(); err != nil {
		atlasCheckpointErrorsTotal.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	atlasCheckpointOpsTotal.WithLabelValues("save").Inc()
	return nil
}

// Load retrieves the resume point for a job.
// Returns ErrNoCheckpoint if none is stored.
func (s *Store) Load(ctx context.Context, job string) (*Entry, error) {
	data, err := s.redis.Get(ctx, redisKey(job)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoCheckpoint
		}
		atlasCheckpointErrorsTotal.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		atlasCheckpointErrorsTotal.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	atlasCheckpointOpsTotal.WithLabelValues("load").Inc()
	return &entry, nil
}

// Clear removes the resume point for a job. Called after a successful
// run so the next invocation starts from the first page.
func (s *Store) Clear(ctx context.Context, job string) error {
	if err := s.redis.Del(ctx, redisKey(job)).Err(); err != nil {
		atlasCheckpointErrorsTotal.WithLabelValues("clear").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	atlasCheckpointOpsTotal.WithLabelValues("clear").Inc()
	return nil
}
