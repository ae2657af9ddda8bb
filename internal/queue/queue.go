package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	runQueueKey       = "queue:intelligence_runs"
	deadletterPeekKey = "deadletter:intelligence_runs"
)

// ErrEmpty is returned by Dequeue when the poll window expires with no job.
var ErrEmpty = errors.New("queue empty")

// Job is the queue envelope. JobTry starts at 1 and increments on every
// re-enqueue after a failure.
type Job struct {
	Task       string    `json:"task"`
	RunID      uuid.UUID `json:"run_id"`
	JobTry     int       `json:"job_try"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the Redis-backed run queue plus the bounded dead-letter peek list.
type Queue struct {
	client             *redis.Client
	deadletterMaxItems int
}

func New(redisURL string, deadletterMaxItems int) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &Queue{
		client:             redis.NewClient(opts),
		deadletterMaxItems: deadletterMaxItems,
	}, nil
}

// NewWithClient wraps an existing client. Tests inject miniredis this way.
func NewWithClient(client *redis.Client, deadletterMaxItems int) *Queue {
	return &Queue{client: client, deadletterMaxItems: deadletterMaxItems}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// EnqueueRun pushes a first-attempt job for a run.
func (q *Queue) EnqueueRun(ctx context.Context, task string, runID uuid.UUID) error {
	return q.enqueue(ctx, Job{Task: task, RunID: runID, JobTry: 1, EnqueuedAt: time.Now().UTC()})
}

// Requeue pushes the job back with its retry counter bumped.
func (q *Queue) Requeue(ctx context.Context, job Job) error {
	job.JobTry++
	job.EnqueuedAt = time.Now().UTC()
	return q.enqueue(ctx, job)
}

func (q *Queue) enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, runQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns ErrEmpty when the
// window expires, which lets the worker loop re-check its shutdown signal.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BLPop(ctx, timeout, runQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	// BLPOP returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, runQueueKey).Result()
}

// DeadletterPeekItem is the operator-facing snapshot pushed alongside the
// durable dead-letter row. Raw errors never land here.
type DeadletterPeekItem struct {
	RunID         uuid.UUID `json:"run_id"`
	AssetID       uuid.UUID `json:"asset_id"`
	ProcessorName string    `json:"processor_name"`
	Task          string    `json:"task"`
	JobTry        int       `json:"job_try"`
	ErrorSummary  string    `json:"error_summary"`
	FailedAt      time.Time `json:"failed_at"`
}

// PushDeadletterPeek prepends an item and trims the list to its bound.
func (q *Queue) PushDeadletterPeek(ctx context.Context, item DeadletterPeekItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal peek item: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, deadletterPeekKey, payload)
	pipe.LTrim(ctx, deadletterPeekKey, 0, int64(q.deadletterMaxItems-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push peek item: %w", err)
	}
	return nil
}

// ListDeadletterPeek returns the newest-first peek window.
func (q *Queue) ListDeadletterPeek(ctx context.Context, limit int) ([]DeadletterPeekItem, error) {
	if limit <= 0 || limit > q.deadletterMaxItems {
		limit = q.deadletterMaxItems
	}
	raw, err := q.client.LRange(ctx, deadletterPeekKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read peek list: %w", err)
	}
	items := make([]DeadletterPeekItem, 0, len(raw))
	for _, entry := range raw {
		var item DeadletterPeekItem
		if err := json.Unmarshal([]byte(entry), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
