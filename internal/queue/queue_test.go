package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, deadletterMax int) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, deadletterMax)
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q := newTestQueue(t, 200)
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, q.EnqueueRun(ctx, "run_ocr_text", runID))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "run_ocr_text", job.Task)
	require.Equal(t, runID, job.RunID)
	require.Equal(t, 1, job.JobTry)
}

func TestDequeueEmpty(t *testing.T) {
	q := newTestQueue(t, 200)

	_, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestRequeueBumpsTry(t *testing.T) {
	q := newTestQueue(t, 200)
	ctx := context.Background()

	require.NoError(t, q.EnqueueRun(ctx, "run_asset_fingerprint", uuid.New()))
	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(ctx, *job))
	retried, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, retried.JobTry)
	require.Equal(t, job.RunID, retried.RunID)
}

func TestQueueIsFIFO(t *testing.T) {
	q := newTestQueue(t, 200)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	require.NoError(t, q.EnqueueRun(ctx, "run_ocr_text", first))
	require.NoError(t, q.EnqueueRun(ctx, "run_ocr_text", second))

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, first, job.RunID)

	job, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, second, job.RunID)
}

func TestDeadletterPeekBounded(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	var newest uuid.UUID
	for i := 0; i < 5; i++ {
		newest = uuid.New()
		require.NoError(t, q.PushDeadletterPeek(ctx, DeadletterPeekItem{
			RunID:        newest,
			Task:         "run_ocr_text",
			JobTry:       3,
			ErrorSummary: "network_error: connection refused",
			FailedAt:     time.Now().UTC(),
		}))
	}

	items, err := q.ListDeadletterPeek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, newest, items[0].RunID)
}
