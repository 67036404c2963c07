package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/isocrates/isocrates/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueue_CreatesQueuedJob(t *testing.T) {
	q := newTestQueue(t)
	job, created, err := q.Enqueue(context.Background(), "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.JobQueued, job.Status)
	assert.Equal(t, 0, job.RetryCount)
}

func TestEnqueue_DedupsAgainstQueuedJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job1, created1, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	require.True(t, created1)

	job2, created2, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, job1.ID, job2.ID)
}

func TestEnqueue_DedupsAgainstRunningJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job1, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, job1.ID, claimed.ID)
	assert.Equal(t, types.JobRunning, claimed.Status)

	_, created, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnqueue_AllowsDifferentCommit(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	_, created1, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	require.True(t, created1)

	_, created2, err := q.Enqueue(ctx, "https://github.com/a/b", "sha2")
	require.NoError(t, err)
	assert.True(t, created2)
}

func TestClaimNext_ReturnsNilWhenEmpty(t *testing.T) {
	q := newTestQueue(t)
	job, err := q.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNext_ClaimsOldestFirst(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	first, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, _, err = q.Enqueue(ctx, "https://github.com/c/d", "sha2")
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID)
}

func TestComplete_MarksJobCompleted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, job.ID))
	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestFail_FirstFailureRequeues(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job.ID, "boom"))
	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "boom", got.Error)
}

func TestFail_SecondFailureIsTerminal(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)

	_, err = q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, "boom once"))

	_, err = q.ClaimNext(ctx) // requeued job becomes claimable again
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, "boom twice"))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.NotNil(t, got.CompletedAt)
}
