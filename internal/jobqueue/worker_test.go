package jobqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/isocrates/isocrates/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakePipeline writes an executable shell script standing in for the
// "pipeline" binary, so the worker's subprocess-spawning path can be
// exercised without a real pipeline build.
func writeFakePipeline(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestWorker_RunJob_SuccessCompletesJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx)
	require.NoError(t, err)

	w := NewWorker(q, WorkerConfig{PipelineBinary: writeFakePipeline(t, "exit 0")})
	require.NoError(t, w.runJob(ctx, job.ID, job.RepoURL))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
}

func TestWorker_RunJob_NonZeroExitFailsJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx)
	require.NoError(t, err)

	w := NewWorker(q, WorkerConfig{PipelineBinary: writeFakePipeline(t, "echo 'boom' 1>&2\nexit 1")})
	require.NoError(t, w.runJob(ctx, job.ID, job.RepoURL))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status) // first failure requeues
	assert.Contains(t, got.Error, "boom")
}

func TestWorker_RunJob_TimeoutFailsJobWithTimedOutMessage(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job, _, err := q.Enqueue(ctx, "https://github.com/a/b", "sha1")
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx)
	require.NoError(t, err)

	w := NewWorker(q, WorkerConfig{
		PipelineBinary: writeFakePipeline(t, "sleep 5"),
		JobTimeout:     50 * time.Millisecond,
	})
	require.NoError(t, w.runJob(ctx, job.ID, job.RepoURL))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, got.Status)
	assert.Equal(t, "timed out", got.Error)
}

func TestTail_TruncatesLongOutput(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	got := tail(string(long), 500)
	assert.Len(t, got, 500)
}

func TestTail_LeavesShortOutputUntouched(t *testing.T) {
	assert.Equal(t, "short", tail("short", 500))
}
