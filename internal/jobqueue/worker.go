package jobqueue

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/isocrates/isocrates/internal/cliui"
	"github.com/isocrates/isocrates/internal/logging"
	"go.uber.org/zap"
)

// defaultPollInterval is how often the worker checks for queued work when
// idle (spec.md §4.10).
const defaultPollInterval = 10 * time.Second

// jobTimeout is the wall-clock deadline for a single pipeline subprocess
// run (spec.md §5's "entire job (worker subprocess) 30min").
const jobTimeout = 30 * time.Minute

// stderrTailBytes is how much of a failed subprocess's stderr is kept as
// the job's error message (spec.md §4.10: "last 500 chars of stderr").
const stderrTailBytes = 500

// WorkerConfig configures the single-process worker loop.
type WorkerConfig struct {
	PipelineBinary string        // path to the "pipeline" executable
	PollInterval   time.Duration // defaults to 10s
	JobTimeout     time.Duration // defaults to 30m
}

// Worker runs the at-least-once claim/spawn/complete-or-fail loop described
// in spec.md §4.10: a single process, no internal concurrency, one job
// in flight at a time. A worker killed mid-job leaves that job "running"
// until a human resets it — the queue itself never reclaims stale leases.
type Worker struct {
	queue *Queue
	cfg   WorkerConfig
	log   *zap.Logger
}

// NewWorker constructs a Worker over queue, applying WorkerConfig defaults.
func NewWorker(queue *Queue, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = jobTimeout
	}
	return &Worker{queue: queue, cfg: cfg, log: logging.Get(logging.CategoryJobQueue)}
}

// Run blocks, claiming and executing jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			w.log.Sugar().Errorw("claim failed", "err", err)
			if !sleep(ctx, w.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			if !sleep(ctx, w.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		w.log.Sugar().Infow("claimed job", "job_id", job.ID, "repo_url", job.RepoURL, "commit_sha", job.CommitSHA, "queued", cliui.Since(job.CreatedAt))
		if err := w.runJob(ctx, job.ID, job.RepoURL); err != nil {
			w.log.Sugar().Errorw("job failed", "job_id", job.ID, "err", err)
		}
	}
}

// runJob spawns `pipeline --repo <repoURL>` with a wall-clock deadline and
// routes the subprocess's outcome to Complete or Fail. Mirrors the
// timeout-guarded exec.CommandContext pattern used throughout the pack's
// test/build runners: run under a derived context, capture stderr
// separately from stdout, and treat a non-zero exit or a timed-out context
// identically as a failure the caller can retry.
func (w *Worker) runJob(ctx context.Context, jobID, repoURL string) error {
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, w.cfg.PipelineBinary, "--repo", repoURL)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return w.queue.Fail(ctx, jobID, "timed out")
	}
	if err != nil {
		return w.queue.Fail(ctx, jobID, tail(stderr.String(), stderrTailBytes))
	}
	return w.queue.Complete(ctx, jobID)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
