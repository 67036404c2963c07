// Package jobqueue implements the generation-job queue and worker loop of
// spec.md §4.10: webhook deliveries enqueue a job, a single worker process
// claims and runs them one at a time via the pipeline subprocess, with
// at-least-once semantics and a one-retry policy.
package jobqueue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/isocrates/isocrates/internal/errs"
	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/types"
	"go.uber.org/zap"
)

// maxRetries is how many times Fail requeues a job before giving up
// (spec.md §4.10: "retry_count ≤ 1 → queued, else failed").
const maxRetries = 1

// Queue wraps a SQLite-backed generation_jobs table. It opens its own
// connection so it can run independently of the content store (cmd/pipeline
// gives it a separate database file, the store's path plus ".jobs"), with
// the same one-mutex-per-handle discipline as internal/store.
type Queue struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the generation_jobs table exists.
func Open(path string) (*Queue, error) {
	log := logging.Get(logging.CategoryJobQueue)

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("jobqueue: creating directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Sugar().Warnw("pragma failed", "pragma", pragma, "err", err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS generation_jobs (
			id           TEXT PRIMARY KEY,
			repo_url     TEXT NOT NULL,
			commit_sha   TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'queued',
			retry_count  INTEGER NOT NULL DEFAULT 0,
			error        TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at   DATETIME,
			completed_at DATETIME
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobqueue: creating generation_jobs table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_status ON generation_jobs(status, created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobqueue: creating status index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_repo_commit ON generation_jobs(repo_url, commit_sha)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobqueue: creating repo/commit index: %w", err)
	}

	return &Queue{db: db, log: log}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// Enqueue inserts a new queued job for (repoURL, commitSHA), unless a job
// for the same pair is already queued or running — in which case the
// existing job is returned with created=false (spec.md §4.10's dedup
// rule).
func (q *Queue) Enqueue(ctx context.Context, repoURL, commitSHA string) (*types.GenerationJob, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.findActive(ctx, repoURL, commitSHA)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO generation_jobs (id, repo_url, commit_sha, status, retry_count, error, created_at)
		VALUES (?, ?, ?, ?, 0, '', ?)`,
		id, repoURL, commitSHA, types.JobQueued, now,
	); err != nil {
		return nil, false, fmt.Errorf("jobqueue: enqueuing job for %s@%s: %w", repoURL, commitSHA, err)
	}

	job, err := q.getByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (q *Queue) findActive(ctx context.Context, repoURL, commitSHA string) (*types.GenerationJob, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, repo_url, commit_sha, status, retry_count, error, created_at, started_at, completed_at
		FROM generation_jobs
		WHERE repo_url = ? AND commit_sha = ? AND status IN (?, ?)
		ORDER BY created_at ASC LIMIT 1`,
		repoURL, commitSHA, types.JobQueued, types.JobRunning,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue: checking for active job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically claims the oldest queued job, marking it running.
// Returns (nil, nil) when the queue is empty.
func (q *Queue) ClaimNext(ctx context.Context) (*types.GenerationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		row := q.db.QueryRowContext(ctx, `
			SELECT id FROM generation_jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`, types.JobQueued)
		var id string
		if err := row.Scan(&id); err == sql.ErrNoRows {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("jobqueue: finding next queued job: %w", err)
		}

		res, err := q.db.ExecContext(ctx, `
			UPDATE generation_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			types.JobRunning, time.Now().UTC(), id, types.JobQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("jobqueue: claiming job %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue // lost a race with another claimant; try again
		}
		return q.getByID(ctx, id)
	}
}

// Complete marks a running job completed.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.db.ExecContext(ctx, `
		UPDATE generation_jobs SET status = ?, completed_at = ? WHERE id = ?`,
		types.JobCompleted, time.Now().UTC(), jobID,
	)
	if err != nil {
		return fmt.Errorf("jobqueue: completing job %s: %w", jobID, err)
	}
	return nil
}

// Fail records a job failure. The first failure (retry_count becomes 1)
// requeues the job; any subsequent failure marks it permanently failed
// (spec.md §4.10).
func (q *Queue) Fail(ctx context.Context, jobID, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.getByID(ctx, jobID)
	if err != nil {
		return err
	}
	retryCount := job.RetryCount + 1
	now := time.Now().UTC()

	if retryCount <= maxRetries {
		_, err = q.db.ExecContext(ctx, `
			UPDATE generation_jobs SET status = ?, retry_count = ?, error = ?, started_at = NULL WHERE id = ?`,
			types.JobQueued, retryCount, errMsg, jobID,
		)
	} else {
		_, err = q.db.ExecContext(ctx, `
			UPDATE generation_jobs SET status = ?, retry_count = ?, error = ?, completed_at = ? WHERE id = ?`,
			types.JobFailed, retryCount, errMsg, now, jobID,
		)
	}
	if err != nil {
		return fmt.Errorf("jobqueue: recording failure for job %s: %w", jobID, err)
	}
	return nil
}

// Get returns a job by ID.
func (q *Queue) Get(ctx context.Context, jobID string) (*types.GenerationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getByID(ctx, jobID)
}

func (q *Queue) getByID(ctx context.Context, jobID string) (*types.GenerationJob, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, repo_url, commit_sha, status, retry_count, error, created_at, started_at, completed_at
		FROM generation_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, &errs.NotFoundError{ID: "job " + jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue: loading job %s: %w", jobID, err)
	}
	return job, nil
}

func scanJob(row *sql.Row) (*types.GenerationJob, error) {
	var j types.GenerationJob
	var status string
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&j.ID, &j.RepoURL, &j.CommitSHA, &status, &j.RetryCount, &j.Error, &j.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}
