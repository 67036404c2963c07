package store

import (
	"database/sql"
	"fmt"

	"github.com/isocrates/isocrates/internal/logging"
)

// CurrentSchemaVersion tracks the store's on-disk shape, mirroring the
// teacher's versioned-migration convention (store/migrations.go).
const CurrentSchemaVersion = 1

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		repo_url     TEXT NOT NULL DEFAULT '',
		repo_name    TEXT NOT NULL DEFAULT '',
		doc_type     TEXT NOT NULL DEFAULT '',
		path         TEXT NOT NULL DEFAULT '',
		title        TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		keywords     TEXT NOT NULL DEFAULT '[]',
		version      INTEGER NOT NULL DEFAULT 1,
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at   DATETIME,
		embed_model  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_repo_url ON documents(repo_url)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_title ON documents(title)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_deleted_at ON documents(deleted_at)`,

	`CREATE TABLE IF NOT EXISTS versions (
		id           TEXT PRIMARY KEY,
		doc_id       TEXT NOT NULL REFERENCES documents(id),
		content      TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		author_type  TEXT NOT NULL DEFAULT '',
		author_meta  TEXT NOT NULL DEFAULT '{}',
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_versions_doc_id ON versions(doc_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS dependencies (
		from_doc_id  TEXT NOT NULL,
		to_doc_id    TEXT NOT NULL,
		link_type    TEXT NOT NULL DEFAULT 'wikilink',
		link_text    TEXT NOT NULL DEFAULT '',
		section      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (from_doc_id, to_doc_id, link_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dependencies_to ON dependencies(to_doc_id)`,

	`CREATE TABLE IF NOT EXISTS generation_jobs (
		id           TEXT PRIMARY KEY,
		repo_url     TEXT NOT NULL,
		commit_sha   TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'queued',
		retry_count  INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at   DATETIME,
		completed_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON generation_jobs(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_repo_commit ON generation_jobs(repo_url, commit_sha)`,
}

// runMigrations creates every table/index the store needs if missing,
// mirroring the teacher's idempotent CREATE TABLE IF NOT EXISTS convention
// (store/migrations.go's tableExists/columnExists gating, simplified here
// since IsoCrates ships one schema version rather than the teacher's v1-v4
// upgrade chain).
func runMigrations(db *sql.DB) error {
	log := logging.Get(logging.CategoryStore)
	for _, stmt := range createStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: running migration: %w", err)
		}
	}
	log.Sugar().Infow("schema ready", "version", CurrentSchemaVersion)
	return nil
}
