// Package store implements IsoCrates' content store (spec.md §4.9): a
// SQLite-backed table of documents, their immutable version history, and
// the wikilink dependency graph between them, with optimistic locking and a
// soft-delete lifecycle. Callers never coordinate versions, dependencies,
// and documents themselves — every invariant lives here.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
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

// Store wraps a SQLite database holding documents/versions/dependencies.
// Mirrors the teacher's LocalStore (store/local_core.go): single-writer
// SQLite opened with WAL + busy_timeout, guarded by an in-process mutex
// since SQLite itself only serializes at the file level.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema is current.
func Open(path string) (*Store, error) {
	log := logging.Get(logging.CategoryStore)

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: creating directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Sugar().Warnw("pragma failed", "pragma", pragma, "err", err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Upsert implements create_or_update (spec.md §4.9.2): computes the
// deterministic ID, routes to the insert or update path, always writes a
// new Version row and refreshes outgoing dependencies, and — when the
// document is new — refreshes incoming dependencies from any existing
// document whose content already links to this title.
func (s *Store) Upsert(ctx context.Context, create types.DocumentCreate) (*types.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := GenerateDocID(create.RepoURL, create.Path, create.Title, create.DocType)

	existing, err := s.getByID(ctx, id, true)
	var notFound *errs.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	isNew := existing == nil
	now := time.Now().UTC()
	keywordsJSON, _ := json.Marshal(create.Keywords)

	if isNew {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, repo_url, repo_name, doc_type, path, title, content, description, keywords, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			id, create.RepoURL, create.RepoName, create.DocType, create.Path, create.Title, create.Content, create.Description, string(keywordsJSON), now, now,
		); err != nil {
			return nil, false, fmt.Errorf("store: inserting document: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET content = ?, description = ?, keywords = ?, version = version + 1, updated_at = ?, embed_model = ''
			WHERE id = ?`,
			create.Content, create.Description, string(keywordsJSON), now, id,
		); err != nil {
			return nil, false, fmt.Errorf("store: updating document: %w", err)
		}
	}

	if err := insertVersion(ctx, tx, id, create.Content, create.AuthorType, create.AuthorMeta, now); err != nil {
		return nil, false, err
	}
	if err := refreshOutgoingDependencies(ctx, tx, id, create.Content); err != nil {
		return nil, false, err
	}
	if isNew {
		if err := refreshIncomingDependencies(ctx, tx, create.Title); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("store: committing upsert: %w", err)
	}

	doc, err := s.getByID(ctx, id, false)
	if err != nil {
		return nil, false, err
	}
	return doc, isNew, nil
}

// Update implements spec.md §4.9.3: an optimistic-locked content/description
// update. When expectedVersion is non-nil, the write is one atomic
// statement gated on `version = expectedVersion`; zero rows affected is
// disambiguated by a follow-up lookup into NotFound or Conflict. authorType
// is recorded on the new version as-is; an empty value defaults to
// types.AuthorAI, matching the original's DocumentUpdate.author_type default.
func (s *Store) Update(ctx context.Context, docID string, content, description *string, expectedVersion *int, authorType types.AuthorType, authorMeta types.AuthorMeta) (*types.Document, error) {
	if authorType == "" {
		authorType = types.AuthorAI
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getByID(ctx, docID, false)
	if err != nil {
		return nil, err
	}

	newContent := existing.Content
	if content != nil {
		newContent = *content
	}
	newDescription := existing.Description
	clearEmbed := false
	if description != nil {
		newDescription = *description
		clearEmbed = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var res sql.Result
	if expectedVersion != nil {
		embedClause := ""
		if clearEmbed {
			embedClause = ", embed_model = ''"
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE documents SET content = ?, description = ?, version = version + 1, updated_at = ?`+embedClause+`
			WHERE id = ? AND version = ?`,
			newContent, newDescription, now, docID, *expectedVersion,
		)
	} else {
		embedClause := ""
		if clearEmbed {
			embedClause = ", embed_model = ''"
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE documents SET content = ?, description = ?, version = version + 1, updated_at = ?`+embedClause+`
			WHERE id = ?`,
			newContent, newDescription, now, docID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("store: updating document %s: %w", docID, err)
	}

	if expectedVersion != nil {
		n, _ := res.RowsAffected()
		if n == 0 {
			if _, lookupErr := s.getByID(ctx, docID, false); lookupErr != nil {
				return nil, &errs.NotFoundError{ID: "document " + docID}
			}
			return nil, &errs.ConflictError{DocID: docID}
		}
	}

	if err := insertVersion(ctx, tx, docID, newContent, authorType, authorMeta, now); err != nil {
		return nil, err
	}
	if err := refreshOutgoingDependencies(ctx, tx, docID, newContent); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: committing update: %w", err)
	}
	return s.getByID(ctx, docID, false)
}

func insertVersion(ctx context.Context, tx *sql.Tx, docID, content string, authorType types.AuthorType, meta types.AuthorMeta, now time.Time) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: marshaling version metadata: %w", err)
	}
	sum := sha256.Sum256([]byte(content))
	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (id, doc_id, content, content_hash, author_type, author_meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), docID, content, hex.EncodeToString(sum[:]), string(authorType), string(metaJSON), now,
	)
	if err != nil {
		return fmt.Errorf("store: inserting version: %w", err)
	}
	return nil
}

// GetDocument returns an active document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getByID(ctx, id, false)
}

// getByID looks up a document by ID. When includeDeleted is false (the
// common case per spec.md §4.9.7's "no caller opts in"), soft-deleted rows
// are treated as not found.
func (s *Store) getByID(ctx context.Context, id string, includeDeleted bool) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_url, repo_name, doc_type, path, title, content, description, keywords, version, created_at, updated_at, deleted_at, embed_model
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, &errs.NotFoundError{ID: "document " + id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading document %s: %w", id, err)
	}
	if !includeDeleted && !doc.Active() {
		return nil, &errs.NotFoundError{ID: "document " + id}
	}
	return doc, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scannable) (*types.Document, error) {
	var d types.Document
	var keywordsJSON string
	var deletedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.RepoURL, &d.RepoName, &d.DocType, &d.Path, &d.Title, &d.Content, &d.Description, &keywordsJSON, &d.Version, &d.CreatedAt, &d.UpdatedAt, &deletedAt, &d.EmbedModel); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		d.DeletedAt = &t
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &d.Keywords)
	if len(d.Content) > 500 {
		d.Preview = d.Content[:500]
	} else {
		d.Preview = d.Content
	}
	return &d, nil
}

// ListOptions filters ListDocuments.
type ListOptions struct {
	Skip       int
	Limit      int
	PathPrefix string
	RepoURL    string
}

// ListDocuments returns active documents matching opts, newest-updated
// first.
func (s *Store) ListDocuments(ctx context.Context, opts ListOptions) ([]*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, repo_url, repo_name, doc_type, path, title, content, description, keywords, version, created_at, updated_at, deleted_at, embed_model
		FROM documents WHERE deleted_at IS NULL`
	var args []interface{}
	if opts.PathPrefix != "" {
		query += " AND path LIKE ?"
		args = append(args, opts.PathPrefix+"%")
	}
	if opts.RepoURL != "" {
		query += " AND repo_url = ?"
		args = append(args, opts.RepoURL)
	}
	query += " ORDER BY updated_at DESC LIMIT ? OFFSET ?"
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, opts.Skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Versions returns a document's version history, newest first.
func (s *Store) Versions(ctx context.Context, docID string) ([]types.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, content, content_hash, author_type, author_meta, created_at
		FROM versions WHERE doc_id = ? ORDER BY created_at DESC`, docID)
	if err != nil {
		return nil, fmt.Errorf("store: listing versions for %s: %w", docID, err)
	}
	defer rows.Close()

	var out []types.Version
	for rows.Next() {
		var v types.Version
		var metaJSON string
		var authorType string
		if err := rows.Scan(&v.ID, &v.DocID, &v.Content, &v.ContentHash, &authorType, &metaJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning version row: %w", err)
		}
		v.AuthorType = types.AuthorType(authorType)
		_ = json.Unmarshal([]byte(metaJSON), &v.AuthorMeta)
		out = append(out, v)
	}
	return out, rows.Err()
}
