package store

import (
	"context"
	"fmt"
	"time"

	"github.com/isocrates/isocrates/internal/errs"
	"github.com/isocrates/isocrates/internal/types"
)

// purgeExpiredDays is PurgeExpired's default retention window (spec.md
// §4.9.7's "purge_expired(days=30)").
const purgeExpiredDays = 30

// humanEditProtectionDays is how long a human-authored document is
// immune to orphan cleanup (spec.md §4.9.8).
const humanEditProtectionDays = 7

// minSuccessRatio is the orphan-cleanup safety floor: below this fraction
// of successful writes, cleanup is refused outright (spec.md §4.9.8).
const minSuccessRatio = 0.5

// Delete soft-deletes a document. Idempotent (spec.md §4.9.7).
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: soft-deleting %s: %w", id, err)
	}
	return nil
}

// Restore clears a document's deletion timestamp. Idempotent; version
// history is preserved unchanged.
func (s *Store) Restore(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET deleted_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: restoring %s: %w", id, err)
	}
	return nil
}

// PermanentDelete removes a document and its versions/dependencies
// outright. Idempotent.
func (s *Store) PermanentDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning permanent delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE from_doc_id = ? OR to_doc_id = ?`, id, id); err != nil {
		return fmt.Errorf("store: deleting dependencies for %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("store: deleting versions for %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: deleting document %s: %w", id, err)
	}
	return tx.Commit()
}

// GetDeleted returns soft-deleted documents (the trash view).
func (s *Store) GetDeleted(ctx context.Context) ([]*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_url, repo_name, doc_type, path, title, content, description, keywords, version, created_at, updated_at, deleted_at, embed_model
		FROM documents WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: listing deleted documents: %w", err)
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning deleted document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// PurgeExpired permanently deletes documents that have been in the trash
// longer than olderThanDays (default 30 per spec.md §4.9.7). Returns the
// number of documents purged.
func (s *Store) PurgeExpired(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		olderThanDays = purgeExpiredDays
	}
	cutoff := time.Now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff)
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("store: finding expired documents: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.PermanentDelete(ctx, id); err != nil {
			return 0, fmt.Errorf("store: purging %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// Snapshot is the pre-run set of documents for a repo, captured by the
// orchestrator before a pipeline run so cleanup can later tell which
// documents survived regeneration (spec.md §4.11 step 4).
type Snapshot struct {
	DocIDs        []string
	ByID          map[string]*types.Document
	HumanEdited   map[string]bool // protected: human-edited and < 7 days old
	UserOrganized map[string]bool // doc ID no longer matches its deterministic recomputation
}

// Snapshot builds the pre-run document snapshot for repoURL (spec.md
// §4.11 step 4).
func (s *Store) Snapshot(ctx context.Context, repoURL string) (*Snapshot, error) {
	docs, err := s.ListDocuments(ctx, ListOptions{RepoURL: repoURL, Limit: 1_000_000})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ByID:          make(map[string]*types.Document, len(docs)),
		HumanEdited:   make(map[string]bool),
		UserOrganized: make(map[string]bool),
	}
	now := time.Now().UTC()
	for _, d := range docs {
		snap.DocIDs = append(snap.DocIDs, d.ID)
		snap.ByID[d.ID] = d

		versions, err := s.Versions(ctx, d.ID)
		if err == nil && len(versions) > 0 {
			latest := versions[0]
			if latest.AuthorType == types.AuthorHuman && now.Sub(latest.CreatedAt) < humanEditProtectionDays*24*time.Hour {
				snap.HumanEdited[d.ID] = true
			}
		}

		if GenerateDocID(d.RepoURL, d.Path, d.Title, d.DocType) != d.ID {
			snap.UserOrganized[d.ID] = true
		}
	}
	return snap, nil
}

// CleanupOrphans deletes documents present in snapshot but absent from
// both generatedIDs and failedIDs — i.e. documents that existed before the
// run and were not touched by it — enforcing the hard invariants of
// spec.md §4.9.8.
func (s *Store) CleanupOrphans(ctx context.Context, snapshot *Snapshot, generatedIDs, failedIDs []string) (int, error) {
	if len(generatedIDs) == 0 {
		return 0, errs.NewSafetyRefusal("cleanup skipped: no documents were successfully generated this run")
	}

	total := len(generatedIDs) + len(failedIDs)
	if total > 0 && float64(len(generatedIDs))/float64(total) < minSuccessRatio {
		return 0, errs.NewSafetyRefusal("cleanup skipped: success ratio %d/%d below safety floor", len(generatedIDs), total)
	}

	touched := make(map[string]bool, total)
	for _, id := range generatedIDs {
		touched[id] = true
	}
	for _, id := range failedIDs {
		touched[id] = true
	}

	var orphans []string
	for _, id := range snapshot.DocIDs {
		if touched[id] {
			continue
		}
		if snapshot.HumanEdited[id] {
			continue
		}
		if snapshot.UserOrganized[id] {
			continue
		}
		orphans = append(orphans, id)
	}

	for _, id := range orphans {
		if err := s.Delete(ctx, id); err != nil {
			return 0, fmt.Errorf("store: deleting orphan %s: %w", id, err)
		}
	}
	return len(orphans), nil
}
