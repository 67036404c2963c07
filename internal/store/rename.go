package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/isocrates/isocrates/internal/types"
)

// Move changes a document's path, and — when that changes its first path
// segment ("crate") — rewrites every other document's [[<old_crate>]]
// wikilinks to [[<new_crate>]] as one logical transaction (spec.md §4.9.6).
// Each rewritten document gets a new system-authored version recording the
// reason.
func (s *Store) Move(ctx context.Context, docID, newPath string) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.getByID(ctx, docID, false)
	if err != nil {
		return nil, err
	}
	oldCrate := doc.Crate()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: beginning move transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET path = ?, version = version + 1, updated_at = ? WHERE id = ?`, newPath, now, docID); err != nil {
		return nil, fmt.Errorf("store: updating path for %s: %w", docID, err)
	}

	newCrate := firstSegment(newPath)
	if newCrate != oldCrate {
		if err := rewriteCrateWikilinks(ctx, tx, docID, oldCrate, newCrate, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: committing move: %w", err)
	}
	return s.getByID(ctx, docID, false)
}

func firstSegment(path string) string {
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}

// rewriteCrateWikilinks rewrites every [[<oldCrate>]] occurrence across
// other documents to [[<newCrate>]], versioning each rewritten document
// with author type system and the wikilink_update reason (spec.md §4.9.6).
func rewriteCrateWikilinks(ctx context.Context, tx *sql.Tx, movedDocID, oldCrate, newCrate string, now time.Time) error {
	oldLink := "[[" + oldCrate + "]]"
	newLink := "[[" + newCrate + "]]"

	rows, err := tx.QueryContext(ctx, `SELECT id, content FROM documents WHERE deleted_at IS NULL AND content LIKE ? AND id != ?`, "%"+oldLink+"%", movedDocID)
	if err != nil {
		return fmt.Errorf("store: scanning for crate wikilinks to %q: %w", oldCrate, err)
	}
	type row struct{ id, content string }
	var affected []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.content); err != nil {
			rows.Close()
			return fmt.Errorf("store: scanning crate-wikilink row: %w", err)
		}
		affected = append(affected, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range affected {
		rewritten := strings.ReplaceAll(r.content, oldLink, newLink)
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET content = ?, version = version + 1, updated_at = ? WHERE id = ?`, rewritten, now, r.id); err != nil {
			return fmt.Errorf("store: rewriting crate wikilinks in %s: %w", r.id, err)
		}
		meta := types.AuthorMeta{Reason: "wikilink_update", MovedDoc: movedDocID}
		if err := insertVersion(ctx, tx, r.id, rewritten, types.AuthorSystem, meta, now); err != nil {
			return err
		}
		if err := refreshOutgoingDependencies(ctx, tx, r.id, rewritten); err != nil {
			return err
		}
	}
	return nil
}
