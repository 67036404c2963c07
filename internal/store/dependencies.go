package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/isocrates/isocrates/internal/errs"
	"github.com/isocrates/isocrates/internal/types"
)

var wikilinkTargetRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// extractWikilinkTargets pulls the pre-pipe portion of every [[target]] /
// [[target|display]] in content, discarding URL-like targets (spec.md
// §4.9.4 step 2).
func extractWikilinkTargets(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range wikilinkTargetRe.FindAllStringSubmatch(content, -1) {
		target := m[1]
		if idx := strings.IndexByte(target, '|'); idx >= 0 {
			target = target[:idx]
		}
		target = strings.TrimSpace(target)
		if target == "" || seen[target] {
			continue
		}
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "ftp://") {
			continue
		}
		seen[target] = true
		out = append(out, target)
	}
	return out
}

// resolveTargets implements spec.md §4.9.4 step 3's four-stage batch
// lookup: exact title, case-insensitive title, exact repo_name,
// case-insensitive repo_name, each resolving the targets the previous stage
// left unresolved.
func resolveTargets(ctx context.Context, tx *sql.Tx, targets []string) (map[string]string, error) {
	resolved := make(map[string]string, len(targets))
	remaining := append([]string(nil), targets...)

	stages := []string{
		`SELECT title, id FROM documents WHERE deleted_at IS NULL AND title IN (%s)`,
		`SELECT title, id FROM documents WHERE deleted_at IS NULL AND LOWER(title) IN (%s)`,
		`SELECT repo_name, id FROM documents WHERE deleted_at IS NULL AND repo_name IN (%s)`,
		`SELECT repo_name, id FROM documents WHERE deleted_at IS NULL AND LOWER(repo_name) IN (%s)`,
	}
	caseInsensitive := []bool{false, true, false, true}

	for i, queryTmpl := range stages {
		if len(remaining) == 0 {
			break
		}
		lookup := make(map[string]string, len(remaining)) // lowered-or-exact key -> original target
		keys := make([]string, 0, len(remaining))
		for _, t := range remaining {
			key := t
			if caseInsensitive[i] {
				key = strings.ToLower(t)
			}
			lookup[key] = t
			keys = append(keys, key)
		}

		placeholders := make([]string, len(keys))
		args := make([]interface{}, len(keys))
		for j, k := range keys {
			placeholders[j] = "?"
			args[j] = k
		}
		query := fmt.Sprintf(queryTmpl, strings.Join(placeholders, ","))

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("store: resolving wikilink targets (stage %d): %w", i+1, err)
		}
		matched := make(map[string]bool)
		for rows.Next() {
			var key, docID string
			if err := rows.Scan(&key, &docID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scanning wikilink resolution row: %w", err)
			}
			k := key
			if caseInsensitive[i] {
				k = strings.ToLower(key)
			}
			if original, ok := lookup[k]; ok && !matched[original] {
				resolved[original] = docID
				matched[original] = true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		var next []string
		for _, t := range remaining {
			if !matched[t] {
				next = append(next, t)
			}
		}
		remaining = next
	}

	return resolved, nil
}

// refreshOutgoingDependencies implements spec.md §4.9.4: delete every
// outgoing dependency for docID, re-extract and re-resolve wikilink
// targets, and insert fresh rows. Unresolved targets are dropped silently
// (logged, not a write failure).
func refreshOutgoingDependencies(ctx context.Context, tx *sql.Tx, docID, content string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE from_doc_id = ?`, docID); err != nil {
		return fmt.Errorf("store: clearing outgoing dependencies for %s: %w", docID, err)
	}

	targets := extractWikilinkTargets(content)
	if len(targets) == 0 {
		return nil
	}
	resolved, err := resolveTargets(ctx, tx, targets)
	if err != nil {
		return err
	}

	for target, toDocID := range resolved {
		if toDocID == docID {
			continue // skip self-links
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO dependencies (from_doc_id, to_doc_id, link_type, link_text, section)
			VALUES (?, ?, ?, ?, '')`,
			docID, toDocID, types.WikilinkType, target,
		); err != nil {
			return fmt.Errorf("store: inserting dependency %s -> %s: %w", docID, toDocID, err)
		}
	}
	return nil
}

// refreshIncomingDependencies re-derives outgoing dependencies for every
// existing document whose content literally contains [[newTitle]], so
// forward references resolve once the target document now exists (spec.md
// §4.9.2).
func refreshIncomingDependencies(ctx context.Context, tx *sql.Tx, newTitle string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, content FROM documents
		WHERE deleted_at IS NULL AND content LIKE ?`,
		"%[["+newTitle+"%",
	)
	if err != nil {
		return fmt.Errorf("store: scanning for forward references to %q: %w", newTitle, err)
	}
	type candidate struct{ id, content string }
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.content); err != nil {
			rows.Close()
			return fmt.Errorf("store: scanning forward-reference row: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range candidates {
		if err := refreshOutgoingDependencies(ctx, tx, c.id, c.content); err != nil {
			return err
		}
	}
	return nil
}

// AddTypedDependency inserts a non-wikilink dependency edge, enforcing the
// cycle rule in spec.md §4.9.5: wikilinks may cycle, other link types may
// not. Reachability is checked with an iterative DFS (explicit stack) to
// avoid recursion-depth limits on deep graphs.
func (s *Store) AddTypedDependency(ctx context.Context, fromDocID, toDocID, linkType, linkText, section string) error {
	if linkType == types.WikilinkType {
		return fmt.Errorf("store: use the wikilink path for link_type %q", types.WikilinkType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reachable, err := canReach(ctx, s.db, toDocID, fromDocID)
	if err != nil {
		return err
	}
	if reachable {
		return errs.NewValidationError("dependency %s -> %s of type %q would close a cycle", fromDocID, toDocID, linkType)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO dependencies (from_doc_id, to_doc_id, link_type, link_text, section)
		VALUES (?, ?, ?, ?, ?)`,
		fromDocID, toDocID, linkType, linkText, section,
	)
	if err != nil {
		return fmt.Errorf("store: inserting typed dependency %s -> %s: %w", fromDocID, toDocID, err)
	}
	return nil
}

// canReach reports whether target is reachable from start by following
// dependency edges of any type, via iterative DFS.
func canReach(ctx context.Context, db *sql.DB, start, target string) (bool, error) {
	stack := []string{start}
	visited := map[string]bool{start: true}
	for len(stack) > 0 {
		n := len(stack) - 1
		node := stack[n]
		stack = stack[:n]
		if node == target {
			return true, nil
		}
		rows, err := db.QueryContext(ctx, `SELECT to_doc_id FROM dependencies WHERE from_doc_id = ?`, node)
		if err != nil {
			return false, fmt.Errorf("store: walking dependency graph from %s: %w", node, err)
		}
		var next []string
		for rows.Next() {
			var to string
			if err := rows.Scan(&to); err != nil {
				rows.Close()
				return false, err
			}
			next = append(next, to)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, err
		}
		for _, to := range next {
			if !visited[to] {
				visited[to] = true
				stack = append(stack, to)
			}
		}
	}
	return false, nil
}

// Dependencies returns a document's outgoing and incoming dependency edges.
func (s *Store) Dependencies(ctx context.Context, docID string) (outgoing, incoming []types.Dependency, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outgoing, err = queryDependencies(ctx, s.db, `SELECT from_doc_id, to_doc_id, link_type, link_text, section FROM dependencies WHERE from_doc_id = ?`, docID)
	if err != nil {
		return nil, nil, err
	}
	incoming, err = queryDependencies(ctx, s.db, `SELECT from_doc_id, to_doc_id, link_type, link_text, section FROM dependencies WHERE to_doc_id = ?`, docID)
	if err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}

func queryDependencies(ctx context.Context, db *sql.DB, query, docID string) ([]types.Dependency, error) {
	rows, err := db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("store: querying dependencies: %w", err)
	}
	defer rows.Close()

	var out []types.Dependency
	for rows.Next() {
		var d types.Dependency
		if err := rows.Scan(&d.FromDocID, &d.ToDocID, &d.LinkType, &d.LinkText, &d.Section); err != nil {
			return nil, fmt.Errorf("store: scanning dependency row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
