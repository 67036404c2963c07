package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/isocrates/isocrates/internal/types"
)

// AddKeywords merges keywords into a document's keyword set (deduped) and
// bumps its version, the same as any other document mutation.
func (s *Store) AddKeywords(ctx context.Context, docID string, keywords []string) (*types.Document, error) {
	return s.mutateKeywords(ctx, docID, func(existing map[string]bool) {
		for _, k := range keywords {
			existing[k] = true
		}
	})
}

// RemoveKeywords removes keywords from a document's keyword set and bumps
// its version.
func (s *Store) RemoveKeywords(ctx context.Context, docID string, keywords []string) (*types.Document, error) {
	return s.mutateKeywords(ctx, docID, func(existing map[string]bool) {
		for _, k := range keywords {
			delete(existing, k)
		}
	})
}

func (s *Store) mutateKeywords(ctx context.Context, docID string, mutate func(map[string]bool)) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.getByID(ctx, docID, false)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(doc.Keywords))
	for _, k := range doc.Keywords {
		set[k] = true
	}
	mutate(set)

	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}

	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("store: marshaling keywords for %s: %w", docID, err)
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE documents SET keywords = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		string(keywordsJSON), time.Now().UTC(), docID,
	); err != nil {
		return nil, fmt.Errorf("store: updating keywords for %s: %w", docID, err)
	}

	return s.getByID(ctx, docID, false)
}
