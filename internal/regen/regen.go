// Package regen implements the regeneration decision engine (spec.md §4.8):
// two entry points that decide whether a document needs to be rewritten.
package regen

import (
	"context"
	"time"

	"github.com/isocrates/isocrates/internal/types"
)

// significantChangeCommits is the commit-count threshold past which a
// human-edited document is considered stale enough to regenerate.
const significantChangeCommits = 5

// humanEditGraceDays is how long a human edit is respected outright.
const humanEditGraceDays = 7

// aiEditGraceDays is how long an AI-authored, repo-unchanged document is
// left alone before being reconsidered.
const aiEditGraceDays = 30

// Git is the repository inspection the decision engine needs. Implemented
// over the `git` CLI in production (see GitCLI), scripted directly in
// tests.
type Git interface {
	// CommitsBetween returns the number of commits from `from` (exclusive)
	// to HEAD. ok is false when the comparison can't be made (unknown SHA,
	// shallow clone, etc.) — callers must then treat the repo as changed.
	CommitsBetween(ctx context.Context, from string) (count int, ok bool)
	HeadSHA(ctx context.Context) (string, error)
}

// Decision is the engine's verdict plus the reason a human operator or log
// line would want to see.
type Decision struct {
	Regenerate bool
	Reason     string
}

// LatestVersion is the subset of version history the engine reasons about.
type LatestVersion struct {
	AuthorType types.AuthorType
	CommitSHA  string
	CreatedAt  time.Time
}

// ShouldRegenerate evaluates the 7 ordered rules of spec.md §4.8 against a
// document's latest version. hasHistory is false when the document has no
// version rows at all (rule 1 also covers empty content, checked by the
// caller before invoking this).
func ShouldRegenerate(ctx context.Context, g Git, hasHistory bool, latest LatestVersion, now time.Time) Decision {
	if !hasHistory {
		return Decision{Regenerate: true, Reason: "no existing document or version history"}
	}

	age := now.Sub(latest.CreatedAt)

	if latest.AuthorType == types.AuthorHuman {
		if age < humanEditGraceDays*24*time.Hour {
			return Decision{Reason: "human edit is fresh, younger than 7 days"}
		}
		unchanged, commits, known := repoStatus(ctx, g, latest.CommitSHA)
		switch {
		case unchanged:
			return Decision{Reason: "human edit, repo unchanged since recorded commit"}
		case known && commits < significantChangeCommits:
			return Decision{Reason: "human edit, fewer than 5 new commits since recorded commit"}
		default:
			return Decision{Regenerate: true, Reason: "human edit is stale: 5+ new commits or unknown commit since it was recorded"}
		}
	}

	// AI-authored.
	if age < aiEditGraceDays*24*time.Hour {
		unchanged, _, _ := repoStatus(ctx, g, latest.CommitSHA)
		if unchanged {
			return Decision{Reason: "AI-authored, younger than 30 days, repo unchanged"}
		}
	}
	return Decision{Regenerate: true, Reason: "AI-authored document is due for regeneration"}
}

// repoStatus reports whether the repo is unchanged since recordedSHA, the
// commit count since then, and whether that count could be determined at
// all. Inability to compare is treated as "changed, assume significant"
// (spec.md §4.8).
func repoStatus(ctx context.Context, g Git, recordedSHA string) (unchanged bool, commits int, known bool) {
	if recordedSHA == "" {
		return false, 0, false
	}
	head, err := g.HeadSHA(ctx)
	if err == nil && head == recordedSHA {
		return true, 0, true
	}
	count, ok := g.CommitsBetween(ctx, recordedSHA)
	if !ok {
		return false, 0, false
	}
	return count == 0, count, true
}

// TargetedDecision is the fine-grained verdict from ShouldRegenerateTargeted.
type TargetedDecision struct {
	Regenerate   bool
	Reason       string
	ChangedFiles []string
}

// ShouldRegenerateTargeted compares current per-file source hashes against
// those stored on the document's latest version (spec.md §4.8). A document
// whose latest version predates per-file hashing always regenerates.
func ShouldRegenerateTargeted(storedHashes map[string]string, currentHashes map[string]string) TargetedDecision {
	if storedHashes == nil {
		return TargetedDecision{Regenerate: true, Reason: "legacy"}
	}

	var changed []string
	for path, hash := range currentHashes {
		if storedHashes[path] != hash {
			changed = append(changed, path)
		}
	}
	if len(changed) == 0 {
		return TargetedDecision{Reason: "no source file changes"}
	}
	return TargetedDecision{Regenerate: true, Reason: "source files changed", ChangedFiles: changed}
}
