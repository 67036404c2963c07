package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ensureClone clones repoURL into destDir if it doesn't already hold a git
// checkout, or pulls it up to date otherwise, then returns HEAD's SHA. Shells
// out to the `git` CLI directly rather than a git library, matching
// regen.GitCLI's convention (the example corpus never imports one).
func ensureClone(ctx context.Context, repoURL, destDir string) (string, error) {
	if _, err := os.Stat(filepath.Join(destDir, ".git")); err == nil {
		if err := runGit(ctx, destDir, "pull", "--ff-only"); err != nil {
			return "", fmt.Errorf("orchestrator: pulling %s: %w", repoURL, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
			return "", fmt.Errorf("orchestrator: preparing %s: %w", destDir, err)
		}
		if err := runGit(ctx, "", "clone", repoURL, destDir); err != nil {
			return "", fmt.Errorf("orchestrator: cloning %s: %w", repoURL, err)
		}
	}

	out, err := gitOutput(ctx, destDir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("orchestrator: resolving HEAD for %s: %w", repoURL, err)
	}
	return strings.TrimSpace(out), nil
}

// diffSummary returns `git diff --stat` between two commits, used as the
// diff scout's change summary. Empty string (not an error) if either SHA is
// unknown to this checkout, since a shallow clone can lose history.
func diffSummary(ctx context.Context, repoDir, fromSHA, toSHA string) string {
	out, err := gitOutput(ctx, repoDir, "diff", "--stat", fromSHA+".."+toSHA)
	if err != nil {
		return ""
	}
	return out
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}
	return nil
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// repoNameFromURL derives a filesystem-safe repo name from a clone URL,
// stripping a trailing ".git" the way the teacher's shard workspace naming
// does for repo checkouts.
func repoNameFromURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(repoURL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
