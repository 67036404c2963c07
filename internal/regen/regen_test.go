package regen

import (
	"context"
	"testing"
	"time"

	"github.com/isocrates/isocrates/internal/types"
	"github.com/stretchr/testify/assert"
)

type fakeGit struct {
	head       string
	commits    map[string]int // recordedSHA -> commits since
	knownFroms map[string]bool
}

func (g fakeGit) HeadSHA(ctx context.Context) (string, error) { return g.head, nil }

func (g fakeGit) CommitsBetween(ctx context.Context, from string) (int, bool) {
	if !g.knownFroms[from] {
		return 0, false
	}
	return g.commits[from], true
}

func TestShouldRegenerate_NoHistory(t *testing.T) {
	d := ShouldRegenerate(context.Background(), fakeGit{}, false, LatestVersion{}, time.Now())
	assert.True(t, d.Regenerate)
}

func TestShouldRegenerate_FreshHumanEditSkips(t *testing.T) {
	now := time.Now()
	latest := LatestVersion{AuthorType: types.AuthorHuman, CreatedAt: now.Add(-2 * 24 * time.Hour)}
	d := ShouldRegenerate(context.Background(), fakeGit{}, true, latest, now)
	assert.False(t, d.Regenerate)
}

func TestShouldRegenerate_OldHumanEditRepoUnchangedSkips(t *testing.T) {
	now := time.Now()
	latest := LatestVersion{AuthorType: types.AuthorHuman, CommitSHA: "abc123", CreatedAt: now.Add(-30 * 24 * time.Hour)}
	g := fakeGit{head: "abc123"}
	d := ShouldRegenerate(context.Background(), g, true, latest, now)
	assert.False(t, d.Regenerate)
}

func TestShouldRegenerate_OldHumanEditMinorChangeSkips(t *testing.T) {
	now := time.Now()
	latest := LatestVersion{AuthorType: types.AuthorHuman, CommitSHA: "abc123", CreatedAt: now.Add(-30 * 24 * time.Hour)}
	g := fakeGit{head: "def456", commits: map[string]int{"abc123": 3}, knownFroms: map[string]bool{"abc123": true}}
	d := ShouldRegenerate(context.Background(), g, true, latest, now)
	assert.False(t, d.Regenerate)
}

func TestShouldRegenerate_OldHumanEditSignificantChangeRegenerates(t *testing.T) {
	now := time.Now()
	latest := LatestVersion{AuthorType: types.AuthorHuman, CommitSHA: "abc123", CreatedAt: now.Add(-30 * 24 * time.Hour)}
	g := fakeGit{head: "def456", commits: map[string]int{"abc123": 9}, knownFroms: map[string]bool{"abc123": true}}
	d := ShouldRegenerate(context.Background(), g, true, latest, now)
	assert.True(t, d.Regenerate)
}

func TestShouldRegenerate_OldHumanEditUnknownCommitRegenerates(t *testing.T) {
	now := time.Now()
	latest := LatestVersion{AuthorType: types.AuthorHuman, CommitSHA: "abc123", CreatedAt: now.Add(-30 * 24 * time.Hour)}
	g := fakeGit{head: "def456"} // CommitsBetween returns !ok
	d := ShouldRegenerate(context.Background(), g, true, latest, now)
	assert.True(t, d.Regenerate)
}

func TestShouldRegenerate_AIRecentRepoUnchangedSkips(t *testing.T) {
	now := time.Now()
	latest := LatestVersion{AuthorType: types.AuthorAI, CommitSHA: "abc123", CreatedAt: now.Add(-5 * 24 * time.Hour)}
	g := fakeGit{head: "abc123"}
	d := ShouldRegenerate(context.Background(), g, true, latest, now)
	assert.False(t, d.Regenerate)
}

func TestShouldRegenerate_AIOldRegenerates(t *testing.T) {
	now := time.Now()
	latest := LatestVersion{AuthorType: types.AuthorAI, CommitSHA: "abc123", CreatedAt: now.Add(-40 * 24 * time.Hour)}
	g := fakeGit{head: "abc123"}
	d := ShouldRegenerate(context.Background(), g, true, latest, now)
	assert.True(t, d.Regenerate)
}

func TestShouldRegenerateTargeted_LegacyHasNoHashes(t *testing.T) {
	d := ShouldRegenerateTargeted(nil, map[string]string{"a.go": "h1"})
	assert.True(t, d.Regenerate)
	assert.Equal(t, "legacy", d.Reason)
}

func TestShouldRegenerateTargeted_NoChangesSkips(t *testing.T) {
	stored := map[string]string{"a.go": "h1"}
	current := map[string]string{"a.go": "h1"}
	d := ShouldRegenerateTargeted(stored, current)
	assert.False(t, d.Regenerate)
}

func TestShouldRegenerateTargeted_ChangedFileRegenerates(t *testing.T) {
	stored := map[string]string{"a.go": "h1"}
	current := map[string]string{"a.go": "h2"}
	d := ShouldRegenerateTargeted(stored, current)
	assert.True(t, d.Regenerate)
	assert.Equal(t, []string{"a.go"}, d.ChangedFiles)
}
