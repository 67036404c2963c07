package scout

import (
	"context"
	"testing"

	"github.com/isocrates/isocrates/internal/breaker"
	"github.com/isocrates/isocrates/internal/config"
	"github.com/isocrates/isocrates/internal/llm"
	"github.com/isocrates/isocrates/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(responses ...string) (*Pool, *llm.FakeClient) {
	fake := llm.NewFakeClient("scout-default", responses...)
	pool := NewPool(func() llm.Client { return fake }, config.ScoutConfig{Parallel: 4}, breaker.NewRegistry(3, 0))
	return pool, fake
}

func TestSelectTopics(t *testing.T) {
	assert.Equal(t, []string{"structure", "architecture", "api"}, SelectTopics(0.1))
	assert.Equal(t, []string{"structure", "architecture", "api", "infra"}, SelectTopics(0.5))
	assert.Equal(t, []string{"structure", "architecture", "api", "infra", "tests"}, SelectTopics(1.5))
}

func TestRunTopicScouts_ThreeAlwaysOnTopicsAtLowRatio(t *testing.T) {
	pool, fake := newTestPool("report body")
	analysis := &types.Analysis{TokenEstimate: 1000, Modules: map[string]*types.ModuleInfo{}}

	reports, err := pool.RunTopicScouts(context.Background(), analysis, 0.1)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.False(t, r.Failed)
		assert.Equal(t, "report body", r.Content)
	}
	assert.Equal(t, 3, fake.CallCount())
}

func TestRunTopicScouts_ParallelWaveAtFiveTopics(t *testing.T) {
	pool, _ := newTestPool("report body")
	analysis := &types.Analysis{TokenEstimate: 1000, Modules: map[string]*types.ModuleInfo{}}

	reports, err := pool.RunTopicScouts(context.Background(), analysis, 1.5)
	require.NoError(t, err)
	require.Len(t, reports, 5)
	keys := make(map[string]bool)
	for _, r := range reports {
		keys[r.Key] = true
	}
	for _, k := range []string{"structure", "architecture", "api", "infra", "tests"} {
		assert.True(t, keys[k], "missing topic %s", k)
	}
}

func TestRunTopicScouts_RetryThenFailureReport(t *testing.T) {
	fake := llm.NewFakeClient("scout-default").WithError(assertErr{})
	pool := NewPool(func() llm.Client { return fake }, config.ScoutConfig{Parallel: 4}, breaker.NewRegistry(10, 0))
	analysis := &types.Analysis{TokenEstimate: 1000, Modules: map[string]*types.ModuleInfo{}}

	reports, err := pool.RunTopicScouts(context.Background(), analysis, 0.1)
	require.NoError(t, err)
	for _, r := range reports {
		assert.True(t, r.Failed)
		assert.Contains(t, r.Content, "scout")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestRunModuleScouts_SkippedBelowThresholds(t *testing.T) {
	pool, _ := newTestPool("report body")
	analysis := &types.Analysis{
		TokenEstimate: 1000,
		Modules: map[string]*types.ModuleInfo{
			"a": {Name: "a", TopDir: "a", TokenEstimate: 100},
			"b": {Name: "b", TopDir: "b", TokenEstimate: 100},
		},
	}
	reports := pool.RunModuleScouts(context.Background(), analysis, 0.5)
	assert.Nil(t, reports)
}

func TestRunModuleScouts_BucketsAndReports(t *testing.T) {
	pool, _ := newTestPool("report body")
	modules := map[string]*types.ModuleInfo{}
	for i := 0; i < 8; i++ {
		name := string(rune('a' + i))
		modules[name] = &types.ModuleInfo{
			Name:          name,
			TopDir:        name,
			TokenEstimate: 1000,
			Files:         []types.FileRef{{Path: name + "/main.go", Size: 100}},
		}
	}
	analysis := &types.Analysis{TokenEstimate: 8000, Modules: modules}

	reports := pool.RunModuleScouts(context.Background(), analysis, 1.5)
	require.NotEmpty(t, reports)
	total := 0
	for _, r := range reports {
		assert.False(t, r.Failed)
		total++
	}
	assert.GreaterOrEqual(t, total, 4) // floor of 4 buckets
}

func TestBucketModules_AllModulesAssignedExactlyOnce(t *testing.T) {
	modules := map[string]*types.ModuleInfo{}
	for i := 0; i < 10; i++ {
		name := string(rune('a' + i))
		modules[name] = &types.ModuleInfo{Name: name, TopDir: name, TokenEstimate: i * 10}
	}
	analysis := &types.Analysis{Modules: modules}
	buckets := bucketModules(analysis, 4)

	seen := make(map[string]bool)
	for _, b := range buckets {
		for _, m := range b {
			assert.False(t, seen[m])
			seen[m] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestTruncateManifest_PrioritizesFocusThenEntryThenLargest(t *testing.T) {
	entries := []manifestEntry{
		{Path: "a/big.go", Size: 9000},
		{Path: "b/focus.go", Size: 10, Focus: true},
		{Path: "c/entry.go", Size: 10, EntryPoint: true},
		{Path: "d/small.go", Size: 1},
	}
	truncated := truncateManifest(entries, 2)
	require.Len(t, truncated, 2)
	assert.Equal(t, "b/focus.go", truncated[0].Path)
	assert.Equal(t, "c/entry.go", truncated[1].Path)
}

func TestManifestLimit_ByRatio(t *testing.T) {
	assert.Equal(t, 500, manifestLimit(0.1))
	assert.Equal(t, 300, manifestLimit(0.5))
	assert.Equal(t, 200, manifestLimit(1.5))
	assert.Equal(t, 150, manifestLimit(5))
}

func TestCompress_PassthroughWhenWithinBudget(t *testing.T) {
	pool, fake := newTestPool("ignored")
	reports := []types.ScoutReport{{Key: "structure", Content: "short"}}
	out, err := pool.Compress(context.Background(), reports, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, reports, out)
	assert.Equal(t, 0, fake.CallCount())
}

func TestCompress_CompressesOversizedReport(t *testing.T) {
	pool, fake := newTestPool("condensed")
	big := make([]byte, 5000)
	for i := range big {
		big[i] = 'x'
	}
	reports := []types.ScoutReport{{Key: "structure", Content: string(big)}}
	out, err := pool.Compress(context.Background(), reports, 100) // tiny planner window
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "condensed", out[0].Content)
	assert.Greater(t, fake.CallCount(), 0)
}
