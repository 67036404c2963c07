package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4, cfg.Scout.Parallel)
	assert.Equal(t, 3, cfg.Writer.Parallel)
	assert.Equal(t, 3, cfg.Partitioner.MinAreas)
	assert.Equal(t, 7, cfg.Partitioner.MaxAreas)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, 1, cfg.JobQueue.MaxRetries)
}

func TestLoad_MissingPathFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/isocrates.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scout.Parallel, cfg.Scout.Parallel)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/isocrates.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
scout:
  parallel: 8
partitioner:
  min_areas: 2
  max_areas: 9
  context_budget: 64000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scout.Parallel)
	assert.Equal(t, 2, cfg.Partitioner.MinAreas)
	assert.Equal(t, 9, cfg.Partitioner.MaxAreas)
	assert.Equal(t, 64000, cfg.Partitioner.ContextBudget)
}

// TestLoad_EnvOverridesYAML exercises spec.md §6's "env wins" environment
// variables layered over a loaded config.
func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/isocrates.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  database_url: yaml.db
scout:
  parallel: 8
webhook:
  secret: yaml-secret
`), 0o644))

	for _, kv := range [][2]string{
		{"DATABASE_URL", "postgres://env-wins"},
		{"SCOUT_MODEL", "env-scout-model"},
		{"PLANNER_MODEL", "env-planner-model"},
		{"WRITER_MODEL", "env-writer-model"},
		{"SCOUT_PARALLEL", "16"},
		{"GITHUB_WEBHOOK_SECRET", "s3cr3t"},
	} {
		t.Setenv(kv[0], kv[1])
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-wins", cfg.Store.DatabaseURL)
	assert.Equal(t, "env-scout-model", cfg.LLM.Scout.Model)
	assert.Equal(t, "env-planner-model", cfg.LLM.Planner.Model)
	assert.Equal(t, "env-writer-model", cfg.LLM.Writer.Model)
	assert.Equal(t, 16, cfg.Scout.Parallel)
	assert.Equal(t, "s3cr3t", cfg.Webhook.Secret)
}

func TestLoad_EnvSetsGitPagerWhenUnset(t *testing.T) {
	os.Unsetenv("GIT_PAGER")
	_, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cat", os.Getenv("GIT_PAGER"))
}

func TestResolveEndpoint_FallsBackToGlobal(t *testing.T) {
	cfg := &Config{LLM: LLMTierConfig{GlobalBaseURL: "https://global", GlobalAPIKey: "global-key"}}
	resolved := cfg.ResolveEndpoint(LLMEndpoint{Model: "m"})
	assert.Equal(t, "https://global", resolved.BaseURL)
	assert.Equal(t, "global-key", resolved.APIKey)

	resolved = cfg.ResolveEndpoint(LLMEndpoint{Model: "m", BaseURL: "https://tier", APIKey: "tier-key"})
	assert.Equal(t, "https://tier", resolved.BaseURL)
	assert.Equal(t, "tier-key", resolved.APIKey)
}
