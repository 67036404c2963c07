package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModelConfig_KnownModel(t *testing.T) {
	cfg, err := ResolveModelConfig("scout-default")
	require.NoError(t, err)
	assert.Equal(t, 200_000, cfg.ContextWindowTokens)
}

func TestResolveModelConfig_UnknownModelFailsLoudly(t *testing.T) {
	_, err := ResolveModelConfig("totally-unheard-of-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "totally-unheard-of-model")
	assert.Contains(t, err.Error(), "known models")
}

func TestRegisterModelConstraint_AddsOverride(t *testing.T) {
	RegisterModelConstraint("test-only-model", ModelConfig{ContextWindowTokens: 4096})
	cfg, err := ResolveModelConfig("test-only-model")
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ContextWindowTokens)
}
