package config

import "fmt"

// ModelConfig holds the numbers a conversation needs that a provider may
// misreport or that the embedded LLM library doesn't know about: context
// window, max output tokens, and provider-specific request-body quirks.
// Code that constructs LLM conversations never does context-window math
// itself; it asks the table for a ModelConfig (spec.md §9, "LLM
// configuration at the edges").
type ModelConfig struct {
	ContextWindowTokens int
	MaxOutputTokens     int
	DisableThinkingMode bool // some models break multi-turn tool calls with "thinking" on
}

// modelConstraints is the static override table. Real deployments extend
// this list via RegisterModelConstraint. It is the only source of model
// constraints: the embedded LLM library is never asked for a model's limits.
var modelConstraints = map[string]ModelConfig{
	"scout-default": {
		ContextWindowTokens: 200_000,
		MaxOutputTokens:     8_192,
	},
	"planner-default": {
		ContextWindowTokens: 1_000_000,
		MaxOutputTokens:     32_768,
	},
	"writer-default": {
		ContextWindowTokens: 200_000,
		MaxOutputTokens:     8_192,
	},
	"gemini-embedding-001": {
		ContextWindowTokens: 2_048,
		MaxOutputTokens:     0,
	},
	"openrouter/google/gemini-2.5-flash": {
		ContextWindowTokens: 1_000_000,
		MaxOutputTokens:     65_536,
		DisableThinkingMode: true,
	},
}

// RegisterModelConstraint lets a deployment add or override an entry at
// startup (e.g. from an operator-supplied config file) without forking this
// package.
func RegisterModelConstraint(model string, cfg ModelConfig) {
	modelConstraints[model] = cfg
}

// ResolveModelConfig looks up a model's constraints in the static table.
// When the model is not in the table, configuration fails loudly listing
// the table's models, per spec.md §6: "no silent conservative defaults."
// No lookup through the embedded LLM library is attempted.
func ResolveModelConfig(model string) (ModelConfig, error) {
	if cfg, ok := modelConstraints[model]; ok {
		return cfg, nil
	}
	return ModelConfig{}, fmt.Errorf(
		"unknown model %q: not found in model constraint table; known models: %v",
		model, knownModelNames(),
	)
}

func knownModelNames() []string {
	names := make([]string, 0, len(modelConstraints))
	for k := range modelConstraints {
		names = append(names, k)
	}
	return names
}
