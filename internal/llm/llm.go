// Package llm provides the LLM client abstraction consumed by the scout
// pool, planner, and writer pool. Concrete construction always goes through
// the model constraint table (internal/config) so call sites never touch
// context-window math themselves, mirroring the teacher's EmbeddingEngine
// interface split (internal/embedding/engine.go) between a narrow
// capability interface and provider-specific implementations (genai.go,
// ollama.go).
package llm

import (
	"context"
	"fmt"

	"github.com/isocrates/isocrates/internal/config"
	"google.golang.org/genai"
)

// Message is one turn in a completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Client is the capability every tier (scout/planner/writer) needs from an
// LLM backend: a single non-streaming completion call. Tiers that need tool
// use or multi-turn state build their own conversation wrapper around this.
type Client interface {
	// Complete runs one completion over the given messages and returns the
	// assistant's text.
	Complete(ctx context.Context, messages []Message) (string, error)
	// Model returns the model identifier this client was constructed with.
	Model() string
}

// GenAIClient implements Client on top of google.golang.org/genai, grounded
// on the teacher's GenAIEngine (internal/embedding/genai.go) construction
// pattern.
type GenAIClient struct {
	client *genai.Client
	model  string
	cfg    config.ModelConfig
}

// NewGenAIClient constructs a Client for the given endpoint, consulting the
// model constraint table first; an unknown model is a ConfigError-shaped
// failure per spec.md §6.
func NewGenAIClient(ctx context.Context, endpoint config.LLMEndpoint) (*GenAIClient, error) {
	if endpoint.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required for model %q", endpoint.Model)
	}
	mcfg, err := config.ResolveModelConfig(endpoint.Model)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: endpoint.APIKey})
	if err != nil {
		return nil, fmt.Errorf("llm: creating genai client: %w", err)
	}
	return &GenAIClient{client: client, model: endpoint.Model, cfg: mcfg}, nil
}

// Model implements Client.
func (c *GenAIClient) Model() string { return c.model }

// Complete implements Client by concatenating messages into a single
// generation request; genai's chat-content model is adapted to our flat
// Message slice at the call boundary so the rest of the pipeline never
// depends on the genai package directly.
func (c *GenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	genCfg := &genai.GenerateContentConfig{}
	if c.cfg.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.cfg.MaxOutputTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("llm: generate content: %w", err)
	}
	return resp.Text(), nil
}
