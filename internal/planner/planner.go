// Package planner implements Tier 1 of the generation pipeline (spec.md
// §4.5): a single reasoning call that reads scout reports and emits a JSON
// Blueprint of pages, sections, and wikilink edges.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/isocrates/isocrates/internal/llm"
	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/types"
)

// mandatoryPages is the fixed set of documents every blueprint must open
// with, in order, living at the crate root path (spec.md §4.5).
var mandatoryPages = []string{"Overview", "Getting Started", "Capabilities & User Stories"}

// Input is everything the planner's prompt needs.
type Input struct {
	CrateName      string
	RepoName       string
	ScoutReports   string // pre-compressed, concatenated
	ExistingTitles []string
	Complexity     types.Complexity
}

// Plan runs the single planner completion and post-processes its output. On
// any parse or LLM failure it falls back to a deterministic plan derived
// from complexity (spec.md §4.5).
func Plan(ctx context.Context, client llm.Client, in Input) (*types.Blueprint, error) {
	log := logging.Get(logging.CategoryPlanner)
	prompt := buildPrompt(in)

	resp, err := client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		log.Sugar().Warnw("planner completion failed, using deterministic fallback", "err", err)
		return postProcess(fallbackPlan(in), in), nil
	}

	bp, err := parseBlueprint(resp)
	if err != nil {
		log.Sugar().Warnw("planner output failed to parse, using deterministic fallback", "err", err)
		return postProcess(fallbackPlan(in), in), nil
	}
	return postProcess(bp, in), nil
}

func buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are designing the documentation blueprint for crate %q (repo %q).\n\n", in.CrateName, in.RepoName)
	b.WriteString("Scout reports:\n")
	b.WriteString(in.ScoutReports)
	b.WriteString("\n\n")

	if len(in.ExistingTitles) > 0 {
		b.WriteString("Existing documents (reuse their titles and paths when the topic matches):\n")
		for _, t := range in.ExistingTitles {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}

	b.WriteString("The first three documents must be, in this order: \"Overview\", \"Getting Started\", \"Capabilities & User Stories\", all at the crate root path.\n")
	b.WriteString("If a topic has more than 5 distinct items, split it into sub-pages rather than one long page.\n")
	b.WriteString("Prefer wikilinks between related pages; every page should link to at least one other.\n\n")
	b.WriteString("Respond with JSON only: {\"repo_summary\": \"...\", \"complexity\": \"small|medium|large\", \"documents\": [{\"type\":\"...\",\"title\":\"...\",\"path\":\"...\",\"rationale\":\"...\",\"sections\":[{\"heading\":\"...\",\"directives\":[\"...\"]}],\"key_files\":[\"...\"],\"wikilinks_out\":[\"...\"],\"replaces_title\":\"...\"}]}\n")
	return b.String()
}

// relevanceMap maps a document type to the scout report keys its writer
// should receive, per spec.md §4.5's "static table."
var relevanceMap = map[string][]string{
	"overview":      {"structure", "architecture"},
	"quickstart":    {"structure", "api"},
	"capabilities":  {"structure", "architecture", "api"},
	"api":           {"api", "architecture"},
	"config":        {"infra", "structure"},
	"configuration": {"infra", "structure"},
	"data_model":    {"architecture", "api"},
	"contributing":  {"structure", "tests"},
	"user_guide":    {"structure", "api"},
	"tests":         {"tests"},
	"infra":         {"infra"},
}

// ReportsFor returns the scout report keys relevant to docType, always
// including "structure" as a fallback when not already present.
func ReportsFor(docType string) []string {
	keys := append([]string(nil), relevanceMap[docType]...)
	for _, k := range keys {
		if k == "structure" {
			return keys
		}
	}
	return append(keys, "structure")
}
