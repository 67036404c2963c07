package scout

import (
	"context"
	"fmt"
	"strings"

	"github.com/isocrates/isocrates/internal/types"
)

const charsPerToken = 4

// compressionPrompts gives the three escalating compression passes
// described in spec.md §4.4: first pass preserves facts, final pass keeps
// only names/endpoints/config keys.
var compressionPrompts = []string{
	"Condense the following scout report to roughly a third of its length. Preserve every fact, keep prose readable.",
	"Condense the following scout report further, to roughly a third of its current length. Keep names, relationships, and key facts; drop elaboration.",
	"Reduce the following scout report to a bare list: names, endpoints, and config keys only. No prose.",
}

// Compress concatenates reports and, if the result exceeds roughly half
// the planner's context window (converted tokens to chars at 4 chars/token),
// compresses each report through up to 3 LLM passes of progressively
// stricter prompts targeting ~3x reduction per pass. Reports already within
// budget individually are passed through untouched.
func (p *Pool) Compress(ctx context.Context, reports []types.ScoutReport, plannerContextWindowTokens int) ([]types.ScoutReport, error) {
	budget := (plannerContextWindowTokens / 2) * charsPerToken
	if budget <= 0 || totalChars(reports) <= budget {
		return reports, nil
	}

	perReportBudget := budget / maxInt(len(reports), 1)
	out := make([]types.ScoutReport, len(reports))
	for i, r := range reports {
		if len(r.Content) <= perReportBudget {
			out[i] = r
			continue
		}
		compressed, err := p.compressOne(ctx, r, perReportBudget)
		if err != nil {
			return nil, fmt.Errorf("scout: compressing report %q: %w", r.Key, err)
		}
		out[i] = compressed
	}
	return out, nil
}

func (p *Pool) compressOne(ctx context.Context, r types.ScoutReport, targetChars int) (types.ScoutReport, error) {
	content := r.Content
	for pass, promptPrefix := range compressionPrompts {
		if len(content) <= targetChars {
			break
		}
		prompt := promptPrefix + "\n\n" + content
		compressed, err := p.complete(ctx, fmt.Sprintf("scout:compress:%d", pass), prompt)
		if err != nil {
			return types.ScoutReport{}, err
		}
		content = compressed
	}
	return types.ScoutReport{Key: r.Key, Content: content, Failed: r.Failed}, nil
}

func totalChars(reports []types.ScoutReport) int {
	total := 0
	for _, r := range reports {
		total += len(r.Content)
	}
	return total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// JoinReports concatenates reports into the planner's single input blob,
// one section per report keyed by its report key.
func JoinReports(reports []types.ScoutReport) string {
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", r.Key, r.Content)
	}
	return b.String()
}
