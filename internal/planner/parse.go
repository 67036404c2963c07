package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/isocrates/isocrates/internal/types"
)

// wireBlueprint mirrors types.Blueprint with the snake_case JSON tags the
// planner prompt asks the model to emit.
type wireBlueprint struct {
	RepoSummary string             `json:"repo_summary"`
	Complexity  string             `json:"complexity"`
	Documents   []wireDocumentSpec `json:"documents"`
}

type wireDocumentSpec struct {
	Type          string              `json:"type"`
	Title         string              `json:"title"`
	Path          string              `json:"path"`
	Rationale     string              `json:"rationale"`
	Sections      []wireSection       `json:"sections"`
	KeyFiles      []string            `json:"key_files"`
	WikilinksOut  []string            `json:"wikilinks_out"`
	ReplacesTitle string              `json:"replaces_title"`
}

type wireSection struct {
	Heading    string   `json:"heading"`
	Directives []string `json:"directives"`
}

// parseBlueprint strips code-fence wrappers, repairs common JSON mistakes,
// and unmarshals the planner's response (spec.md §4.5).
func parseBlueprint(resp string) (*types.Blueprint, error) {
	cleaned := cleanJSONResponse(resp)

	var wb wireBlueprint
	if err := json.Unmarshal([]byte(cleaned), &wb); err != nil {
		repaired := repairJSON(cleaned)
		if err2 := json.Unmarshal([]byte(repaired), &wb); err2 != nil {
			return nil, fmt.Errorf("planner: parsing blueprint JSON: %w", err)
		}
	}
	if len(wb.Documents) == 0 {
		return nil, fmt.Errorf("planner: blueprint has no documents")
	}

	bp := &types.Blueprint{
		RepoSummary: wb.RepoSummary,
		Complexity:  types.Complexity(wb.Complexity),
	}
	for _, d := range wb.Documents {
		doc := types.DocumentSpec{
			Type:          d.Type,
			Title:         d.Title,
			Path:          d.Path,
			Rationale:     d.Rationale,
			KeyFiles:      d.KeyFiles,
			WikilinksOut:  d.WikilinksOut,
			ReplacesTitle: d.ReplacesTitle,
		}
		for _, s := range d.Sections {
			doc.Sections = append(doc.Sections, types.BlueprintSection{Heading: s.Heading, Directives: s.Directives})
		}
		bp.Documents = append(bp.Documents, doc)
	}
	return bp, nil
}

// cleanJSONResponse strips a ```json / ``` fence wrapper from a model
// response, mirroring the teacher's campaign.cleanJSONResponse.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
)

// repairJSON fixes the JSON mistakes models make often enough to be worth
// tolerating: trailing commas before a closing bracket, single-quoted
// strings, and unquoted object keys. It is a best-effort second attempt, not
// a general parser; if the result still doesn't unmarshal the caller falls
// back to the deterministic plan.
func repairJSON(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = singleToDoubleQuotes(s)
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	return s
}

// singleToDoubleQuotes swaps '...' string delimiters for "...", skipping
// apostrophes inside already-double-quoted strings.
func singleToDoubleQuotes(s string) string {
	var b strings.Builder
	inDouble := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inDouble = !inDouble
			b.WriteByte(c)
		case c == '\'' && !inDouble:
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
