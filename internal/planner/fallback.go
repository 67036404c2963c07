package planner

import (
	"strings"

	"github.com/isocrates/isocrates/internal/types"
)

// fallbackPlan returns the deterministic blueprint used when the planner
// call or its output fails to parse (spec.md §4.5): core pages always, plus
// Configuration and User Guide at medium/large complexity, plus Data Model
// and Contributing at large. Every synthesized page's wikilinks-out list
// contains every other synthesized title, since nothing else grounds the
// cross-references a real planner call would produce.
func fallbackPlan(in Input) *types.Blueprint {
	bp := &types.Blueprint{
		RepoSummary: "Generated from a deterministic fallback plan; the planner call did not produce usable output.",
		Complexity:  in.Complexity,
	}

	switch in.Complexity {
	case types.ComplexityLarge:
		bp.Documents = []types.DocumentSpec{
			docSpec("config", "Configuration", "Configuration surface warrants a standalone page at medium/large complexity."),
			docSpec("user_guide", "User Guide", "User-facing usage warrants a standalone page at medium/large complexity."),
			docSpec("data_model", "Data Model", "Large repositories warrant a standalone data model page."),
			docSpec("contributing", "Contributing", "Large repositories warrant a standalone contributing page."),
		}
	case types.ComplexityMedium:
		bp.Documents = []types.DocumentSpec{
			docSpec("config", "Configuration", "Configuration surface warrants a standalone page at medium/large complexity."),
			docSpec("user_guide", "User Guide", "User-facing usage warrants a standalone page at medium/large complexity."),
		}
	default:
		bp.Documents = nil
	}

	core := make([]types.DocumentSpec, 0, len(mandatoryPages)+len(bp.Documents))
	for _, title := range mandatoryPages {
		core = append(core, docSpec(strings.ToLower(strings.ReplaceAll(title, " ", "_")), title, "Mandatory page present in every blueprint."))
	}
	bp.Documents = append(core, bp.Documents...)

	linkFallbackTitles(bp)
	return bp
}

func docSpec(docType, title, rationale string) types.DocumentSpec {
	return types.DocumentSpec{Type: docType, Title: title, Rationale: rationale}
}

// linkFallbackTitles gives every synthesized document a wikilinks-out list
// containing every other synthesized title (spec.md §4.5).
func linkFallbackTitles(bp *types.Blueprint) {
	titles := make([]string, len(bp.Documents))
	for i, d := range bp.Documents {
		titles[i] = d.Title
	}
	for i := range bp.Documents {
		for j, t := range titles {
			if j != i {
				bp.Documents[i].WikilinksOut = append(bp.Documents[i].WikilinksOut, t)
			}
		}
	}
}
