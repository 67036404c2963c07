package orchestrator

import (
	"strings"

	"github.com/isocrates/isocrates/internal/types"
)

// filterAnalysisByCrate narrows analysis to the modules and files under
// crate (a top-level or nested directory prefix), for the --crate CLI flag.
// Modules outside the prefix are dropped entirely, including from the
// import-edge sets of the modules that remain, so the partitioner never
// sees a dangling reference into an excluded module.
func filterAnalysisByCrate(analysis *types.Analysis, crate string) *types.Analysis {
	prefix := strings.TrimSuffix(crate, "/") + "/"

	kept := make(map[string]*types.ModuleInfo)
	var tokenEstimate int
	var fileManifest []types.FileRef
	for name, m := range analysis.Modules {
		if name != crate && !strings.HasPrefix(name, prefix) {
			continue
		}
		kept[name] = m
		tokenEstimate += m.TokenEstimate
		fileManifest = append(fileManifest, m.Files...)
	}

	for name, m := range kept {
		imFrom := make(map[string]bool)
		for k := range m.ImportsFrom {
			if _, ok := kept[k]; ok {
				imFrom[k] = true
			}
		}
		imBy := make(map[string]bool)
		for k := range m.ImportedBy {
			if _, ok := kept[k]; ok {
				imBy[k] = true
			}
		}
		clone := *m
		clone.ImportsFrom = imFrom
		clone.ImportedBy = imBy
		kept[name] = &clone
	}

	return &types.Analysis{
		FileManifest:  fileManifest,
		TotalBytes:    analysis.TotalBytes,
		TokenEstimate: tokenEstimate,
		SizeLabel:     sizeLabelFor(tokenEstimate),
		TopDirs:       analysis.TopDirs,
		Modules:       kept,
		Crates:        []string{crate},
	}
}

func sizeLabelFor(tokenEstimate int) types.SizeLabel {
	switch {
	case tokenEstimate < 50_000:
		return types.SizeSmall
	case tokenEstimate < 200_000:
		return types.SizeMedium
	default:
		return types.SizeLarge
	}
}

func complexityFor(label types.SizeLabel) types.Complexity {
	switch label {
	case types.SizeSmall:
		return types.ComplexitySmall
	case types.SizeMedium:
		return types.ComplexityMedium
	default:
		return types.ComplexityLarge
	}
}

func titlesFor(docs []*types.Document, cratePrefix string) []string {
	var titles []string
	for _, d := range docs {
		if cratePrefix != "" && d.Crate() != cratePrefix {
			continue
		}
		titles = append(titles, d.Title)
	}
	return titles
}

func titlesFromBlueprint(bp *types.Blueprint) []string {
	titles := make([]string, 0, len(bp.Documents))
	for _, d := range bp.Documents {
		titles = append(titles, d.Title)
	}
	return titles
}
