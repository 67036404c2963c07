package planner

import (
	"strings"

	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/types"
)

// postProcess applies spec.md §4.5's output post-processing: mandatory-page
// insertion, path defaulting, and single-doc-folder flattening.
func postProcess(bp *types.Blueprint, in Input) *types.Blueprint {
	ensureMandatoryPages(bp, in)
	defaultPaths(bp, in)
	flattenSingleDocFolders(bp)
	return bp
}

// ensureMandatoryPages prepends Overview / Getting Started / Capabilities &
// User Stories at the crate root path, replacing any same-titled document
// the model already produced rather than duplicating it.
func ensureMandatoryPages(bp *types.Blueprint, in Input) {
	existing := make(map[string]int, len(bp.Documents))
	for i, d := range bp.Documents {
		existing[d.Title] = i
	}

	var rest []types.DocumentSpec
	seen := make(map[string]bool, len(bp.Documents))
	for _, title := range mandatoryPages {
		seen[title] = true
	}
	for _, d := range bp.Documents {
		if !seen[d.Title] {
			rest = append(rest, d)
		}
	}

	mandatory := make([]types.DocumentSpec, 0, len(mandatoryPages))
	for _, title := range mandatoryPages {
		var d types.DocumentSpec
		if i, ok := existing[title]; ok {
			d = bp.Documents[i]
		} else {
			d = types.DocumentSpec{Type: strings.ToLower(strings.ReplaceAll(title, " ", "_")), Title: title}
		}
		d.Path = in.CrateName
		mandatory = append(mandatory, d)
	}
	bp.Documents = append(mandatory, rest...)
}

// defaultPaths fills in any document's missing path as <crate>/<repo_name>.
func defaultPaths(bp *types.Blueprint, in Input) {
	def := in.CrateName + "/" + in.RepoName
	for i := range bp.Documents {
		if bp.Documents[i].Path == "" {
			bp.Documents[i].Path = def
		}
	}
}

// flattenSingleDocFolders moves any document that is the sole occupant of a
// non-base path up to that path's parent, logging each move (spec.md §4.5).
func flattenSingleDocFolders(bp *types.Blueprint) {
	log := logging.Get(logging.CategoryPlanner)

	counts := make(map[string]int, len(bp.Documents))
	for _, d := range bp.Documents {
		counts[d.Path]++
	}

	for i := range bp.Documents {
		path := bp.Documents[i].Path
		if path == "" || counts[path] != 1 {
			continue
		}
		parent := parentPath(path)
		if parent == path {
			continue
		}
		log.Sugar().Infow("flattening single-doc folder", "title", bp.Documents[i].Title, "from", path, "to", parent)
		bp.Documents[i].Path = parent
	}
}

func parentPath(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[:idx]
}
