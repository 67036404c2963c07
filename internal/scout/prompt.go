package scout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/isocrates/isocrates/internal/types"
)

type manifestEntry struct {
	Path       string
	Size       int64
	Focus      bool
	EntryPoint bool
}

// focusSubstrings maps a topic/module key prefix to path substrings that
// flag a file as relevant, per spec.md §4.4 ("focus markers flag files
// whose path substrings match the scout's interest").
var focusSubstrings = map[string][]string{
	"api":          {"route", "endpoint", "schema", "handler", "controller"},
	"infra":        {"docker", "deploy", "terraform", "k8s", "ci", "helm", ".github"},
	"tests":        {"test", "spec", "_test.", "__tests__"},
	"architecture": {"internal", "core", "pkg", "lib"},
	"structure":    {},
}

func focusForKey(key string) []string {
	base := key
	if idx := strings.IndexByte(key, '_'); idx >= 0 {
		base = key[:idx]
	}
	return focusSubstrings[base]
}

// manifestLimit returns the maximum number of manifest lines for a given
// budget ratio (spec.md §4.4).
func manifestLimit(ratio float64) int {
	switch {
	case ratio < 0.3:
		return 500
	case ratio < 1.0:
		return 300
	case ratio < 3.0:
		return 200
	default:
		return 150
	}
}

// buildManifest produces the file manifest for a scout prompt, annotating
// focus markers and truncating per manifestLimit with spec.md §4.4's
// priority order: focus files, entry-point files, largest remaining files,
// one representative per top-level directory not yet covered. When files
// is nil, the whole analysis's FileManifest is used (topic scouts); module
// scouts pass the subset of files belonging to their bucket.
func buildManifest(analysis *types.Analysis, ratio float64, restrictTo []string) []manifestEntry {
	entryPoints := make(map[string]bool)
	for _, m := range analysis.Modules {
		for _, e := range m.EntryPoints {
			entryPoints[e] = true
		}
	}

	var files []types.FileRef
	if restrictTo == nil {
		files = analysis.FileManifest
	} else {
		want := make(map[string]bool, len(restrictTo))
		for _, mod := range restrictTo {
			want[mod] = true
		}
		for name, m := range analysis.Modules {
			if want[name] {
				files = append(files, m.Files...)
			}
		}
	}

	entries := make([]manifestEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, manifestEntry{
			Path:       f.Path,
			Size:       f.Size,
			EntryPoint: entryPoints[f.Path],
		})
	}
	return entries
}

// annotateFocus marks entries matching any of subs, returning a fresh
// slice (does not mutate the input).
func annotateFocus(entries []manifestEntry, subs []string) []manifestEntry {
	if len(subs) == 0 {
		return entries
	}
	out := make([]manifestEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		for _, s := range subs {
			if strings.Contains(strings.ToLower(e.Path), s) {
				out[i].Focus = true
				break
			}
		}
	}
	return out
}

// truncateManifest applies spec.md §4.4's priority order when entries
// exceed limit: focus files, entry-point files, largest remaining files,
// one representative per top-level directory not yet covered.
func truncateManifest(entries []manifestEntry, limit int) []manifestEntry {
	if len(entries) <= limit {
		return entries
	}

	var focus, entryPts, rest []manifestEntry
	for _, e := range entries {
		switch {
		case e.Focus:
			focus = append(focus, e)
		case e.EntryPoint:
			entryPts = append(entryPts, e)
		default:
			rest = append(rest, e)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Size > rest[j].Size })

	selected := make([]manifestEntry, 0, limit)
	seenPath := make(map[string]bool)
	add := func(e manifestEntry) bool {
		if len(selected) >= limit || seenPath[e.Path] {
			return false
		}
		selected = append(selected, e)
		seenPath[e.Path] = true
		return true
	}
	for _, e := range focus {
		add(e)
	}
	for _, e := range entryPts {
		add(e)
	}
	for _, e := range rest {
		if len(selected) >= limit {
			break
		}
		add(e)
	}

	if len(selected) < limit {
		covered := make(map[string]bool)
		for _, e := range selected {
			covered[topDir(e.Path)] = true
		}
		for _, e := range rest {
			d := topDir(e.Path)
			if covered[d] {
				continue
			}
			if add(e) {
				covered[d] = true
			}
		}
	}
	return selected
}

func topDir(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// constraintsString returns the budget-dependent constraints text inserted
// into every scout prompt (spec.md §4.4): progressively stricter file-size
// caps and file-count limits as ratio grows.
func constraintsString(ratio float64) string {
	switch {
	case ratio < 0.3:
		return "Read files up to 100KB. You may read up to 40 files in depth."
	case ratio < 1.0:
		return "Read files up to 50KB. You may read up to 25 files in depth."
	case ratio < 3.0:
		return "Read files up to 20KB. You may read up to 15 files in depth. Prefer skimming over deep reads."
	default:
		return "Read files up to 10KB. You may read up to 8 files in depth. Summarize from file names and structure where possible."
	}
}

// buildPrompt assembles a scout's prompt: the sized, annotated, truncated
// manifest plus the budget-dependent constraints string.
func buildPrompt(key string, entries []manifestEntry, ratio float64) string {
	limit := manifestLimit(ratio)
	annotated := annotateFocus(entries, focusForKey(key))
	truncated := truncateManifest(annotated, limit)

	var b strings.Builder
	fmt.Fprintf(&b, "You are the %q scout. Explore the repository slice below and report your findings as structured markdown.\n\n", key)
	b.WriteString(constraintsString(ratio))
	b.WriteString("\n\nFile manifest:\n")
	for _, e := range truncated {
		marker := ""
		if e.Focus {
			marker = " [focus]"
		} else if e.EntryPoint {
			marker = " [entry]"
		}
		fmt.Fprintf(&b, "- %s (%d bytes)%s\n", e.Path, e.Size, marker)
	}
	return b.String()
}
