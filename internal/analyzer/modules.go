package analyzer

import (
	"path/filepath"
	"sort"
	"strings"
)

// detectModules assigns each file to a module using the nearest-ancestor
// package-marker rule (up to 4 levels up), falling back to the first two
// path segments when no marker ancestor exists. Modules with fewer than 3
// files are merged into their parent's module (by first path segment),
// per spec.md §4.1.
func detectModules(res *walkResult) map[string][]string {
	fileModule := make(map[string]string, len(res.files))
	for _, f := range res.files {
		fileModule[f.Path] = moduleNameFor(f.Path, res.markerDirs)
	}

	byModule := make(map[string][]string)
	for path, mod := range fileModule {
		byModule[mod] = append(byModule[mod], path)
	}

	// Merge modules with < 3 files into their parent's module (first
	// path segment of the module name).
	merged := make(map[string][]string)
	for mod, files := range byModule {
		if len(files) >= 3 {
			merged[mod] = append(merged[mod], files...)
			continue
		}
		parent := firstSegment(mod)
		merged[parent] = append(merged[parent], files...)
	}

	for mod := range merged {
		sort.Strings(merged[mod])
	}
	return merged
}

func firstSegment(p string) string {
	p = filepath.ToSlash(p)
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// moduleNameFor finds the nearest ancestor directory (at most 4 levels up)
// that carries a package marker; that directory's path is the module name.
// With no marker ancestor, falls back to the first two path segments.
func moduleNameFor(relPath string, markerDirs map[string][]string) string {
	cur := filepath.ToSlash(filepath.Dir(relPath)) // "." for a root-level file
	for level := 0; level <= 4; level++ {
		if len(markerDirs[cur]) > 0 {
			return cur
		}
		if cur == "." {
			break // already at repo root, nothing higher to check
		}
		cur = filepath.ToSlash(filepath.Dir(cur))
	}
	return firstTwoSegments(relPath)
}

func firstTwoSegments(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	if len(parts) <= 2 {
		if len(parts) == 1 {
			return "."
		}
		return parts[0]
	}
	return parts[0] + "/" + parts[1]
}

// detectCrates finds every subdirectory containing a crate marker,
// deduplicating so a crate whose ancestor is already a crate is dropped
// (the ancestor is the crate, the descendant is a sub-module), per
// spec.md §4.1. The repo root itself is never reported as a crate even if
// it carries a marker (the caller already knows the whole repo is the
// unit of work).
func detectCrates(res *walkResult) []string {
	var candidates []string
	for dir, markers := range res.markerDirs {
		if dir == "." || dir == "" {
			continue
		}
		hasCrateMarker := false
		for _, m := range markers {
			for _, cm := range crateMarkers {
				if m == cm {
					hasCrateMarker = true
				}
			}
		}
		if hasCrateMarker {
			candidates = append(candidates, filepath.ToSlash(dir))
		}
	}
	// Shallowest first so an ancestor crate is always recorded before any
	// descendant candidate is checked against it.
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := strings.Count(candidates[i], "/"), strings.Count(candidates[j], "/")
		if di != dj {
			return di < dj
		}
		return candidates[i] < candidates[j]
	})

	var crates []string
	for _, c := range candidates {
		isDescendant := false
		for _, other := range crates {
			if other != c && strings.HasPrefix(c, other+"/") {
				isDescendant = true
				break
			}
		}
		if !isDescendant {
			crates = append(crates, c)
		}
	}
	return crates
}
