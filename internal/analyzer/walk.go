// Package analyzer implements the Repo Analyzer (spec.md §4.1): it walks a
// cloned repository, builds a file manifest, detects logical modules via a
// package-marker walk, and derives an import graph. Directory-walk and
// marker-detection conventions are grounded on the teacher's
// internal/init/scanner.go (language/dependency detection by marker file)
// and internal/world/ast.go (per-language import regex tables).
package analyzer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/types"
	"go.uber.org/zap"
)

// skipDirs are vendored/generated directories never walked into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"target":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	".nuxt":        true,
	"bin":          true,
	"obj":          true,
	".idea":        true,
	".vscode":      true,
}

// lockfileNames are skipped regardless of extension.
var lockfileNames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Cargo.lock":        true,
	"go.sum":            true,
	"poetry.lock":       true,
	"Gemfile.lock":      true,
	"composer.lock":     true,
}

// extensionAllowlist is the fixed set of source/markup/config extensions
// the analyzer includes in the manifest.
var extensionAllowlist = map[string]bool{
	".go": true, ".rs": true, ".py": true, ".js": true, ".jsx": true,
	".ts": true, ".tsx": true, ".java": true, ".kt": true, ".rb": true,
	".php": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".cc": true, ".cs": true, ".swift": true, ".m": true, ".scala": true,
	".ex": true, ".exs": true, ".md": true, ".mdx": true, ".yaml": true,
	".yml": true, ".json": true, ".toml": true, ".proto": true,
	".sql": true, ".sh": true, ".graphql": true, ".html": true, ".css": true,
}

const maxFileSize = 500 * 1024 // 500 KB

// packageMarkers are files whose presence defines a module boundary.
// Ordered the same list spec.md §4.1 gives.
var packageMarkers = []string{
	"package.json", "Cargo.toml", "go.mod", "pyproject.toml", "setup.py",
	"pom.xml", "build.gradle", "Gemfile", "composer.json", "CMakeLists.txt",
	"Package.swift",
}

// crateMarkers excludes language-internal markers (like __init__.py would
// be, if it were in packageMarkers) — it is the subset used for crate
// detection in detectCrates. spec.md §4.1 describes crate detection as a
// separate pass over a subset of markers; our packageMarkers list already
// excludes `__init__.py`-style internal markers, so the crate pass reuses
// the same list.
var crateMarkers = packageMarkers

// walkResult collects raw walk output before module/import post-processing.
type walkResult struct {
	files   []types.FileRef
	dirSet  map[string]bool // every directory seen; crate detection reads markerDirs, not this
	markerDirs map[string][]string // dir -> marker filenames present
}

func walk(repoPath string) (*walkResult, error) {
	log := logging.Get(logging.CategoryAnalyzer)
	res := &walkResult{dirSet: make(map[string]bool), markerDirs: make(map[string][]string)}

	err := filepath.Walk(repoPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries, don't abort the whole walk
		}
		rel, relErr := filepath.Rel(repoPath, path)
		if relErr != nil {
			return nil
		}
		if info.IsDir() {
			base := info.Name()
			if skipDirs[base] {
				return filepath.SkipDir
			}
			if rel != "." {
				res.dirSet[rel] = true
			}
			return nil
		}

		base := info.Name()
		if lockfileNames[base] {
			return nil
		}
		for _, marker := range packageMarkers {
			if base == marker {
				dir := filepath.Dir(rel)
				res.markerDirs[dir] = append(res.markerDirs[dir], base)
			}
		}

		if info.Size() > maxFileSize {
			log.Debug("skipping oversized file", zap.String("path", rel), zap.Int64("size", info.Size()))
			return nil
		}
		ext := strings.ToLower(filepath.Ext(base))
		if !extensionAllowlist[ext] {
			return nil
		}
		res.files = append(res.files, types.FileRef{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
