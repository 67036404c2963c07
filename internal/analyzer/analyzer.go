package analyzer

import (
	"path/filepath"
	"sort"

	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/types"
)

const (
	smallTokenCeiling  = 50_000
	mediumTokenCeiling = 200_000
)

// Analyze walks repoPath and produces the Analysis described in spec.md
// §4.1: a file manifest, token estimate (bytes/4), size label, top-level
// directories, a module map with import edges, and detected crates.
func Analyze(repoPath string) (*types.Analysis, error) {
	log := logging.Get(logging.CategoryAnalyzer)
	res, err := walk(repoPath)
	if err != nil {
		return nil, err
	}
	log.Sugar().Infow("walked repository", "files", len(res.files))

	moduleFiles := detectModules(res)

	var totalBytes int64
	fileSize := make(map[string]int64, len(res.files))
	for _, f := range res.files {
		totalBytes += f.Size
		fileSize[f.Path] = f.Size
	}

	modules := make(map[string]*types.ModuleInfo, len(moduleFiles))
	moduleNames := make([]string, 0, len(moduleFiles))
	for name := range moduleFiles {
		moduleNames = append(moduleNames, name)
	}
	sort.Strings(moduleNames)

	for _, name := range moduleNames {
		paths := moduleFiles[name]
		m := &types.ModuleInfo{
			Name:        name,
			TopDir:      firstSegment(name),
			ImportsFrom: make(map[string]bool),
			ImportedBy: make(map[string]bool),
			Languages:   make(map[string]int),
		}
		var tokens int
		for _, p := range paths {
			size := fileSize[p]
			m.Files = append(m.Files, types.FileRef{Path: p, Size: size})
			tokens += int(size) / 4
			ext := filepath.Ext(p)
			m.Languages[ext]++
			if isEntryPoint(p) {
				m.EntryPoints = append(m.EntryPoints, p)
			}
		}
		m.TokenEstimate = tokens
		modules[name] = m
	}

	// Import graph: for each file, extract imports and resolve against
	// known module names; add edges both directions.
	fileModuleOf := make(map[string]string)
	for name, paths := range moduleFiles {
		for _, p := range paths {
			fileModuleOf[p] = name
		}
	}
	for _, f := range res.files {
		srcModule := fileModuleOf[f.Path]
		abs := filepath.Join(repoPath, f.Path)
		for _, imp := range extractImports(abs) {
			target := resolveImport(imp, moduleNames)
			if target == "" || target == srcModule {
				continue
			}
			if _, ok := modules[srcModule]; !ok {
				continue
			}
			if _, ok := modules[target]; !ok {
				continue
			}
			modules[srcModule].ImportsFrom[target] = true
			modules[target].ImportedBy[srcModule] = true
		}
	}

	crates := detectCrates(res)

	topDirSet := make(map[string]bool)
	for _, f := range res.files {
		topDirSet[firstSegment(f.Path)] = true
	}
	topDirs := make([]string, 0, len(topDirSet))
	for d := range topDirSet {
		topDirs = append(topDirs, d)
	}
	sort.Strings(topDirs)

	tokenEstimate := int(totalBytes) / 4
	a := &types.Analysis{
		FileManifest:  res.files,
		TotalBytes:    totalBytes,
		TokenEstimate: tokenEstimate,
		SizeLabel:     sizeLabel(tokenEstimate),
		TopDirs:       topDirs,
		Modules:       modules,
		Crates:        crates,
	}
	log.Sugar().Infow("analysis complete",
		"modules", len(modules), "crates", len(crates), "tokens", tokenEstimate)
	return a, nil
}

func sizeLabel(tokens int) types.SizeLabel {
	switch {
	case tokens < smallTokenCeiling:
		return types.SizeSmall
	case tokens < mediumTokenCeiling:
		return types.SizeMedium
	default:
		return types.SizeLarge
	}
}

var entryPointNames = map[string]bool{
	"main.go": true, "main.py": true, "__main__.py": true, "index.js": true,
	"index.ts": true, "app.py": true, "server.go": true, "Main.java": true,
}

func isEntryPoint(path string) bool {
	return entryPointNames[filepath.Base(path)]
}
