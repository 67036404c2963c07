package analyzer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// importPattern is a language-specific regex used against the first 100
// lines of a source file to find import targets. Grounded on the teacher's
// internal/world/ast.go per-language regex tables (Python "from/import",
// TypeScript/JS "import ... from").
type importPattern struct {
	extensions []string
	re         *regexp.Regexp
	group      int
}

var importPatterns = []importPattern{
	{ // Go
		extensions: []string{".go"},
		re:         regexp.MustCompile(`^\s*(?:import\s+)?"([^"]+)"`),
		group:      1,
	},
	{ // Python
		extensions: []string{".py"},
		re:         regexp.MustCompile(`^\s*(?:from|import)\s+([\w.]+)`),
		group:      1,
	},
	{ // TypeScript / JavaScript
		extensions: []string{".ts", ".tsx", ".js", ".jsx"},
		re:         regexp.MustCompile(`^\s*import\s.*from\s+['"]([^'"]+)['"]`),
		group:      1,
	},
	{ // Rust
		extensions: []string{".rs"},
		re:         regexp.MustCompile(`^\s*use\s+([\w:]+)`),
		group:      1,
	},
	{ // Java / Kotlin
		extensions: []string{".java", ".kt"},
		re:         regexp.MustCompile(`^\s*import\s+([\w.]+)`),
		group:      1,
	},
	{ // Ruby
		extensions: []string{".rb"},
		re:         regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`),
		group:      1,
	},
	{ // PHP
		extensions: []string{".php"},
		re:         regexp.MustCompile(`^\s*use\s+([\w\\]+)`),
		group:      1,
	},
	{ // C / C++
		extensions: []string{".c", ".h", ".cpp", ".hpp", ".cc"},
		re:         regexp.MustCompile(`^\s*#include\s+[<"]([^>"]+)[>"]`),
		group:      1,
	},
}

const maxImportScanLines = 100

func extractImports(absPath string) []string {
	ext := strings.ToLower(filepath.Ext(absPath))

	// Go and Python get a real parse tree instead of line regex: both
	// languages can legally spread an import list across parens/indentation
	// in ways the first-100-lines regex scan misses (grouped "import (...)"
	// blocks past line 100, multi-line "from x import (...)").
	if ext == ".go" || ext == ".py" {
		if source, err := os.ReadFile(absPath); err == nil {
			if imports, ok := treeSitterImports(context.Background(), ext, source); ok && imports != nil {
				return imports
			}
		}
	}

	var pattern *importPattern
	for i := range importPatterns {
		for _, e := range importPatterns[i].extensions {
			if e == ext {
				pattern = &importPatterns[i]
			}
		}
	}
	if pattern == nil {
		return nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var imports []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() && lines < maxImportScanLines {
		lines++
		line := scanner.Text()
		if m := pattern.re.FindStringSubmatch(line); len(m) > pattern.group {
			imports = append(imports, m[pattern.group])
		}
	}
	return imports
}

// resolveImport finds the known module name that best matches an import
// path, per spec.md §4.1 ("resolve import paths against known module names
// by prefix matching"). Import paths are language-specific (Go paths carry
// the full module prefix, Python/Ruby paths are dotted names, JS paths are
// relative) so matching is done against the normalized path with '.'
// treated as a path separator; the longest matching module name wins so a
// nested module is preferred over its parent.
func resolveImport(importPath string, moduleNames []string) string {
	normImport := strings.ReplaceAll(importPath, ".", "/")
	best := ""
	for _, name := range moduleNames {
		if name == "." {
			continue
		}
		if strings.Contains(normImport, name) {
			if len(name) > len(best) {
				best = name
			}
		}
	}
	return best
}
