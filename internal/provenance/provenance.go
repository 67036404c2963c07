// Package provenance extracts the source files a generated document draws
// on and fingerprints them, so a Version can record exactly what it was
// written from (spec.md §4.7).
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	fencedTitleRe = regexp.MustCompile(`(?m)^` + "```" + `\w*\s+title="([^"]+)"`)
	inlineCodeRe  = regexp.MustCompile("`([^`\n]+)`")
	knownSourceExt = map[string]bool{
		".go": true, ".py": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
		".rs": true, ".java": true, ".rb": true, ".php": true, ".c": true, ".h": true,
		".cpp": true, ".hpp": true, ".md": true, ".yaml": true, ".yml": true, ".json": true,
		".toml": true, ".sql": true,
	}
)

// ExtractSourceReferences scans markdown for paths the writer referenced:
// fenced-block `title="..."` attributes, inline code spans that look like a
// path, and every path in keyFiles from the blueprint entry (spec.md §4.7).
func ExtractSourceReferences(markdown string, keyFiles []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, m := range fencedTitleRe.FindAllStringSubmatch(markdown, -1) {
		add(m[1])
	}
	for _, m := range inlineCodeRe.FindAllStringSubmatch(markdown, -1) {
		if looksLikePath(m[1]) {
			add(m[1])
		}
	}
	for _, p := range keyFiles {
		add(p)
	}
	return out
}

func looksLikePath(s string) bool {
	if strings.ContainsAny(s, " \t") {
		return false
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return false
	}
	if strings.Contains(s, "/") {
		return true
	}
	return knownSourceExt[strings.ToLower(filepath.Ext(s))]
}

// ComputeSourceHashes reads each relpath under repoRoot and returns its
// 16-hex-char SHA-256 prefix. Paths that do not exist are silently dropped
// (spec.md §4.7); the only side effect is the file reads themselves.
func ComputeSourceHashes(repoRoot string, relpaths []string) map[string]string {
	out := make(map[string]string, len(relpaths))
	for _, rel := range relpaths {
		data, err := os.ReadFile(filepath.Join(repoRoot, rel))
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)
		out[rel] = hex.EncodeToString(sum[:])[:16]
	}
	return out
}
