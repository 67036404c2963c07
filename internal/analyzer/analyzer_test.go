package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/isocrates/isocrates/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAnalyze_SizeLabels(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/app\n")
	writeFile(t, root, "main.go", "package main\nfunc main(){}\n")

	a, err := Analyze(root)
	require.NoError(t, err)
	assert.Equal(t, types.SizeSmall, a.SizeLabel)
	assert.Equal(t, int(a.TotalBytes)/4, a.TokenEstimate)
}

func TestAnalyze_SkipsVendoredAndOversizedAndLockfiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/app\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")
	writeFile(t, root, "go.sum", "h1:abc\n")
	big := make([]byte, 600*1024)
	writeFile(t, root, "blob.json", string(big))

	a, err := Analyze(root)
	require.NoError(t, err)
	for _, f := range a.FileManifest {
		assert.NotContains(t, f.Path, "node_modules")
		assert.NotEqual(t, "go.sum", filepath.Base(f.Path))
		assert.NotEqual(t, "blob.json", filepath.Base(f.Path))
	}
}

func TestAnalyze_ModuleDetectionByNearestMarker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/app\n")
	writeFile(t, root, "services/billing/go.mod", "module example.com/app/services/billing\n")
	writeFile(t, root, "services/billing/a.go", "package billing\n")
	writeFile(t, root, "services/billing/b.go", "package billing\n")
	writeFile(t, root, "services/billing/c.go", "package billing\n")
	writeFile(t, root, "main.go", "package main\n")

	a, err := Analyze(root)
	require.NoError(t, err)
	_, ok := a.Modules["services/billing"]
	assert.True(t, ok, "expected a module rooted at services/billing, got %v", moduleNames(a))
}

func TestAnalyze_SmallModulesMergeIntoParent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/app\n")
	// tiny nested module with its own marker but only 1 file: should merge
	// into the "tools" top-level module.
	writeFile(t, root, "tools/mini/package.json", "{}\n")
	writeFile(t, root, "tools/mini/index.js", "module.exports={}\n")
	writeFile(t, root, "tools/helper1.go", "package tools\n")
	writeFile(t, root, "tools/helper2.go", "package tools\n")

	a, err := Analyze(root)
	require.NoError(t, err)
	_, hasMini := a.Modules["tools/mini"]
	assert.False(t, hasMini, "module with <3 files should merge up, got modules: %v", moduleNames(a))
}

func TestAnalyze_CrateDetectionDropsNestedDescendant(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/app\n")
	writeFile(t, root, "apps/web/package.json", "{}\n")
	writeFile(t, root, "apps/web/sub/package.json", "{}\n")

	a, err := Analyze(root)
	require.NoError(t, err)
	assert.Contains(t, a.Crates, "apps/web")
	assert.NotContains(t, a.Crates, "apps/web/sub")
}

func TestAnalyze_ImportGraphBothDirections(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/app\n")
	writeFile(t, root, "services/api/go.mod", "module example.com/app/services/api\n")
	writeFile(t, root, "services/api/a.go", `package api
import "example.com/app/services/billing"
`)
	writeFile(t, root, "services/api/b.go", "package api\n")
	writeFile(t, root, "services/api/c.go", "package api\n")
	writeFile(t, root, "services/billing/go.mod", "module example.com/app/services/billing\n")
	writeFile(t, root, "services/billing/a.go", "package billing\n")
	writeFile(t, root, "services/billing/b.go", "package billing\n")
	writeFile(t, root, "services/billing/c.go", "package billing\n")

	a, err := Analyze(root)
	require.NoError(t, err)
	api := a.Modules["services/api"]
	billing := a.Modules["services/billing"]
	require.NotNil(t, api)
	require.NotNil(t, billing)
	assert.True(t, api.ImportsFrom["services/billing"])
	assert.True(t, billing.ImportedBy["services/api"])
}

func moduleNames(a *types.Analysis) []string {
	names := make([]string, 0, len(a.Modules))
	for k := range a.Modules {
		names = append(names, k)
	}
	return names
}
