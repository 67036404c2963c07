package planner

import (
	"context"
	"testing"

	"github.com/isocrates/isocrates/internal/llm"
	"github.com/isocrates/isocrates/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicInput() Input {
	return Input{
		CrateName:    "mycrate",
		RepoName:     "myrepo",
		ScoutReports: "## structure\n\nsome facts\n",
		Complexity:   types.ComplexityMedium,
	}
}

func TestPlan_HappyPath(t *testing.T) {
	resp := `{"repo_summary":"a tidy repo","complexity":"medium","documents":[` +
		`{"type":"overview","title":"Overview","path":"mycrate","rationale":"r"},` +
		`{"type":"api","title":"API Reference","rationale":"r","key_files":["a.go"],"wikilinks_out":["Overview"]}` +
		`]}`
	client := llm.NewFakeClient("planner-default", resp)

	bp, err := Plan(context.Background(), client, basicInput())
	require.NoError(t, err)
	require.Len(t, bp.Documents, 4) // 3 mandatory + API Reference
	assert.Equal(t, "Overview", bp.Documents[0].Title)
	assert.Equal(t, "Getting Started", bp.Documents[1].Title)
	assert.Equal(t, "Capabilities & User Stories", bp.Documents[2].Title)
	assert.Equal(t, "API Reference", bp.Documents[3].Title)
	assert.Equal(t, "mycrate", bp.Documents[0].Path)
}

func TestPlan_FencedJSON(t *testing.T) {
	resp := "```json\n{\"repo_summary\":\"s\",\"complexity\":\"small\",\"documents\":[{\"type\":\"overview\",\"title\":\"Overview\"}]}\n```"
	client := llm.NewFakeClient("planner-default", resp)

	bp, err := Plan(context.Background(), client, basicInput())
	require.NoError(t, err)
	assert.Equal(t, "Overview", bp.Documents[0].Title)
}

func TestPlan_RepairsTrailingCommaAndSingleQuotes(t *testing.T) {
	resp := `{'repo_summary': 'ok', 'complexity': 'small', 'documents': [{'type': 'overview', 'title': 'Overview',},],}`
	client := llm.NewFakeClient("planner-default", resp)

	bp, err := Plan(context.Background(), client, basicInput())
	require.NoError(t, err)
	require.NotEmpty(t, bp.Documents)
	assert.Equal(t, "Overview", bp.Documents[0].Title)
}

func TestPlan_UnparsableFallsBackDeterministically(t *testing.T) {
	client := llm.NewFakeClient("planner-default", "not json at all")

	in := basicInput()
	in.Complexity = types.ComplexityLarge
	bp, err := Plan(context.Background(), client, in)
	require.NoError(t, err)

	titles := make(map[string]bool)
	for _, d := range bp.Documents {
		titles[d.Title] = true
	}
	for _, want := range []string{"Overview", "Getting Started", "Capabilities & User Stories", "Configuration", "User Guide", "Data Model", "Contributing"} {
		assert.True(t, titles[want], "missing %s", want)
	}
}

func TestPlan_LLMErrorFallsBack(t *testing.T) {
	client := llm.NewFakeClient("planner-default").WithError(boomErr{})

	bp, err := Plan(context.Background(), client, basicInput())
	require.NoError(t, err)
	assert.Equal(t, "Overview", bp.Documents[0].Title)
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

func TestFlattenSingleDocFolders(t *testing.T) {
	bp := &types.Blueprint{
		Documents: []types.DocumentSpec{
			{Title: "Overview", Path: "crate"},
			{Title: "Getting Started", Path: "crate"},
			{Title: "Capabilities & User Stories", Path: "crate"},
			{Title: "Widgets", Path: "crate/widgets/deep"},
		},
	}
	flattenSingleDocFolders(bp)
	assert.Equal(t, "crate/widgets", bp.Documents[3].Path)
}

func TestDefaultPaths(t *testing.T) {
	bp := &types.Blueprint{Documents: []types.DocumentSpec{{Title: "X"}}}
	defaultPaths(bp, Input{CrateName: "crate", RepoName: "repo"})
	assert.Equal(t, "crate/repo", bp.Documents[0].Path)
}

func TestReportsFor_IncludesStructureFallback(t *testing.T) {
	assert.Equal(t, []string{"api", "architecture", "structure"}, ReportsFor("api"))
	assert.Equal(t, []string{"structure", "architecture"}, ReportsFor("overview"))
	assert.Equal(t, []string{"structure"}, ReportsFor("unknown_type"))
}

func TestRepairJSON_TrailingCommaInArray(t *testing.T) {
	in := `{"a": [1, 2, 3,], "b": 4,}`
	out := repairJSON(in)
	assert.NotContains(t, out, ",]")
	assert.NotContains(t, out, ",}")
}
