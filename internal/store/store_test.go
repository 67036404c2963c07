package store

import (
	"context"
	"testing"

	"github.com/isocrates/isocrates/internal/errs"
	"github.com/isocrates/isocrates/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateDocID_Standalone(t *testing.T) {
	id := GenerateDocID("", "path", "Title", "overview")
	assert.Contains(t, id, "doc-standalone-")
}

func TestGenerateDocID_RepoWithPathAndTitle(t *testing.T) {
	id1 := GenerateDocID("https://github.com/a/b.git", "crate", "Overview", "overview")
	id2 := GenerateDocID("https://github.com/a/b", "crate", "Overview", "overview")
	assert.Equal(t, id1, id2, "trailing .git should normalize identically")
}

func TestGenerateDocID_RepoDocTypeOnly(t *testing.T) {
	id := GenerateDocID("https://github.com/a/b", "", "", "overview")
	assert.Contains(t, id, "-overview")
}

func TestGenerateDocID_RepoDefault(t *testing.T) {
	id := GenerateDocID("https://github.com/a/b", "", "", "")
	assert.Contains(t, id, "-default")
}

func TestUpsert_InsertsNewDocument(t *testing.T) {
	s := newTestStore(t)
	doc, isNew, err := s.Upsert(context.Background(), types.DocumentCreate{
		RepoURL: "https://github.com/a/b", RepoName: "b", DocType: "overview",
		Path: "b", Title: "Overview", Content: "hello world", AuthorType: types.AuthorAI,
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "hello world", doc.Content)
}

func TestUpsert_UpdatesExistingDocument(t *testing.T) {
	s := newTestStore(t)
	create := types.DocumentCreate{RepoURL: "https://github.com/a/b", RepoName: "b", Path: "b", Title: "Overview", Content: "v1", AuthorType: types.AuthorAI}
	doc1, isNew1, err := s.Upsert(context.Background(), create)
	require.NoError(t, err)
	require.True(t, isNew1)

	create.Content = "v2"
	doc2, isNew2, err := s.Upsert(context.Background(), create)
	require.NoError(t, err)
	assert.False(t, isNew2)
	assert.Equal(t, doc1.ID, doc2.ID)
	assert.Equal(t, 2, doc2.Version)
	assert.Equal(t, "v2", doc2.Content)
}

func TestUpsert_CreatesVersionRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "Standalone", Content: "content", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	versions, err := s.Versions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, types.AuthorAI, versions[0].AuthorType)
}

func TestUpsert_RefreshesIncomingDependenciesOnNewDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	referrer, _, err := s.Upsert(ctx, types.DocumentCreate{
		RepoURL: "https://github.com/a/b", RepoName: "b", Path: "b", Title: "Guide",
		Content: "See [[Overview]] for details.", AuthorType: types.AuthorAI,
	})
	require.NoError(t, err)

	outgoing, _, err := s.Dependencies(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Empty(t, outgoing, "Overview doesn't exist yet")

	overview, _, err := s.Upsert(ctx, types.DocumentCreate{
		RepoURL: "https://github.com/a/b", RepoName: "b", Path: "b", Title: "Overview",
		Content: "intro", AuthorType: types.AuthorAI,
	})
	require.NoError(t, err)

	outgoing, _, err = s.Dependencies(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, overview.ID, outgoing[0].ToDocID)
}

func TestUpsert_SkipsSelfLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{
		RepoURL: "https://github.com/a/b", RepoName: "b", Path: "b", Title: "Loop",
		Content: "[[Loop]] refers to itself.", AuthorType: types.AuthorAI,
	})
	require.NoError(t, err)
	outgoing, _, err := s.Dependencies(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, outgoing)
}

func TestUpdate_OptimisticLockSucceedsOnMatchingVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "X", Content: "v1", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	newContent := "v2"
	expected := doc.Version
	updated, err := s.Update(ctx, doc.ID, &newContent, nil, &expected, types.AuthorAI, types.AuthorMeta{})
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Content)
	assert.Equal(t, doc.Version+1, updated.Version)
}

func TestUpdate_RecordsCallerSuppliedAuthorType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "X", Content: "v1", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	newContent := "human edit"
	_, err = s.Update(ctx, doc.ID, &newContent, nil, nil, types.AuthorHuman, types.AuthorMeta{})
	require.NoError(t, err)

	versions, err := s.Versions(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, types.AuthorHuman, versions[0].AuthorType)
}

func TestUpdate_EmptyAuthorTypeDefaultsToAI(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "X", Content: "v1", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	newContent := "v2"
	_, err = s.Update(ctx, doc.ID, &newContent, nil, nil, "", types.AuthorMeta{})
	require.NoError(t, err)

	versions, err := s.Versions(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, types.AuthorAI, versions[0].AuthorType)
}

func TestUpdate_OptimisticLockConflictOnStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "X", Content: "v1", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	stale := doc.Version - 1 // deliberately wrong, since doc.Version starts at 1
	if stale < 0 {
		stale = 99
	}
	newContent := "v2"
	_, err = s.Update(ctx, doc.ID, &newContent, nil, &stale, types.AuthorAI, types.AuthorMeta{})
	require.Error(t, err)
	var conflict *errs.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestUpdate_DescriptionChangeClearsEmbedModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "X", Content: "v1", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	desc := "new description"
	updated, err := s.Update(ctx, doc.ID, nil, &desc, nil, types.AuthorAI, types.AuthorMeta{})
	require.NoError(t, err)
	assert.Equal(t, "", updated.EmbedModel)
}

func TestDeleteRestore_SoftDeleteLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "X", Content: "v1", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, doc.ID))
	_, err = s.GetDocument(ctx, doc.ID)
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	deleted, err := s.GetDeleted(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	require.NoError(t, s.Restore(ctx, doc.ID))
	restored, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, restored.Active())
}

func TestDelete_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "X", Content: "v1", AuthorType: types.AuthorAI})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, doc.ID))
	require.NoError(t, s.Delete(ctx, doc.ID)) // second call is a no-op, not an error
}

func TestCleanupOrphans_RefusesWhenNoSuccesses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	snap := &Snapshot{}
	_, err := s.CleanupOrphans(ctx, snap, nil, []string{"a"})
	require.Error(t, err)
}

func TestCleanupOrphans_RefusesBelowSuccessRatio(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	snap := &Snapshot{}
	_, err := s.CleanupOrphans(ctx, snap, []string{"a"}, []string{"b", "c", "d"})
	require.Error(t, err)
}

func TestCleanupOrphans_DeletesUntouchedNonProtectedDocs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, err := s.Upsert(ctx, types.DocumentCreate{RepoURL: "https://github.com/a/b", RepoName: "b", Path: "b", Title: "Old Page", Content: "stale", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "https://github.com/a/b")
	require.NoError(t, err)

	n, err := s.CleanupOrphans(ctx, snap, []string{"some-other-doc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetDocument(ctx, doc.ID)
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCleanupOrphans_ProtectsRecentHumanEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _, err := s.Upsert(ctx, types.DocumentCreate{RepoURL: "https://github.com/a/b", RepoName: "b", Path: "b", Title: "Human Page", Content: "edited by a person", AuthorType: types.AuthorHuman})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "https://github.com/a/b")
	require.NoError(t, err)
	require.True(t, snap.HumanEdited[doc.ID])

	n, err := s.CleanupOrphans(ctx, snap, []string{"some-other-doc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.GetDocument(ctx, doc.ID)
	assert.NoError(t, err)
}

func TestMove_RewritesCrateWikilinksOnCrateChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	moved, _, err := s.Upsert(ctx, types.DocumentCreate{RepoURL: "https://github.com/a/b", RepoName: "b", Path: "oldcrate", Title: "Overview", Content: "intro", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	referrer, _, err := s.Upsert(ctx, types.DocumentCreate{RepoURL: "https://github.com/a/b", RepoName: "b", Path: "othercrate", Title: "Guide", Content: "See [[oldcrate]] for more.", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	_, err = s.Move(ctx, moved.ID, "newcrate")
	require.NoError(t, err)

	updatedReferrer, err := s.GetDocument(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Contains(t, updatedReferrer.Content, "[[newcrate]]")
	assert.NotContains(t, updatedReferrer.Content, "[[oldcrate]]")
}

func TestAddTypedDependency_RejectsCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "A", Content: "a", AuthorType: types.AuthorAI})
	require.NoError(t, err)
	b, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "B", Content: "b", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	require.NoError(t, s.AddTypedDependency(ctx, a.ID, b.ID, "supersedes", "", ""))
	err = s.AddTypedDependency(ctx, b.ID, a.ID, "supersedes", "", "")
	require.Error(t, err)
}

func TestUpdate_ClearsTypedDependenciesOnContentRewrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "A", Content: "a", AuthorType: types.AuthorAI})
	require.NoError(t, err)
	b, _, err := s.Upsert(ctx, types.DocumentCreate{Title: "B", Content: "b", AuthorType: types.AuthorAI})
	require.NoError(t, err)

	require.NoError(t, s.AddTypedDependency(ctx, a.ID, b.ID, "supersedes", "", ""))
	outgoing, _, err := s.Dependencies(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)

	newContent := "a, rewritten"
	_, err = s.Update(ctx, a.ID, &newContent, nil, nil, types.AuthorAI, types.AuthorMeta{})
	require.NoError(t, err)

	outgoing, _, err = s.Dependencies(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, outgoing, "non-wikilink edge must not survive a content rewrite")
}
