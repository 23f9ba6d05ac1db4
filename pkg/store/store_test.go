package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingVectorIndex fails every Add after addsBeforeFailure succeed, so
// tests can simulate a vector backend that dies partway through a
// ReplaceChunks reindex.
type failingVectorIndex struct {
	addsBeforeFailure int
	adds              int
	added             map[string][]float32
}

func newFailingVectorIndex(addsBeforeFailure int) *failingVectorIndex {
	return &failingVectorIndex{addsBeforeFailure: addsBeforeFailure, added: map[string][]float32{}}
}

func (f *failingVectorIndex) Add(ctx context.Context, id string, vector []float32) error {
	if f.adds >= f.addsBeforeFailure {
		return errors.New("simulated vector backend failure")
	}
	f.adds++
	f.added[id] = vector
	return nil
}

func (f *failingVectorIndex) Remove(ctx context.Context, id string) error {
	delete(f.added, id)
	return nil
}

func (f *failingVectorIndex) Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Match, error) {
	return nil, nil
}

func (f *failingVectorIndex) Len() int { return len(f.added) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSource(id string) *ragforge.Source {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &ragforge.Source{
		SourceID: id, Version: "1", ContentHash: "h1", ByteSize: 10,
		Filename: "doc.md", Format: ragforge.FormatMarkdown, DetectedType: ragforge.TypeUserGuide,
		Status: ragforge.StatusCompleted, CreatedAt: now, UpdatedAt: now,
	}
}

func TestPutAndListSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSource(ctx, testSource("src-1")))
	sources, err := s.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "src-1", sources[0].SourceID)
}

func TestPutSourceUpsertsOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := testSource("src-1")
	require.NoError(t, s.PutSource(ctx, src))
	src.Version = "2"
	src.Status = ragforge.StatusFailed
	require.NoError(t, s.PutSource(ctx, src))

	sources, err := s.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "2", sources[0].Version)
	assert.Equal(t, ragforge.StatusFailed, sources[0].Status)
}

func testChunk(id, parentID string) *ragforge.Chunk {
	return &ragforge.Chunk{
		ChunkID: id, SourceID: "src-1", Version: "1", Scale: ragforge.ScaleParagraph,
		Content: "install the package using the package manager", Heading: "Setup",
		SectionPath: []string{"Guide", "Setup"}, ParentChunkID: parentID,
		ChildChunkIDs: []string{}, SiblingChunkIDs: []string{}, HierarchyPath: []string{},
		Embeddings: map[ragforge.EmbeddingKind][]float32{
			ragforge.EmbeddingContent: {0.1, 0.2, 0.3},
		},
	}
}

func TestReplaceChunksThenGetChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []*ragforge.Chunk{testChunk("c1", "")}
	require.NoError(t, s.ReplaceChunks(ctx, "src-1", chunks))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "install the package using the package manager", got.Content)
	assert.Equal(t, []string{"Guide", "Setup"}, got.SectionPath)
}

func TestReplaceChunksSwapsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{testChunk("old-1", "")}))
	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{testChunk("new-1", "")}))

	_, err := s.GetChunk(ctx, "old-1")
	assert.Error(t, err)

	got, err := s.GetChunk(ctx, "new-1")
	require.NoError(t, err)
	assert.Equal(t, "new-1", got.ChunkID)
}

// TestReplaceChunksRollsBackSqliteOnVectorFailure verifies a mid-batch
// vector-index failure leaves neither the new chunk set committed to
// sqlite nor a partially written vector index, and the old chunk set
// (and its indexes) remain queryable, per ReplaceChunks's "completely or
// not at all" contract.
func TestReplaceChunksRollsBackSqliteOnVectorFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{testChunk("old-1", "")}))

	failing := newFailingVectorIndex(1)
	s.vectors[ragforge.EmbeddingContent] = failing

	err := s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{testChunk("new-1", ""), testChunk("new-2", "")})
	require.Error(t, err)

	// The failed replacement must not have touched the durable chunk
	// set: the old chunk is still there, neither new chunk is visible.
	got, getErr := s.GetChunk(ctx, "old-1")
	require.NoError(t, getErr)
	assert.Equal(t, "old-1", got.ChunkID)

	_, err = s.GetChunk(ctx, "new-1")
	assert.Error(t, err)
	_, err = s.GetChunk(ctx, "new-2")
	assert.Error(t, err)

	// The one vector successfully added before the simulated failure
	// must have been rolled back too.
	assert.Empty(t, failing.added)
}

func TestGetChunkNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetChunk(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetParentAndChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := testChunk("parent", "")
	child := testChunk("child", "parent")
	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{parent, child}))

	kids, err := s.GetChildren(ctx, "parent")
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "child", kids[0].ChunkID)

	got, err := s.GetParent(ctx, "child")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "parent", got.ChunkID)

	rootParent, err := s.GetParent(ctx, "parent")
	require.NoError(t, err)
	assert.Nil(t, rootParent)
}

func TestGetSiblings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testChunk("a", "")
	b := testChunk("b", "")
	a.SiblingChunkIDs = []string{"b"}
	b.SiblingChunkIDs = []string{"a"}
	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{a, b}))

	siblings, err := s.GetSiblings(ctx, "a")
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, "b", siblings[0].ChunkID)
}

func TestSearchByVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{testChunk("c1", "")}))

	matches, err := s.SearchByVector(ctx, ragforge.EmbeddingContent, []float32{0.1, 0.2, 0.3}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ChunkID)
}

func TestSearchByVectorUnknownKind(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SearchByVector(context.Background(), ragforge.EmbeddingSemantic, []float32{1}, 5)
	assert.Error(t, err)
}

func TestSearchByText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{testChunk("c1", "")}))

	matches, err := s.SearchByText(ctx, "package manager", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ChunkID)
}

func TestSearchByTextEmptyQuery(t *testing.T) {
	s := newTestStore(t)
	matches, err := s.SearchByText(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestDeleteSourceRemovesChunksAndIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSource(ctx, testSource("src-1")))
	require.NoError(t, s.ReplaceChunks(ctx, "src-1", []*ragforge.Chunk{testChunk("c1", "")}))

	require.NoError(t, s.DeleteSource(ctx, "src-1"))

	_, err := s.GetChunk(ctx, "c1")
	assert.Error(t, err)

	matches, err := s.SearchByText(ctx, "package manager", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	vecMatches, err := s.SearchByVector(ctx, ragforge.EmbeddingContent, []float32{0.1, 0.2, 0.3}, 5)
	require.NoError(t, err)
	assert.Empty(t, vecMatches)
}
