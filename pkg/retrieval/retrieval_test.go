package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/kadirpekel/ragforge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory ChunkStore stub: vector/text search results
// are pre-seeded per kind/query, and chunk relationships are plain maps.
type fakeStore struct {
	chunks       map[string]*ragforge.Chunk
	parents      map[string]string
	children     map[string][]string
	siblings     map[string][]string
	vectorByKind map[ragforge.EmbeddingKind][]ragforge.VectorMatch
	lexical      []ragforge.LexicalMatch
	vectorErr    error
	lexicalErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunks:       make(map[string]*ragforge.Chunk),
		parents:      make(map[string]string),
		children:     make(map[string][]string),
		siblings:     make(map[string][]string),
		vectorByKind: make(map[ragforge.EmbeddingKind][]ragforge.VectorMatch),
	}
}

func (f *fakeStore) SearchByVector(ctx context.Context, kind ragforge.EmbeddingKind, vector []float32, k int) ([]ragforge.VectorMatch, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorByKind[kind], nil
}

func (f *fakeStore) SearchByText(ctx context.Context, queryText string, k int) ([]ragforge.LexicalMatch, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexical, nil
}

func (f *fakeStore) GetChunk(ctx context.Context, chunkID string) (*ragforge.Chunk, error) {
	c, ok := f.chunks[chunkID]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeStore) GetChildren(ctx context.Context, chunkID string) ([]*ragforge.Chunk, error) {
	var out []*ragforge.Chunk
	for _, id := range f.children[chunkID] {
		out = append(out, f.chunks[id])
	}
	return out, nil
}

func (f *fakeStore) GetParent(ctx context.Context, chunkID string) (*ragforge.Chunk, error) {
	id, ok := f.parents[chunkID]
	if !ok {
		return nil, nil
	}
	return f.chunks[id], nil
}

func (f *fakeStore) GetSiblings(ctx context.Context, chunkID string) ([]*ragforge.Chunk, error) {
	var out []*ragforge.Chunk
	for _, id := range f.siblings[chunkID] {
		out = append(out, f.chunks[id])
	}
	return out, nil
}

type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func chunk(id string, contentType ragforge.ContentType) *ragforge.Chunk {
	return &ragforge.Chunk{ChunkID: id, SourceID: "src-1", ContentType: contentType, QualityScore: 0.5}
}

func TestQueryBlendsVectorAndLexical(t *testing.T) {
	store := newFakeStore()
	store.chunks["a"] = chunk("a", ragforge.ContentText)
	store.chunks["b"] = chunk("b", ragforge.ContentText)
	store.vectorByKind[ragforge.EmbeddingContent] = []ragforge.VectorMatch{{ChunkID: "a", Score: 0.9}}
	store.lexical = []ragforge.LexicalMatch{{ChunkID: "b", Score: 2.0}}

	r := New(store, &fakeEmbedder{dim: 4}, Config{MultiScaleKinds: []ragforge.EmbeddingKind{}})
	resp, err := r.Query(context.Background(), "what is a chunk", Filters{})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)

	ids := make([]string, len(resp.Items))
	for i, it := range resp.Items {
		ids[i] = it.ChunkID
	}
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "b")
}

func TestQueryDegradesToLexicalWhenEmbeddingFails(t *testing.T) {
	store := newFakeStore()
	store.chunks["a"] = chunk("a", ragforge.ContentText)
	store.lexical = []ragforge.LexicalMatch{{ChunkID: "a", Score: 1.5}}

	r := New(store, &fakeEmbedder{err: errors.New("provider down")}, Config{})
	resp, err := r.Query(context.Background(), "how to configure", Filters{})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, StrategyDegradedLex, resp.Items[0].Strategy)
}

func TestQueryFallsBackToVectorOnlyOnStrategyError(t *testing.T) {
	store := newFakeStore()
	store.chunks["a"] = chunk("a", ragforge.ContentText)
	store.vectorByKind[ragforge.EmbeddingContent] = []ragforge.VectorMatch{{ChunkID: "a", Score: 0.8}}
	store.lexicalErr = errors.New("bleve unavailable")

	r := New(store, &fakeEmbedder{dim: 4}, Config{MultiScaleKinds: []ragforge.EmbeddingKind{}})
	resp, err := r.Query(context.Background(), "install the tool", Filters{})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, StrategyFallback, resp.Items[0].Strategy)
}

func TestQueryAppliesFilters(t *testing.T) {
	store := newFakeStore()
	store.chunks["a"] = chunk("a", ragforge.ContentText)
	store.chunks["b"] = &ragforge.Chunk{ChunkID: "b", SourceID: "other-src", ContentType: ragforge.ContentText}
	store.vectorByKind[ragforge.EmbeddingContent] = []ragforge.VectorMatch{
		{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8},
	}

	r := New(store, &fakeEmbedder{dim: 4}, Config{MultiScaleKinds: []ragforge.EmbeddingKind{}})
	resp, err := r.Query(context.Background(), "general query", Filters{SourceID: "src-1"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "a", resp.Items[0].ChunkID)
}

func TestBlendAndRankUsesConfiguredWeights(t *testing.T) {
	r := New(newFakeStore(), &fakeEmbedder{dim: 4}, Config{
		Weights: ScoreWeights{VectorSimilarity: 1.0},
		ContentTypeMatrix: map[ragforge.QueryType]map[ragforge.ContentType]float64{
			ragforge.QueryGeneral: {},
		},
	})
	candidates := []*candidate{
		{chunk: chunk("a", ragforge.ContentText), vectorSim: 0.8},
		{chunk: chunk("b", ragforge.ContentText), vectorSim: 0.3},
	}
	items := r.blendAndRank(candidates, ragforge.QueryGeneral)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ChunkID)
	assert.InDelta(t, 0.8, items[0].RetrievalScore, 1e-9)
}

func TestDiversityFilterCapsPerSource(t *testing.T) {
	r := New(newFakeStore(), &fakeEmbedder{dim: 4}, Config{MaxChunksPerSource: 1})
	items := []ragforge.QueryResultItem{
		{ChunkID: "a", RetrievalScore: 0.9, Citation: ragforge.Citation{SourceID: "s1"}},
		{ChunkID: "b", RetrievalScore: 0.8, Citation: ragforge.Citation{SourceID: "s1"}},
	}
	out := r.diversityFilter(items)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ChunkID)
}

func TestDiversityFilterCapsPerPage(t *testing.T) {
	r := New(newFakeStore(), &fakeEmbedder{dim: 4}, Config{MaxChunksPerSource: 10, MaxChunksPerPage: 1})
	items := []ragforge.QueryResultItem{
		{ChunkID: "a", RetrievalScore: 0.9, Citation: ragforge.Citation{SourceID: "s1", PageNumber: 1}},
		{ChunkID: "b", RetrievalScore: 0.8, Citation: ragforge.Citation{SourceID: "s1", PageNumber: 1}},
	}
	out := r.diversityFilter(items)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ChunkID)
}

func TestExpandAddsParentAndChildren(t *testing.T) {
	store := newFakeStore()
	store.chunks["parent"] = chunk("parent", ragforge.ContentText)
	store.chunks["child"] = chunk("child", ragforge.ContentText)
	store.parents["item"] = "parent"
	store.children["item"] = []string{"child"}

	r := New(store, &fakeEmbedder{dim: 4}, Config{HierarchicalExpansion: true})
	items := []ragforge.QueryResultItem{{ChunkID: "item", RetrievalScore: 1.0}}
	out := r.expand(context.Background(), items, map[string]*ragforge.Chunk{})

	require.Len(t, out, 3)
	var gotParent, gotChild bool
	for _, it := range out[1:] {
		if it.ChunkID == "parent" {
			gotParent = true
			assert.Equal(t, "expansion_parent", it.Strategy)
		}
		if it.ChunkID == "child" {
			gotChild = true
			assert.Equal(t, "expansion_child", it.Strategy)
		}
	}
	assert.True(t, gotParent)
	assert.True(t, gotChild)
}

func TestExpandNoopWhenDisabled(t *testing.T) {
	r := New(newFakeStore(), &fakeEmbedder{dim: 4}, Config{})
	items := []ragforge.QueryResultItem{{ChunkID: "item", RetrievalScore: 1.0}}
	out := r.expand(context.Background(), items, map[string]*ragforge.Chunk{})
	assert.Equal(t, items, out)
}

// TestQueryExpansionNeverBypassesDiversityOrK exercises Query() with both
// hierarchical expansion and diversity caps enabled: expansion adds a
// parent and a child from the same source as their originals, which
// would push that source over MaxChunksPerSource and the result over K
// if the diversity filter and K-cap ran before expand(). It must not.
func TestQueryExpansionNeverBypassesDiversityOrK(t *testing.T) {
	store := newFakeStore()
	store.chunks["a"] = chunk("a", ragforge.ContentText)
	store.chunks["b"] = chunk("b", ragforge.ContentText)
	store.chunks["c"] = chunk("c", ragforge.ContentText)
	store.chunks["pa"] = chunk("pa", ragforge.ContentText)
	store.chunks["cb1"] = chunk("cb1", ragforge.ContentText)
	store.parents["a"] = "pa"
	store.children["b"] = []string{"cb1"}
	store.vectorByKind[ragforge.EmbeddingContent] = []ragforge.VectorMatch{
		{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8}, {ChunkID: "c", Score: 0.7},
	}

	r := New(store, &fakeEmbedder{dim: 4}, Config{
		K:                     2,
		MaxChunksPerSource:    2,
		HierarchicalExpansion: true,
		MultiScaleKinds:       []ragforge.EmbeddingKind{},
	})
	resp, err := r.Query(context.Background(), "general query", Filters{})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(resp.Items), r.config.K)
	perSource := make(map[string]int)
	for _, it := range resp.Items {
		perSource[it.Citation.SourceID]++
	}
	for src, n := range perSource {
		assert.LessOrEqualf(t, n, r.config.MaxChunksPerSource, "source %s exceeded diversity cap", src)
	}
}

func TestLostInMiddleReorderPlacesTopScoresAtEnds(t *testing.T) {
	items := []ragforge.QueryResultItem{
		{ChunkID: "5th", RetrievalScore: 0.5},
		{ChunkID: "1st", RetrievalScore: 0.9},
		{ChunkID: "3rd", RetrievalScore: 0.7},
		{ChunkID: "2nd", RetrievalScore: 0.8},
		{ChunkID: "4th", RetrievalScore: 0.6},
	}
	out := lostInMiddleReorder(items)
	require.Len(t, out, 5)
	assert.Equal(t, "1st", out[0].ChunkID)
	assert.Equal(t, "2nd", out[len(out)-1].ChunkID)
}

func TestLostInMiddleReorderNoopForTwoOrFewer(t *testing.T) {
	items := []ragforge.QueryResultItem{{ChunkID: "a"}, {ChunkID: "b"}}
	out := lostInMiddleReorder(items)
	assert.Equal(t, items, out)
}

func TestNormalizeLexicalScoreStaysInUnitRange(t *testing.T) {
	assert.Equal(t, 0.0, normalizeLexicalScore(0))
	assert.InDelta(t, 0.5, normalizeLexicalScore(1), 1e-9)
	assert.Less(t, normalizeLexicalScore(1000), 1.0)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 1.0, clamp01(2))
	assert.Equal(t, 0.5, clamp01(0.5))
}
