package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/chunker"
	"github.com/kadirpekel/ragforge/pkg/detector"
	"github.com/kadirpekel/ragforge/pkg/embedding"
	"github.com/kadirpekel/ragforge/pkg/quality"
	"github.com/kadirpekel/ragforge/pkg/structure"
	"github.com/kadirpekel/ragforge/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records every PutSource/ReplaceChunks call in memory.
type fakeStore struct {
	mu      sync.Mutex
	sources map[string]*ragforge.Source
	chunks  map[string][]*ragforge.Chunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{sources: make(map[string]*ragforge.Source), chunks: make(map[string][]*ragforge.Chunk)}
}

func (f *fakeStore) PutSource(ctx context.Context, src *ragforge.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *src
	f.sources[src.SourceID] = &cp
	return nil
}

func (f *fakeStore) ReplaceChunks(ctx context.Context, sourceID string, chunks []*ragforge.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[sourceID] = chunks
	return nil
}

// fakeProvider always returns a unit vector of the configured dimension.
type fakeProvider struct{ dim int }

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, p.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}
func (p *fakeProvider) Dimension() int { return p.dim }
func (p *fakeProvider) Model() string  { return "fake-v1" }

func newTestPipeline(t *testing.T, store Store) *Pipeline {
	t.Helper()
	tokens, err := utils.NewTokenCounter("cl100k_base")
	require.NoError(t, err)

	d := detector.New(detector.Config{}, nil)
	a := structure.New()
	ck := chunker.New(chunker.Config{}, tokens)
	e, err := embedding.New(embedding.Config{Kinds: []ragforge.EmbeddingKind{ragforge.EmbeddingContent}}, &fakeProvider{dim: 4}, nil)
	require.NoError(t, err)
	v := quality.New(quality.Config{})

	return New(d, a, ck, e, v, store, Config{})
}

func writeTempMarkdown(t *testing.T) string {
	t.Helper()
	content := "# User Guide\n\n## Installation\n\n1. Download the installer.\n2. Run it and follow the prompts.\n3. Restart the machine.\n\n## Configuration\n\nEdit the config file to set your preferences.\n"
	path := filepath.Join(t.TempDir(), "guide.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestSourceEndToEnd(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)
	path := writeTempMarkdown(t)

	result, err := p.IngestSource(context.Background(), path, detector.Metadata{Filename: "guide.md"})
	require.NoError(t, err)
	require.NotNil(t, result.Source)
	assert.Equal(t, ragforge.StatusCompleted, result.Source.Status)
	require.NotNil(t, result.Report)

	chunks := store.chunks[result.Source.SourceID]
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Embeddings[ragforge.EmbeddingContent])
	}
}

func TestIngestSourceIsDeterministic(t *testing.T) {
	path := writeTempMarkdown(t)

	store1 := newFakeStore()
	r1, err := newTestPipeline(t, store1).IngestSource(context.Background(), path, detector.Metadata{Filename: "guide.md"})
	require.NoError(t, err)

	store2 := newFakeStore()
	r2, err := newTestPipeline(t, store2).IngestSource(context.Background(), path, detector.Metadata{Filename: "guide.md"})
	require.NoError(t, err)

	assert.Equal(t, r1.Source.SourceID, r2.Source.SourceID)
	assert.Equal(t, len(store1.chunks[r1.Source.SourceID]), len(store2.chunks[r2.Source.SourceID]))
}

func TestIngestSourceFailsOnUnreadableFile(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	_, err := p.IngestSource(context.Background(), filepath.Join(t.TempDir(), "missing.md"), detector.Metadata{})
	require.Error(t, err)

	// Unlike later-stage failures, this one leaves no source record.
	assert.Len(t, store.sources, 0) // hashFile fails before a source record ever exists
}

// replaceChunksFailingStore wraps fakeStore but fails every ReplaceChunks
// call, to verify IngestSource never marks a source completed when the
// chunk swap itself never landed.
type replaceChunksFailingStore struct {
	*fakeStore
}

func (f *replaceChunksFailingStore) ReplaceChunks(ctx context.Context, sourceID string, chunks []*ragforge.Chunk) error {
	return ragforge.NewStoreError("replaceChunks", sourceID, "simulated reindex failure", nil)
}

func TestIngestSourceMarksFailedWhenReplaceChunksFails(t *testing.T) {
	inner := newFakeStore()
	store := &replaceChunksFailingStore{fakeStore: inner}
	p := newTestPipeline(t, store)
	path := writeTempMarkdown(t)

	result, err := p.IngestSource(context.Background(), path, detector.Metadata{Filename: "guide.md"})
	require.Error(t, err)
	require.NotNil(t, result.Source)
	assert.Equal(t, ragforge.StatusFailed, result.Source.Status)

	// The best-effort PutSource on failure must reflect the failed
	// status too, never a stray "completed" row with no chunks behind it.
	persisted := inner.sources[result.Source.SourceID]
	require.NotNil(t, persisted)
	assert.Equal(t, ragforge.StatusFailed, persisted.Status)
	assert.Empty(t, inner.chunks[result.Source.SourceID])
}

func TestIngestBatchReturnsCompletedResultPerPath(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	pathA := writeTempMarkdown(t)
	pathB := writeTempMarkdown(t)

	results, err := p.IngestBatch(context.Background(), []string{pathA, pathB}, func(path string) detector.Metadata {
		return detector.Metadata{Filename: filepath.Base(path)}
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, ragforge.StatusCompleted, r.Source.Status)
	}
}

func TestWatcherIngestsFileWrittenAfterStart(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	p := newTestPipeline(t, store)

	w, err := NewWatcher(p, WatchConfig{BasePath: dir, DebounceDelay: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := w.Start(ctx)
	require.NoError(t, err)

	content := "# User Guide\n\n## Installation\n\n1. Download the installer.\n2. Run it.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.md"), []byte(content), 0o644))

	select {
	case res := <-results:
		require.NotNil(t, res)
		require.NotNil(t, res.Source)
		assert.Equal(t, ragforge.StatusCompleted, res.Source.Status)
		assert.Equal(t, "guide.md", res.Source.Filename)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher to ingest the new file")
	}

	require.NoError(t, w.Stop())
}

func TestBuildPrevSiblingMap(t *testing.T) {
	chunks := []*ragforge.Chunk{
		{ChunkID: "a", ParentChunkID: "root", Content: "First sentence here. Second one."},
		{ChunkID: "b", ParentChunkID: "root", Content: "Third sentence follows."},
	}
	m := buildPrevSiblingMap(chunks)
	assert.Equal(t, "Second one.", m["b"])
	assert.Empty(t, m["a"])
}

func TestRemoveRejected(t *testing.T) {
	chunks := []*ragforge.Chunk{{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"}}
	rejected := []*ragforge.Chunk{{ChunkID: "b"}}
	out := removeRejected(chunks, rejected)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ChunkID)
	assert.Equal(t, "c", out[1].ChunkID)
}

func TestIsInstructional(t *testing.T) {
	assert.True(t, isInstructional(&detector.Result{Type: ragforge.TypeUserGuide}))
	assert.False(t, isInstructional(&detector.Result{Type: ragforge.TypeUnknown}))
	assert.True(t, isInstructional(&detector.Result{
		Type:            ragforge.TypeUnknown,
		StrategyOptions: map[string]any{"extractProcedures": true},
	}))
}
