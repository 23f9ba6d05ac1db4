// Package ingest implements the ingestion pipeline (spec §5): per-source
// jobs run structure → chunking → embedding → validation → persistence
// in strict order, with up to maxConcurrentJobs running concurrently,
// soft per-stage timeouts, and cooperative cancellation that never
// leaves a partial chunk set visible to queries.
//
// Grounded on pkg/rag/store.go's Index() semaphore worker-pool loop
// (bounded concurrent jobs, per-job context, checkpoint-style progress)
// generalized from file-watch indexing into a fixed five-stage pipeline.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/chunker"
	"github.com/kadirpekel/ragforge/pkg/detector"
	"github.com/kadirpekel/ragforge/pkg/embedding"
	"github.com/kadirpekel/ragforge/pkg/quality"
	"github.com/kadirpekel/ragforge/pkg/structure"
)

// Store is the subset of *pkg/store.Store the pipeline writes through.
type Store interface {
	PutSource(ctx context.Context, src *ragforge.Source) error
	ReplaceChunks(ctx context.Context, sourceID string, chunks []*ragforge.Chunk) error
}

// Config tunes the pipeline (§5).
type Config struct {
	MaxConcurrentJobs int
	IngestTimeout     time.Duration
	EmbeddingTimeout  time.Duration
}

func (c *Config) SetDefaults() {
	if c.MaxConcurrentJobs == 0 {
		c.MaxConcurrentJobs = 5
	}
	if c.IngestTimeout == 0 {
		c.IngestTimeout = 120 * time.Second
	}
	if c.EmbeddingTimeout == 0 {
		c.EmbeddingTimeout = 30 * time.Second
	}
}

// Pipeline is the ingestion pipeline (§4.10/§5).
type Pipeline struct {
	detector  *detector.Detector
	analyzer  *structure.Analyzer
	chunker   *chunker.Chunker
	embedder  *embedding.Embedder
	validator *quality.Validator
	store     Store
	sem       *semaphore.Weighted
	config    Config
}

// New constructs a Pipeline.
func New(d *detector.Detector, a *structure.Analyzer, c *chunker.Chunker, e *embedding.Embedder, v *quality.Validator, s Store, cfg Config) *Pipeline {
	cfg.SetDefaults()
	return &Pipeline{
		detector: d, analyzer: a, chunker: c, embedder: e, validator: v, store: s,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)), config: cfg,
	}
}

// Result is what IngestSource returns: the persisted source record and
// its validation report (§4.6), or a failed source with no report if
// any stage aborted.
type Result struct {
	Source *ragforge.Source
	Report *quality.ValidationReport
}

// IngestSource runs the full five-stage pipeline for one file (§5
// Ordering guarantees: structure → chunking → embedding → validation →
// persistence, strictly ordered within a job).
func (p *Pipeline) IngestSource(ctx context.Context, path string, meta detector.Metadata) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, ragforge.NewCancelled("ingest", err)
	}
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, p.config.IngestTimeout)
	defer cancel()

	contentHash, byteSize, err := hashFile(path)
	if err != nil {
		return nil, ragforge.NewValidationError("filePath", "cannot read source file", err)
	}

	sourceID := ragforge.NewSourceID(contentHash)
	now := time.Now()
	src := &ragforge.Source{
		SourceID: sourceID, Version: contentHash, ContentHash: contentHash, ByteSize: byteSize,
		Filename: meta.Filename, Status: ragforge.StatusRunning, CreatedAt: now, UpdatedAt: now,
	}

	chunks, report, err := p.run(ctx, path, meta, src)
	if err != nil {
		src.Status = ragforge.StatusFailed
		src.UpdatedAt = time.Now()
		_ = p.store.PutSource(ctx, src) // best-effort: record the failure even though the pipeline aborted
		return &Result{Source: src}, err
	}

	// ReplaceChunks must succeed before the source is marked completed:
	// a source record reading "completed" is a promise that a query can
	// see its (sourceId, version) chunk set in full, which only holds
	// once the store's chunk/lexical/vector swap has actually landed.
	if err := p.store.ReplaceChunks(ctx, sourceID, chunks); err != nil {
		src.Status = ragforge.StatusFailed
		src.UpdatedAt = time.Now()
		_ = p.store.PutSource(ctx, src) // best-effort: record the failure even though chunks never swapped
		return &Result{Source: src}, err
	}

	src.Status = ragforge.StatusCompleted
	src.UpdatedAt = time.Now()

	if err := p.store.PutSource(ctx, src); err != nil {
		return nil, err // StoreError: whole ingestion transaction aborts, prior versions remain intact (§7)
	}

	return &Result{Source: src, Report: report}, nil
}

// run executes structure → chunking → embedding → validation, returning
// the final chunk set and validation report without touching the store.
func (p *Pipeline) run(ctx context.Context, path string, meta detector.Metadata, src *ragforge.Source) ([]*ragforge.Chunk, *quality.ValidationReport, error) {
	detection, err := p.detector.Detect(ctx, path, meta)
	if err != nil {
		return nil, nil, ragforge.NewDetectionError(src.SourceID, "document type detection failed", err)
	}
	src.DetectedType = detection.Type
	src.Format = detection.Format

	if ctx.Err() != nil {
		return nil, nil, ragforge.NewCancelled("structure", ctx.Err())
	}
	sections := p.analyzer.Analyze(detection.ExtractedText, detection.Hints)

	chunks, warnings, err := p.chunker.Chunk(chunker.Input{
		SourceID:                src.SourceID,
		Version:                 src.Version,
		ContentHash:             src.ContentHash,
		Language:                "en",
		Sections:                sections,
		DocumentIsInstructional: isInstructional(detection),
	}, detection.ExtractedText)
	if err != nil {
		return nil, nil, ragforge.NewExtractionError(src.SourceID, detection.Format, "chunking failed", err)
	}
	_ = warnings // surfaced via observability in a full deployment; pipeline itself only needs the chunk set

	if ctx.Err() != nil {
		return nil, nil, ragforge.NewCancelled("embedding", ctx.Err())
	}

	embedCtx, embedCancel := context.WithTimeout(ctx, p.config.EmbeddingTimeout)
	defer embedCancel()

	rejected, err := p.embedder.EmbedChunks(embedCtx, chunks, buildPrevSiblingMap(chunks))
	if err != nil {
		if ctx.Err() != nil {
			// §5: cancellation during an embedding batch waits for the
			// in-flight batch, then aborts without persisting partial
			// chunk sets.
			return nil, nil, ragforge.NewCancelled("embedding", ctx.Err())
		}
		return nil, nil, err
	}
	chunks = removeRejected(chunks, rejected)

	successRate := 1.0
	if total := len(chunks) + len(rejected); total > 0 {
		successRate = float64(len(chunks)) / float64(total)
	}
	report := p.validator.BuildReport(src.SourceID, chunks, successRate)

	return chunks, report, nil
}

// hashFile reads path and returns a hex SHA-256 content hash and its
// byte size, the inputs to the deterministic sourceId (§3, §8 property
// 3: "identical input bytes... same chunkId set").
func hashFile(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), int64(len(data)), nil
}

// buildPrevSiblingMap derives, for each chunk, the last sentence of the
// chunk immediately before it under the same parent — chunks come out
// of the chunker already in reading order, so a single pass grouping by
// ParentChunkID recovers sibling adjacency without re-deriving the
// chunker's internal node tree.
func buildPrevSiblingMap(chunks []*ragforge.Chunk) map[string]string {
	lastContentByParent := make(map[string]string)
	out := make(map[string]string)
	for _, c := range chunks {
		if prev, ok := lastContentByParent[c.ParentChunkID]; ok {
			if sentences := chunker.SplitSentences(prev); len(sentences) > 0 {
				out[c.ChunkID] = sentences[len(sentences)-1]
			}
		}
		lastContentByParent[c.ParentChunkID] = c.Content
	}
	return out
}

func removeRejected(chunks, rejected []*ragforge.Chunk) []*ragforge.Chunk {
	if len(rejected) == 0 {
		return chunks
	}
	drop := make(map[string]struct{}, len(rejected))
	for _, c := range rejected {
		drop[c.ChunkID] = struct{}{}
	}
	out := chunks[:0]
	for _, c := range chunks {
		if _, gone := drop[c.ChunkID]; gone {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isInstructional(d *detector.Result) bool {
	switch d.Type {
	case ragforge.TypeUserGuide, ragforge.TypeQuickStart, ragforge.TypeTroubleshoot:
		return true
	}
	if v, ok := d.StrategyOptions["extractProcedures"].(bool); ok && v {
		return true
	}
	if v, ok := d.StrategyOptions["preserveStepSequences"].(bool); ok && v {
		return true
	}
	return false
}

// IngestBatch ingests every path, bounded by the same semaphore
// IngestSource uses, and returns one Result per input in the same order
// (§5: "multiple source jobs run in parallel up to maxConcurrentJobs").
func (p *Pipeline) IngestBatch(ctx context.Context, paths []string, meta func(path string) detector.Metadata) ([]*Result, error) {
	results := make([]*Result, len(paths))
	errs := make([]error, len(paths))

	done := make(chan int, len(paths))
	for i, path := range paths {
		i, path := i, path
		go func() {
			m := detector.Metadata{}
			if meta != nil {
				m = meta(path)
			}
			res, err := p.IngestSource(ctx, path, m)
			results[i], errs[i] = res, err
			done <- i
		}()
	}
	for range paths {
		<-done
	}

	for _, err := range errs {
		if err != nil {
			return results, fmt.Errorf("ingest: one or more sources failed: %w", firstErr(errs))
		}
	}
	return results, nil
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
