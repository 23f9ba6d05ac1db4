// Package embedding implements the Multi-Scale Embedder (spec §4.4):
// four embedding kinds (content, contextual, hierarchical, semantic)
// computed per chunk against a pluggable Provider, with batching,
// bounded concurrency, retry-with-backoff, LRU caching, and per-vector
// quality checks.
//
// Grounded on pkg/embedder/embedder.go's context-based interface and
// pkg/embedders/openai.go's batching/retry/backoff body, generalized
// from a single flat Embed call into a four-kind contract.
package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/quality"
	"github.com/kadirpekel/ragforge/pkg/ratelimit"
)

// Config configures the embedder (§4.4, §6, §5).
type Config struct {
	Kinds              []ragforge.EmbeddingKind
	BatchSize          int
	Concurrency        int
	MaxBatchBytes      int
	MaxRetries         int
	CacheSize          int
	RequestsPerSecond  float64
	DomainLexicon      []string
	MinVectorMagnitude float64
	MaxVectorMagnitude float64
}

func (c *Config) SetDefaults() {
	if len(c.Kinds) == 0 {
		c.Kinds = []ragforge.EmbeddingKind{ragforge.EmbeddingContent}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = 64 * 1024
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.CacheSize == 0 {
		c.CacheSize = 10000
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 60
	}
	if c.MinVectorMagnitude == 0 {
		c.MinVectorMagnitude = 0.9
	}
	if c.MaxVectorMagnitude == 0 {
		c.MaxVectorMagnitude = 1.1
	}
}

// Embedder is the Multi-Scale Embedder.
type Embedder struct {
	config   Config
	provider Provider
	cache    *Cache
	limiter  *ratelimit.Limiter
	sem      *semaphore.Weighted
	onThrottle func()
}

// New constructs an Embedder. onThrottle, if non-nil, is invoked each
// time the rate limiter has to block a call (wired to the observability
// throttle counter).
func New(cfg Config, provider Provider, onThrottle func()) (*Embedder, error) {
	cfg.SetDefaults()
	cache, err := NewCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Embedder{
		config:     cfg,
		provider:   provider,
		cache:      cache,
		limiter:    ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond, Burst: cfg.Concurrency}, onThrottle),
		sem:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		onThrottle: onThrottle,
	}, nil
}

// EmbedChunks computes every enabled embedding kind for a batch of
// chunks, mutating each chunk's Embeddings map in place. Chunks for
// which every kind fails are returned in the result slice so the caller
// can reject them (§4.4: "if all kinds fail, the chunk is rejected").
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []*ragforge.Chunk, prevSiblingLastSentence map[string]string) ([]*ragforge.Chunk, error) {
	succeeded := make(map[string]int) // chunkId -> count of kinds that succeeded

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range e.config.Kinds {
		kind := kind
		g.Go(func() error {
			return e.embedKind(gctx, kind, chunks, prevSiblingLastSentence, succeeded)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rejected []*ragforge.Chunk
	for _, c := range chunks {
		if succeeded[c.ChunkID] == 0 {
			rejected = append(rejected, c)
		}
	}
	return rejected, nil
}

// embedKind computes one embedding kind across every chunk, batched by
// count and total input bytes (§5 Backpressure), with bounded
// concurrency across batches (§4.4 "≤4 inflight calls").
func (e *Embedder) embedKind(ctx context.Context, kind ragforge.EmbeddingKind, chunks []*ragforge.Chunk, prevSiblingLastSentence map[string]string, succeeded map[string]int) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = inputTextFor(kind, c, prevSiblingLastSentence[c.ChunkID], e.config.DomainLexicon)
	}

	batches := batchByCountAndBytes(chunks, texts, e.config.BatchSize, e.config.MaxBatchBytes)

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range batches {
		b := b
		if err := e.sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer e.sem.Release(1)
			return e.embedBatch(gctx, kind, b, succeeded)
		})
	}
	return g.Wait()
}

type batch struct {
	chunks []*ragforge.Chunk
	texts  []string
}

func batchByCountAndBytes(chunks []*ragforge.Chunk, texts []string, maxCount, maxBytes int) []batch {
	var batches []batch
	var cur batch
	curBytes := 0
	for i := range chunks {
		textLen := len(texts[i])
		if len(cur.chunks) > 0 && (len(cur.chunks) >= maxCount || curBytes+textLen > maxBytes) {
			batches = append(batches, cur)
			cur = batch{}
			curBytes = 0
		}
		cur.chunks = append(cur.chunks, chunks[i])
		cur.texts = append(cur.texts, texts[i])
		curBytes += textLen
	}
	if len(cur.chunks) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// embedBatch resolves cache hits, calls the provider for misses with
// retry-with-backoff-and-jitter, quality-checks every returned vector,
// and writes successes onto the chunk.
func (e *Embedder) embedBatch(ctx context.Context, kind ragforge.EmbeddingKind, b batch, succeeded map[string]int) error {
	vectors := make([][]float32, len(b.chunks))
	var missIdx []int
	var missTexts []string

	for i, text := range b.texts {
		canon := quality.CanonicalizeContent(text)
		key := cacheKey(e.provider.Model(), kind, canon)
		if v, ok := e.cache.Get(key); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		results, err := e.embedWithRetry(ctx, missTexts)
		if err != nil {
			var fatal *ragforge.FatalProviderError
			if !asFatal(err, &fatal) {
				// Cancellation aborts the whole job; a fatal provider
				// error, by contrast, only loses this kind for this
				// batch's chunks — fall through leaving their vectors
				// nil so the quality gate below rejects just this kind.
				return err
			}
		} else {
			for j, idx := range missIdx {
				vectors[idx] = results[j]
				canon := quality.CanonicalizeContent(b.texts[idx])
				e.cache.Put(cacheKey(e.provider.Model(), kind, canon), results[j])
			}
		}
	}

	for i, c := range b.chunks {
		v := vectors[i]
		if !e.passesQualityCheck(v) {
			continue
		}
		c.Embeddings[kind] = v
		succeeded[c.ChunkID]++
	}
	return nil
}

func asFatal(err error, target **ragforge.FatalProviderError) bool {
	fp, ok := err.(*ragforge.FatalProviderError)
	if ok {
		*target = fp
	}
	return ok
}

// embedWithRetry retries transient/rate_limited errors with exponential
// backoff and jitter, up to MaxRetries; invalid_input never retries;
// exhaustion promotes to a FatalProviderError (§4.4, §7).
func (e *Embedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, ragforge.NewCancelled("embedding", err)
		}

		results, err := e.provider.EmbedBatch(ctx, texts)
		if err == nil {
			return results, nil
		}
		lastErr = err

		var transient *ragforge.TransientProviderError
		if !isTransient(err, &transient) || transient.Class == ragforge.ProviderInvalidInput {
			return nil, ragforge.NewFatalProviderError("", "non-retryable provider error", err)
		}

		delay := backoffWithJitter(attempt)
		select {
		case <-ctx.Done():
			return nil, ragforge.NewCancelled("embedding", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, ragforge.NewFatalProviderError("", fmt.Sprintf("exhausted %d retries", e.config.MaxRetries), lastErr)
}

func isTransient(err error, target **ragforge.TransientProviderError) bool {
	tp, ok := err.(*ragforge.TransientProviderError)
	if ok {
		*target = tp
	}
	return ok
}

func backoffWithJitter(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

// passesQualityCheck implements §4.4's per-vector quality gate: correct
// length, all-finite components, normalised magnitude within band.
func (e *Embedder) passesQualityCheck(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	if d := e.provider.Dimension(); d > 0 && len(v) != d {
		return false
	}
	var sumSquares float64
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
		sumSquares += float64(f) * float64(f)
	}
	magnitude := math.Sqrt(sumSquares)
	return magnitude >= e.config.MinVectorMagnitude && magnitude <= e.config.MaxVectorMagnitude
}

// inputTextFor builds the text a given embedding kind actually embeds
// (§4.4 Embedding kinds).
func inputTextFor(kind ragforge.EmbeddingKind, c *ragforge.Chunk, prevSiblingLastSentence string, lexicon []string) string {
	switch kind {
	case ragforge.EmbeddingContent:
		return c.Content
	case ragforge.EmbeddingContextual:
		var b strings.Builder
		if c.Heading != "" {
			b.WriteString(c.Heading)
			b.WriteString("\n")
		}
		if prevSiblingLastSentence != "" {
			b.WriteString(prevSiblingLastSentence)
			b.WriteString("\n")
		}
		b.WriteString(c.Content)
		return b.String()
	case ragforge.EmbeddingHierarchical:
		return strings.Join(c.SectionPath, " > ") + " " + c.Heading
	case ragforge.EmbeddingSemantic:
		keywords := TopKeywords(c.Content, 10)
		terms := DomainTerms(c.Content, lexicon)
		return strings.Join(keywords, " ") + " " + strings.Join(terms, " ")
	default:
		return c.Content
	}
}
