// Package retrieval implements the Hybrid Contextual Retriever (spec
// §4.8): four search strategies fanned out concurrently, merged into a
// blended score, expanded with hierarchical/semantic context, reordered
// to fight lost-in-the-middle, filtered for source/page diversity, and
// degraded gracefully when a strategy fails.
//
// Grounded on pkg/rag/factory.go's NewSearchEngineFromConfig wiring
// shape (assemble several searchers behind one facade) and
// pkg/context/reranking/reranker.go's score-reassignment texture. The
// four-strategy fan-out uses a plain sync.WaitGroup and a results
// channel rather than golang.org/x/sync/errgroup: errgroup's
// WithContext cancels every sibling call on the first error, which
// would defeat §4.8's per-strategy degrade-don't-abort fallback — each
// strategy must finish and report independently.
package retrieval

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/query"
)

// Strategy tags identifying which searcher contributed a score component
// (§4.8 "Observable output: ... the strategy that contributed the
// largest component").
const (
	StrategyVectorOnly  = "vector_content"
	StrategyLexical     = "lexical"
	StrategyMultiScale  = "multiscale_"
	StrategyContextual  = "contextual_filtered"
	StrategyFallback    = "fallback_vector_content"
	StrategyDegradedLex = "fallback_lexical"
)

// ChunkStore is the subset of *pkg/store.Store the retriever consumes.
// Declared here, narrowed to what this package actually calls, so tests
// can substitute a fake without importing the sqlite/bleve backing
// store.
type ChunkStore interface {
	SearchByVector(ctx context.Context, kind ragforge.EmbeddingKind, vector []float32, k int) ([]ragforge.VectorMatch, error)
	SearchByText(ctx context.Context, queryText string, k int) ([]ragforge.LexicalMatch, error)
	GetChunk(ctx context.Context, chunkID string) (*ragforge.Chunk, error)
	GetChildren(ctx context.Context, chunkID string) ([]*ragforge.Chunk, error)
	GetParent(ctx context.Context, chunkID string) (*ragforge.Chunk, error)
	GetSiblings(ctx context.Context, chunkID string) ([]*ragforge.Chunk, error)
}

// Embedder is the subset of pkg/embedding.Provider the retriever needs
// to compute query vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Filters restrict which chunks a query may match (§4.8 "optional
// filters").
type Filters struct {
	SourceID    string
	Scale       ragforge.Scale
	ContentType ragforge.ContentType
}

// ScoreWeights are the blended-score coefficients (§4.8). Must sum to 1
// for the blended score to stay in [0,1] without clamping away signal.
type ScoreWeights struct {
	VectorSimilarity    float64
	ContentTypeMatch    float64
	InstructionalValue  float64
	QualityScore        float64
	ContextualRelevance float64
}

// Config tunes the retriever (§4.8, §6).
type Config struct {
	K                     int
	K1Multiplier          int
	MultiScaleKinds       []ragforge.EmbeddingKind
	HierarchicalExpansion bool
	SemanticExpansion     bool
	MaxExpansionChunks    int
	MaxChunksPerSource    int
	MaxChunksPerPage      int

	// Weights overrides the §4.8 blended-score coefficients. Zero value
	// falls back to the fixed 0.40/0.25/0.20/0.10/0.05 split.
	Weights ScoreWeights

	// ContentTypeMatrix overrides the §4.8 queryType x contentType
	// multiplier table. Nil falls back to the built-in table.
	ContentTypeMatrix map[ragforge.QueryType]map[ragforge.ContentType]float64
}

func (c *Config) SetDefaults() {
	if c.K == 0 {
		c.K = 10
	}
	if c.K1Multiplier == 0 {
		c.K1Multiplier = 2
	}
	if len(c.MultiScaleKinds) == 0 {
		c.MultiScaleKinds = []ragforge.EmbeddingKind{
			ragforge.EmbeddingContextual, ragforge.EmbeddingHierarchical, ragforge.EmbeddingSemantic,
		}
	}
	if c.MaxExpansionChunks == 0 {
		c.MaxExpansionChunks = 2
	}
	if c.MaxChunksPerSource == 0 {
		c.MaxChunksPerSource = 3
	}
	if c.MaxChunksPerPage == 0 {
		c.MaxChunksPerPage = 2
	}
	if (c.Weights == ScoreWeights{}) {
		c.Weights = defaultScoreWeights
	}
	if c.ContentTypeMatrix == nil {
		c.ContentTypeMatrix = contentTypeMatrix
	}
}

// defaultScoreWeights is the fixed blended-score split (§4.8).
var defaultScoreWeights = ScoreWeights{
	VectorSimilarity:    0.40,
	ContentTypeMatch:    0.25,
	InstructionalValue:  0.20,
	QualityScore:        0.10,
	ContextualRelevance: 0.05,
}

// contentTypeMatrix is the fixed queryType x contentType multiplier
// table (§4.8).
var contentTypeMatrix = map[ragforge.QueryType]map[ragforge.ContentType]float64{
	ragforge.QueryProcedure: {
		ragforge.ContentInstructions: 1.50, ragforge.ContentExamples: 1.20, ragforge.ContentDefinitions: 0.80,
		ragforge.ContentTableOfContents: 0.20, ragforge.ContentFAQ: 0.70, ragforge.ContentText: 0.90,
	},
	ragforge.QueryDefinition: {
		ragforge.ContentInstructions: 0.40, ragforge.ContentExamples: 0.30, ragforge.ContentDefinitions: 1.50,
		ragforge.ContentTableOfContents: 0.10, ragforge.ContentFAQ: 0.60, ragforge.ContentText: 0.70,
	},
	ragforge.QueryList: {
		ragforge.ContentInstructions: 1.10, ragforge.ContentExamples: 0.90, ragforge.ContentDefinitions: 0.60,
		ragforge.ContentTableOfContents: 0.30, ragforge.ContentFAQ: 0.70, ragforge.ContentText: 0.80,
	},
	ragforge.QueryTroubleshoot: {
		ragforge.ContentInstructions: 1.20, ragforge.ContentExamples: 0.80, ragforge.ContentDefinitions: 0.50,
		ragforge.ContentTableOfContents: 0.20, ragforge.ContentFAQ: 1.10, ragforge.ContentText: 0.90,
	},
	ragforge.QueryGeneral: {
		ragforge.ContentInstructions: 0.90, ragforge.ContentExamples: 0.80, ragforge.ContentDefinitions: 0.80,
		ragforge.ContentTableOfContents: 0.40, ragforge.ContentFAQ: 0.90, ragforge.ContentText: 1.00,
	},
}

// preferredContentType picks the filter-eligible content type a classified
// query type prefers, used to build the Contextual (filtered) strategy
// (§4.8 point 4: "e.g. procedure prefers contentType = instructions").
var preferredContentType = map[ragforge.QueryType]ragforge.ContentType{
	ragforge.QueryProcedure:    ragforge.ContentInstructions,
	ragforge.QueryDefinition:   ragforge.ContentDefinitions,
	ragforge.QueryList:         ragforge.ContentInstructions,
	ragforge.QueryTroubleshoot: ragforge.ContentFAQ,
}

// Response is the retriever's output (§4.8 Observable output), extended
// with the degraded-mode signal §4.8's Fallback rule calls for.
type Response struct {
	Items    []ragforge.QueryResultItem
	Degraded bool
	Warning  string
}

// Retriever is the Hybrid Contextual Retriever (§4.8).
type Retriever struct {
	store    ChunkStore
	embedder Embedder
	config   Config
}

// New constructs a Retriever.
func New(store ChunkStore, embedder Embedder, cfg Config) *Retriever {
	cfg.SetDefaults()
	return &Retriever{store: store, embedder: embedder, config: cfg}
}

// candidate accumulates the strategy contributions for one chunk before
// the blended score is computed.
type candidate struct {
	chunk        *ragforge.Chunk
	vectorSim    float64 // max raw similarity across vector/lexical/contextual strategies
	contextual   float64 // raw score from the multiscale "contextual" kind specifically
	bestStrategy string
	bestScore    float64
}

// Query runs every strategy, blends and reorders the results, and
// returns at most config.K items (§4.8).
func (r *Retriever) Query(ctx context.Context, queryText string, filters Filters) (*Response, error) {
	queryType := query.Classify(queryText)
	k1 := r.config.K * r.config.K1Multiplier

	queryVectors, embedErr := r.embedQuery(ctx, queryText)
	if embedErr != nil {
		// Embedding provider unavailable: degrade to lexical-only (§4.8
		// Fallback, second sentence).
		return r.lexicalOnly(ctx, queryText, k1, queryType)
	}

	type strategyResult struct {
		name    string
		matches []ragforge.VectorMatch
		err     error
	}
	results := make(chan strategyResult, 2+len(r.config.MultiScaleKinds))

	var wg sync.WaitGroup
	runVector := func(name string, kind ragforge.EmbeddingKind, vec []float32, limit int) {
		defer wg.Done()
		matches, err := r.store.SearchByVector(ctx, kind, vec, limit)
		results <- strategyResult{name: name, matches: matches, err: err}
	}

	wg.Add(1)
	go runVector(StrategyVectorOnly, ragforge.EmbeddingContent, queryVectors[ragforge.EmbeddingContent], k1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		lex, err := r.store.SearchByText(ctx, queryText, k1)
		lm := make([]ragforge.VectorMatch, len(lex))
		for i, l := range lex {
			lm[i] = ragforge.VectorMatch{ChunkID: l.ChunkID, Score: normalizeLexicalScore(l.Score)}
		}
		results <- strategyResult{name: StrategyLexical, matches: lm, err: err}
	}()

	for _, kind := range r.config.MultiScaleKinds {
		kind := kind
		if vec, ok := queryVectors[kind]; ok {
			wg.Add(1)
			go runVector(StrategyMultiScale+string(kind), kind, vec, k1)
		}
	}

	_, hasContextualStrategy := preferredContentType[queryType]
	if hasContextualStrategy {
		wg.Add(1)
		go runVector(StrategyContextual, ragforge.EmbeddingContent, queryVectors[ragforge.EmbeddingContent], k1)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	strategyMatches := make(map[string][]ragforge.VectorMatch)
	var anyErr error
	for res := range results {
		if res.err != nil {
			anyErr = res.err
			continue
		}
		strategyMatches[res.name] = res.matches
	}

	chunkCache := make(map[string]*ragforge.Chunk)
	candidates, err := r.buildCandidates(ctx, strategyMatches, chunkCache, queryType)
	if err != nil {
		return nil, ragforge.NewQueryError(queryText, "failed to fetch candidate chunks", err)
	}
	candidates = applyFilters(candidates, filters)

	if anyErr != nil || len(candidates) == 0 {
		return r.vectorOnlyFallback(ctx, queryVectors[ragforge.EmbeddingContent], k1, queryText)
	}

	items := r.blendAndRank(candidates, queryType)
	items = r.expand(ctx, items, chunkCache)
	items = lostInMiddleReorder(items)
	items = r.diversityFilter(items)
	if len(items) > r.config.K {
		items = items[:r.config.K]
	}

	return &Response{Items: items}, nil
}

// embedQuery computes one query vector per enabled kind, using raw
// query text for every kind except semantic, where the query's own
// extracted keywords mirror how the semantic chunk embedding itself is
// built (§4.4), for a closer match in that subspace.
func (r *Retriever) embedQuery(ctx context.Context, queryText string) (map[ragforge.EmbeddingKind][]float32, error) {
	kinds := append([]ragforge.EmbeddingKind{ragforge.EmbeddingContent}, r.config.MultiScaleKinds...)
	texts := make([]string, len(kinds))
	for i, kind := range kinds {
		if kind == ragforge.EmbeddingSemantic {
			texts[i] = strings.Join(query.Keywords(queryText), " ")
		} else {
			texts[i] = queryText
		}
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make(map[ragforge.EmbeddingKind][]float32, len(kinds))
	for i, kind := range kinds {
		out[kind] = vectors[i]
	}
	return out, nil
}

func (r *Retriever) buildCandidates(ctx context.Context, strategyMatches map[string][]ragforge.VectorMatch, cache map[string]*ragforge.Chunk, queryType ragforge.QueryType) ([]*candidate, error) {
	preferred, restrictContextual := preferredContentType[queryType]

	byChunk := make(map[string]*candidate)
	for strategy, matches := range strategyMatches {
		for _, m := range matches {
			chunk, ok := cache[m.ChunkID]
			if !ok {
				var err error
				chunk, err = r.store.GetChunk(ctx, m.ChunkID)
				if err != nil {
					continue // chunk may have been deleted since the index was built
				}
				cache[m.ChunkID] = chunk
			}

			if strategy == StrategyContextual && restrictContextual && chunk.ContentType != preferred {
				continue
			}

			c, ok := byChunk[m.ChunkID]
			if !ok {
				c = &candidate{chunk: chunk}
				byChunk[m.ChunkID] = c
			}
			if m.Score > c.vectorSim {
				c.vectorSim = m.Score
			}
			if m.Score > c.bestScore {
				c.bestScore = m.Score
				c.bestStrategy = strategy
			}
			if strategy == StrategyMultiScale+string(ragforge.EmbeddingContextual) {
				c.contextual = m.Score
			}
		}
	}
	out := make([]*candidate, 0, len(byChunk))
	for _, c := range byChunk {
		out = append(out, c)
	}
	return out, nil
}

func applyFilters(candidates []*candidate, filters Filters) []*candidate {
	if filters.SourceID == "" && filters.Scale == "" && filters.ContentType == "" {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if filters.SourceID != "" && c.chunk.SourceID != filters.SourceID {
			continue
		}
		if filters.Scale != "" && c.chunk.Scale != filters.Scale {
			continue
		}
		if filters.ContentType != "" && c.chunk.ContentType != filters.ContentType {
			continue
		}
		out = append(out, c)
	}
	return out
}

// blendAndRank computes the §4.8 blended score for every candidate and
// returns them sorted descending.
func (r *Retriever) blendAndRank(candidates []*candidate, queryType ragforge.QueryType) []ragforge.QueryResultItem {
	matrix := r.config.ContentTypeMatrix[queryType]
	w := r.config.Weights

	items := make([]ragforge.QueryResultItem, 0, len(candidates))
	for _, c := range candidates {
		contentMatch := matrix[c.chunk.ContentType]
		score := w.VectorSimilarity*c.vectorSim + w.ContentTypeMatch*contentMatch + w.InstructionalValue*c.chunk.InstructionalValue +
			w.QualityScore*c.chunk.QualityScore + w.ContextualRelevance*c.contextual
		score = clamp01(score)

		items = append(items, ragforge.QueryResultItem{
			ChunkID:        c.chunk.ChunkID,
			RetrievalScore: score,
			Strategy:       c.bestStrategy,
			Citation:       citationFor(c.chunk),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].RetrievalScore > items[j].RetrievalScore })
	return items
}

func citationFor(c *ragforge.Chunk) ragforge.Citation {
	return ragforge.Citation{
		SourceID: c.SourceID, Version: c.Version, Heading: c.Heading,
		SectionPath: c.SectionPath, PageNumber: c.PageNumber,
	}
}

// diversityFilter caps per-source and per-page representation, dropping
// the lowest-scoring violators first (§4.8 Diversity filter). Runs after
// lostInMiddleReorder, so which items to drop is decided by a
// score-descending pass over a copy, not by items' positional order; the
// caller's ordering (the lost-in-middle permutation) is preserved in the
// output for whatever survives.
func (r *Retriever) diversityFilter(items []ragforge.QueryResultItem) []ragforge.QueryResultItem {
	byScore := make([]ragforge.QueryResultItem, len(items))
	copy(byScore, items)
	sort.Slice(byScore, func(i, j int) bool { return byScore[i].RetrievalScore > byScore[j].RetrievalScore })

	perSource := make(map[string]int)
	perPage := make(map[string]int)
	keep := make(map[string]struct{}, len(items))
	for _, item := range byScore {
		if perSource[item.Citation.SourceID] >= r.config.MaxChunksPerSource {
			continue
		}
		pageKey := item.Citation.SourceID + "#" + strconv.Itoa(item.Citation.PageNumber)
		if item.Citation.PageNumber > 0 && perPage[pageKey] >= r.config.MaxChunksPerPage {
			continue
		}
		perSource[item.Citation.SourceID]++
		if item.Citation.PageNumber > 0 {
			perPage[pageKey]++
		}
		keep[item.ChunkID] = struct{}{}
	}

	out := make([]ragforge.QueryResultItem, 0, len(keep))
	for _, item := range items {
		if _, ok := keep[item.ChunkID]; ok {
			out = append(out, item)
		}
	}
	return out
}

// expand adds each surviving item's parent/children (hierarchical) and
// nearest siblings (semantic) per §4.8 Context expansion, scored just
// under the chunk that earned the expansion so the originals remain
// ranked first.
func (r *Retriever) expand(ctx context.Context, items []ragforge.QueryResultItem, cache map[string]*ragforge.Chunk) []ragforge.QueryResultItem {
	if !r.config.HierarchicalExpansion && !r.config.SemanticExpansion {
		return items
	}

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[it.ChunkID] = struct{}{}
	}

	var expansions []ragforge.QueryResultItem
	for _, it := range items {
		childScore := it.RetrievalScore * 0.9

		if r.config.HierarchicalExpansion {
			if parent, err := r.store.GetParent(ctx, it.ChunkID); err == nil && parent != nil {
				if _, dup := seen[parent.ChunkID]; !dup {
					seen[parent.ChunkID] = struct{}{}
					cache[parent.ChunkID] = parent
					expansions = append(expansions, ragforge.QueryResultItem{
						ChunkID: parent.ChunkID, RetrievalScore: childScore, Strategy: "expansion_parent",
						Citation: citationFor(parent),
					})
				}
			}
			if children, err := r.store.GetChildren(ctx, it.ChunkID); err == nil {
				for i, child := range children {
					if i >= 2 {
						break
					}
					if _, dup := seen[child.ChunkID]; dup {
						continue
					}
					seen[child.ChunkID] = struct{}{}
					cache[child.ChunkID] = child
					expansions = append(expansions, ragforge.QueryResultItem{
						ChunkID: child.ChunkID, RetrievalScore: childScore, Strategy: "expansion_child",
						Citation: citationFor(child),
					})
				}
			}
		}

		if r.config.SemanticExpansion {
			if siblings, err := r.store.GetSiblings(ctx, it.ChunkID); err == nil {
				added := 0
				for _, sib := range siblings {
					if added >= r.config.MaxExpansionChunks {
						break
					}
					if _, dup := seen[sib.ChunkID]; dup {
						continue
					}
					seen[sib.ChunkID] = struct{}{}
					cache[sib.ChunkID] = sib
					expansions = append(expansions, ragforge.QueryResultItem{
						ChunkID: sib.ChunkID, RetrievalScore: childScore, Strategy: "expansion_sibling",
						Citation: citationFor(sib),
					})
					added++
				}
			}
		}
	}

	return append(items, expansions...)
}

// lostInMiddleReorder places the two highest-scoring items at the first
// and last position, interleaving the rest alternating high/low (§4.8
// Lost-in-middle mitigation).
func lostInMiddleReorder(items []ragforge.QueryResultItem) []ragforge.QueryResultItem {
	if len(items) <= 2 {
		return items
	}
	sorted := make([]ragforge.QueryResultItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RetrievalScore > sorted[j].RetrievalScore })

	out := make([]ragforge.QueryResultItem, len(sorted))
	out[0] = sorted[0]
	out[len(out)-1] = sorted[1]

	lo, hi := 2, len(sorted)-1
	nextIsHigh := true
	for pos := 1; pos < len(out)-1; pos++ {
		if nextIsHigh && lo <= hi {
			out[pos] = sorted[lo]
			lo++
		} else if hi >= lo {
			out[pos] = sorted[hi]
			hi--
		} else {
			out[pos] = sorted[lo]
			lo++
		}
		nextIsHigh = !nextIsHigh
	}
	return out
}

// vectorOnlyFallback implements §4.8 Fallback's first sentence: if a
// strategy errors or the blended list is empty, return up to k items
// from a plain VectorOnly search over the content kind.
func (r *Retriever) vectorOnlyFallback(ctx context.Context, contentVector []float32, k int, queryText string) (*Response, error) {
	matches, err := r.store.SearchByVector(ctx, ragforge.EmbeddingContent, contentVector, k)
	if err != nil {
		return r.lexicalOnly(ctx, queryText, k, ragforge.QueryGeneral)
	}
	items := make([]ragforge.QueryResultItem, 0, len(matches))
	for _, m := range matches {
		chunk, err := r.store.GetChunk(ctx, m.ChunkID)
		if err != nil {
			continue
		}
		items = append(items, ragforge.QueryResultItem{
			ChunkID: m.ChunkID, RetrievalScore: m.Score, Strategy: StrategyFallback, Citation: citationFor(chunk),
		})
	}
	if len(items) > r.config.K {
		items = items[:r.config.K]
	}
	return &Response{Items: items, Degraded: true, Warning: "one or more retrieval strategies failed; degraded to vector-only"}, nil
}

// lexicalOnly implements §4.8 Fallback's second sentence: if the
// embedding provider itself is unavailable, degrade to lexical-only.
func (r *Retriever) lexicalOnly(ctx context.Context, queryText string, k int, _ ragforge.QueryType) (*Response, error) {
	matches, err := r.store.SearchByText(ctx, queryText, k)
	if err != nil {
		return nil, ragforge.NewQueryError(queryText, "lexical fallback search failed", err)
	}
	items := make([]ragforge.QueryResultItem, 0, len(matches))
	for _, m := range matches {
		chunk, err := r.store.GetChunk(ctx, m.ChunkID)
		if err != nil {
			continue
		}
		items = append(items, ragforge.QueryResultItem{
			ChunkID: m.ChunkID, RetrievalScore: normalizeLexicalScore(m.Score), Strategy: StrategyDegradedLex, Citation: citationFor(chunk),
		})
	}
	if len(items) > r.config.K {
		items = items[:r.config.K]
	}
	return &Response{Items: items, Degraded: true, Warning: "embedding provider unavailable; degraded to lexical-only"}, nil
}

// normalizeLexicalScore squashes an unbounded BM25 score into [0,1] so
// it composes with cosine-similarity components in the blended formula.
func normalizeLexicalScore(bm25 float64) float64 {
	return bm25 / (bm25 + 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

