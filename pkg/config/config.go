// Package config defines ragforge's configuration surface and the
// load/validate pipeline around it: SetDefaults()/Validate() cascades per
// sub-config, strict unknown-key rejection at startup, and a koanf-backed
// YAML file loader.
package config

import "fmt"

// Config is the complete, closed configuration surface named in §6 of the
// spec: no other options are honoured, and ValidateConfigStructure rejects
// anything not represented here.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger,omitempty"`
	Quality    QualityConfig    `yaml:"quality,omitempty"`
	Chunking   ChunkingConfig   `yaml:"chunking,omitempty"`
	Embedding  EmbeddingConfig  `yaml:"embedding,omitempty"`
	Retrieval  RetrievalConfig  `yaml:"retrieval,omitempty"`
	Concurrency ConcurrencyConfig `yaml:"concurrency,omitempty"`
	Store      StoreConfig      `yaml:"store,omitempty"`
}

// SetDefaults cascades defaults through every sub-config.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Quality.SetDefaults()
	c.Chunking.SetDefaults()
	c.Embedding.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Concurrency.SetDefaults()
	c.Store.SetDefaults()
}

// Validate cascades validation through every sub-config, short-circuiting
// on the first failure so the caller sees one actionable error at a time.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("config: logger: %w", err)
	}
	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("config: quality: %w", err)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("config: chunking: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("config: embedding: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("config: retrieval: %w", err)
	}
	if err := c.Concurrency.Validate(); err != nil {
		return fmt.Errorf("config: concurrency: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("config: store: %w", err)
	}
	return nil
}

// DefaultConfig returns a Config with every field defaulted, matching the
// values given in spec §6.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// QualityConfig holds the quality thresholds from §6/§4.6.
type QualityConfig struct {
	MinChunkQuality     float64 `yaml:"min_chunk_quality,omitempty"`
	MinEmbeddingQuality float64 `yaml:"min_embedding_quality,omitempty"`
	MinOverallQuality   float64 `yaml:"min_overall_quality,omitempty"`
	MaxDuplicateThreshold float64 `yaml:"max_duplicate_threshold,omitempty"`
}

func (c *QualityConfig) SetDefaults() {
	if c.MinChunkQuality == 0 {
		c.MinChunkQuality = 0.4
	}
	if c.MinEmbeddingQuality == 0 {
		c.MinEmbeddingQuality = 0.6
	}
	if c.MinOverallQuality == 0 {
		c.MinOverallQuality = 0.5
	}
	if c.MaxDuplicateThreshold == 0 {
		c.MaxDuplicateThreshold = 0.9
	}
}

func (c *QualityConfig) Validate() error {
	for name, v := range map[string]float64{
		"min_chunk_quality":     c.MinChunkQuality,
		"min_embedding_quality": c.MinEmbeddingQuality,
		"min_overall_quality":   c.MinOverallQuality,
		"max_duplicate_threshold": c.MaxDuplicateThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", name, v)
		}
	}
	return nil
}

// ScaleBand is the target token-count band for one chunk scale (§3).
type ScaleBand struct {
	Min int `yaml:"min,omitempty"`
	Max int `yaml:"max,omitempty"`
}

// ChunkingConfig configures the HierarchicalChunker (§4.3, §6).
type ChunkingConfig struct {
	DocumentBand  ScaleBand `yaml:"document_band,omitempty"`
	SectionBand   ScaleBand `yaml:"section_band,omitempty"`
	ParagraphBand ScaleBand `yaml:"paragraph_band,omitempty"`
	SentenceBand  ScaleBand `yaml:"sentence_band,omitempty"`

	HardMinTokens int `yaml:"hard_min_tokens,omitempty"`
	HardMaxTokens int `yaml:"hard_max_tokens,omitempty"`

	SentenceSimilarityThreshold float64 `yaml:"sentence_similarity_threshold,omitempty"`
}

func (c *ChunkingConfig) SetDefaults() {
	if c.DocumentBand == (ScaleBand{}) {
		c.DocumentBand = ScaleBand{Min: 4000, Max: 8000}
	}
	if c.SectionBand == (ScaleBand{}) {
		c.SectionBand = ScaleBand{Min: 500, Max: 2000}
	}
	if c.ParagraphBand == (ScaleBand{}) {
		c.ParagraphBand = ScaleBand{Min: 100, Max: 500}
	}
	if c.SentenceBand == (ScaleBand{}) {
		c.SentenceBand = ScaleBand{Min: 20, Max: 150}
	}
	if c.HardMinTokens == 0 {
		c.HardMinTokens = 20
	}
	if c.HardMaxTokens == 0 {
		c.HardMaxTokens = 10000
	}
	if c.SentenceSimilarityThreshold == 0 {
		c.SentenceSimilarityThreshold = 0.3
	}
}

func (c *ChunkingConfig) Validate() error {
	bands := map[string]ScaleBand{
		"document_band":  c.DocumentBand,
		"section_band":   c.SectionBand,
		"paragraph_band": c.ParagraphBand,
		"sentence_band":  c.SentenceBand,
	}
	for name, b := range bands {
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("%s must satisfy 0 <= min <= max, got [%d,%d]", name, b.Min, b.Max)
		}
		if b.Min < c.HardMinTokens || b.Max > c.HardMaxTokens {
			return fmt.Errorf("%s [%d,%d] must fall within hard bounds [%d,%d]", name, b.Min, b.Max, c.HardMinTokens, c.HardMaxTokens)
		}
	}
	if c.SentenceSimilarityThreshold < 0 || c.SentenceSimilarityThreshold > 1 {
		return fmt.Errorf("sentence_similarity_threshold must be in [0,1]")
	}
	return nil
}

// EmbeddingConfig configures the Multi-Scale Embedder (§4.4, §6).
type EmbeddingConfig struct {
	EnabledKinds []string `yaml:"enabled_kinds,omitempty"`
	BatchSize    int      `yaml:"batch_size,omitempty"`
	Concurrency  int      `yaml:"concurrency,omitempty"`
	MaxBatchBytes int     `yaml:"max_batch_bytes,omitempty"`
	MaxRetries   int      `yaml:"max_retries,omitempty"`
	CacheSize    int      `yaml:"cache_size,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	DomainLexicon []string `yaml:"domain_lexicon,omitempty"`
}

func (c *EmbeddingConfig) SetDefaults() {
	if len(c.EnabledKinds) == 0 {
		c.EnabledKinds = []string{"content", "contextual", "hierarchical", "semantic"}
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
}

var validEmbeddingKinds = map[string]bool{"content": true, "contextual": true, "hierarchical": true, "semantic": true}

func (c *EmbeddingConfig) Validate() error {
	if len(c.EnabledKinds) == 0 {
		return fmt.Errorf("at least one embedding kind must be enabled")
	}
	for _, k := range c.EnabledKinds {
		if !validEmbeddingKinds[k] {
			return fmt.Errorf("unknown embedding kind %q", k)
		}
	}
	if c.BatchSize <= 0 || c.Concurrency <= 0 {
		return fmt.Errorf("batch_size and concurrency must be positive")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	return nil
}

// RetrievalConfig configures the Hybrid Contextual Retriever (§4.8, §6).
type RetrievalConfig struct {
	Weights             ScoreWeights      `yaml:"weights,omitempty"`
	ContentTypeMatrix    map[string]map[string]float64 `yaml:"content_type_matrix,omitempty"`
	HierarchicalExpansion bool             `yaml:"hierarchical_expansion,omitempty"`
	SemanticExpansion    bool              `yaml:"semantic_expansion,omitempty"`
	MaxExpansionChunks   int               `yaml:"max_expansion_chunks,omitempty"`
	LostInMiddleMitigation bool            `yaml:"lost_in_middle_mitigation,omitempty"`
	MaxChunksPerSource   int               `yaml:"max_chunks_per_source,omitempty"`
	MaxChunksPerPage     int               `yaml:"max_chunks_per_page,omitempty"`
}

// ScoreWeights are the blended-score component weights (§4.8). They must
// sum to 1.0 within tolerance.
type ScoreWeights struct {
	VectorSimilarity   float64 `yaml:"vector_similarity,omitempty"`
	ContentTypeMatch   float64 `yaml:"content_type_match,omitempty"`
	InstructionalValue float64 `yaml:"instructional_value,omitempty"`
	QualityScore       float64 `yaml:"quality_score,omitempty"`
	ContextualRelevance float64 `yaml:"contextual_relevance,omitempty"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.Weights == (ScoreWeights{}) {
		c.Weights = ScoreWeights{
			VectorSimilarity:    0.40,
			ContentTypeMatch:    0.25,
			InstructionalValue:  0.20,
			QualityScore:        0.10,
			ContextualRelevance: 0.05,
		}
	}
	if c.ContentTypeMatrix == nil {
		c.ContentTypeMatrix = defaultContentTypeMatrix()
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
}

func defaultContentTypeMatrix() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"procedure":     {"instructions": 1.50, "examples": 1.20, "definitions": 0.80, "tableOfContents": 0.20, "faq": 0.70, "text": 0.90},
		"definition":    {"instructions": 0.40, "examples": 0.30, "definitions": 1.50, "tableOfContents": 0.10, "faq": 0.60, "text": 0.70},
		"list":          {"instructions": 1.10, "examples": 0.90, "definitions": 0.60, "tableOfContents": 0.30, "faq": 0.70, "text": 0.80},
		"troubleshoot":  {"instructions": 1.20, "examples": 0.80, "definitions": 0.50, "tableOfContents": 0.20, "faq": 1.10, "text": 0.90},
		"general":       {"instructions": 0.90, "examples": 0.80, "definitions": 0.80, "tableOfContents": 0.40, "faq": 0.90, "text": 1.00},
	}
}

func (c *RetrievalConfig) Validate() error {
	sum := c.Weights.VectorSimilarity + c.Weights.ContentTypeMatch + c.Weights.InstructionalValue + c.Weights.QualityScore + c.Weights.ContextualRelevance
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %f", sum)
	}
	if c.MaxChunksPerSource <= 0 || c.MaxChunksPerPage <= 0 {
		return fmt.Errorf("max_chunks_per_source and max_chunks_per_page must be positive")
	}
	return nil
}

// ConcurrencyConfig configures the job scheduling/resource model (§5, §6).
type ConcurrencyConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs,omitempty"`
	ChannelCapacity   int `yaml:"channel_capacity,omitempty"`

	IngestionTimeoutSeconds int `yaml:"ingestion_timeout_seconds,omitempty"`
	EmbeddingTimeoutSeconds int `yaml:"embedding_timeout_seconds,omitempty"`
	RetrievalTimeoutSeconds int `yaml:"retrieval_timeout_seconds,omitempty"`
}

func (c *ConcurrencyConfig) SetDefaults() {
	if c.MaxConcurrentJobs == 0 {
		c.MaxConcurrentJobs = 5
	}
	if c.ChannelCapacity == 0 {
		c.ChannelCapacity = 32
	}
	if c.IngestionTimeoutSeconds == 0 {
		c.IngestionTimeoutSeconds = 120
	}
	if c.EmbeddingTimeoutSeconds == 0 {
		c.EmbeddingTimeoutSeconds = 30
	}
	if c.RetrievalTimeoutSeconds == 0 {
		c.RetrievalTimeoutSeconds = 5
	}
}

func (c *ConcurrencyConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.ChannelCapacity <= 0 {
		return fmt.Errorf("max_concurrent_jobs and channel_capacity must be positive")
	}
	return nil
}

// StoreConfig configures the Chunk Store's backends (§4.5, §6).
type StoreConfig struct {
	// DataDir holds the SQLite database and the bleve index. Vector
	// indexes are not written there.
	DataDir string `yaml:"data_dir,omitempty"`
	// VectorBackend selects the VectorIndex implementation: "hnsw" (default,
	// embedded, in memory), "chromem" (embedded, in memory; no persist
	// path is passed to it), or "qdrant" (remote).
	VectorBackend string `yaml:"vector_backend,omitempty"`
	QdrantAddr    string `yaml:"qdrant_addr,omitempty"`
}

func (c *StoreConfig) SetDefaults() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.VectorBackend == "" {
		c.VectorBackend = "hnsw"
	}
}

func (c *StoreConfig) Validate() error {
	switch c.VectorBackend {
	case "hnsw", "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector_backend %q", c.VectorBackend)
	}
	if c.VectorBackend == "qdrant" && c.QdrantAddr == "" {
		return fmt.Errorf("qdrant_addr is required when vector_backend is qdrant")
	}
	return nil
}
