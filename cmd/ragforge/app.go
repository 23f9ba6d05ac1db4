package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/chunker"
	"github.com/kadirpekel/ragforge/pkg/config"
	"github.com/kadirpekel/ragforge/pkg/detector"
	"github.com/kadirpekel/ragforge/pkg/embedding"
	"github.com/kadirpekel/ragforge/pkg/ingest"
	"github.com/kadirpekel/ragforge/pkg/observability"
	"github.com/kadirpekel/ragforge/pkg/quality"
	"github.com/kadirpekel/ragforge/pkg/retrieval"
	"github.com/kadirpekel/ragforge/pkg/store"
	"github.com/kadirpekel/ragforge/pkg/structure"
	"github.com/kadirpekel/ragforge/pkg/utils"
	"github.com/kadirpekel/ragforge/pkg/vectorindex"
)

// app bundles every wired component a subcommand needs. Built once per
// invocation by loadApp, closed by the caller when done.
//
// Grounded on cmd/hector/config_loader.go's "single source of truth for
// config loading" shape, generalized from one LLM-agent config into the
// full component graph this module's pipelines need.
type app struct {
	cfg              *config.Config
	logger           *slog.Logger
	obs              *observability.Manager
	store            *store.Store
	ingest           *ingest.Pipeline
	retrieve         *retrieval.Retriever
	retrievalTimeout time.Duration
}

// loadApp loads and validates configuration from path, then constructs
// every component: structure → chunking → embedding → validation →
// persistence for the ingest pipeline, plus the hybrid retriever sharing
// the same store.
func loadApp(ctx context.Context, path string) (*app, error) {
	cfg, err := loadConfigFromFileOrDefaults(path)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Logger.BuildLogger()
	if err != nil {
		return nil, fmt.Errorf("ragforge: failed to build logger: %w", err)
	}

	obs, err := observability.NewManager(ctx, &observability.Config{}, logger)
	if err != nil {
		return nil, fmt.Errorf("ragforge: failed to init observability: %w", err)
	}

	provider, err := embeddingProviderFromEnv(cfg)
	if err != nil {
		return nil, err
	}

	metrics := obs.Metrics()
	var onThrottle func()
	if metrics != nil {
		onThrottle = func() { metrics.RateLimitThrottled.Inc() }
	}

	embedder, err := embedding.New(embedding.Config{
		Kinds:             enabledKinds(cfg.Embedding.EnabledKinds),
		BatchSize:         cfg.Embedding.BatchSize,
		Concurrency:       cfg.Embedding.Concurrency,
		MaxBatchBytes:     cfg.Embedding.MaxBatchBytes,
		MaxRetries:        cfg.Embedding.MaxRetries,
		CacheSize:         cfg.Embedding.CacheSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		DomainLexicon:     cfg.Embedding.DomainLexicon,
	}, provider, onThrottle)
	if err != nil {
		return nil, fmt.Errorf("ragforge: failed to build embedder: %w", err)
	}

	tokens, err := utils.NewTokenCounter("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("ragforge: failed to build token counter: %w", err)
	}

	det := detector.New(detector.Config{}, nil)
	analyzer := structure.New()
	ck := chunker.New(chunker.Config{
		DocumentBand:  chunker.Band{TargetMin: cfg.Chunking.DocumentBand.Min, TargetMax: cfg.Chunking.DocumentBand.Max},
		SectionBand:   chunker.Band{TargetMin: cfg.Chunking.SectionBand.Min, TargetMax: cfg.Chunking.SectionBand.Max},
		ParagraphBand: chunker.Band{TargetMin: cfg.Chunking.ParagraphBand.Min, TargetMax: cfg.Chunking.ParagraphBand.Max},
		SentenceBand:  chunker.Band{TargetMin: cfg.Chunking.SentenceBand.Min, TargetMax: cfg.Chunking.SentenceBand.Max},
		HardMinTokens: cfg.Chunking.HardMinTokens,
		HardMaxTokens: cfg.Chunking.HardMaxTokens,
		SentenceSimilarityThreshold: cfg.Chunking.SentenceSimilarityThreshold,
	}, tokens)
	validator := quality.New(quality.Config{
		MinChunkQuality:       cfg.Quality.MinChunkQuality,
		MaxDuplicateThreshold: cfg.Quality.MaxDuplicateThreshold,
	})

	st, err := store.Open(ctx, store.Config{
		SQLitePath: cfg.Store.DataDir + "/ragforge.db",
		BlevePath:  cfg.Store.DataDir + "/ragforge.bleve",
		Kinds:      enabledKinds(cfg.Embedding.EnabledKinds),
		VectorIndex: vectorindex.Config{
			Backend: vectorindex.BackendType(cfg.Store.VectorBackend),
			Qdrant:  vectorindex.QdrantConfig{Host: cfg.Store.QdrantAddr},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ragforge: failed to open store: %w", err)
	}

	pipeline := ingest.New(det, analyzer, ck, embedder, validator, st, ingest.Config{
		MaxConcurrentJobs: cfg.Concurrency.MaxConcurrentJobs,
		IngestTimeout:     secondsToDuration(cfg.Concurrency.IngestionTimeoutSeconds),
		EmbeddingTimeout:  secondsToDuration(cfg.Concurrency.EmbeddingTimeoutSeconds),
	})

	retriever := retrieval.New(st, provider, retrieval.Config{
		HierarchicalExpansion: cfg.Retrieval.HierarchicalExpansion,
		SemanticExpansion:     cfg.Retrieval.SemanticExpansion,
		MaxExpansionChunks:    cfg.Retrieval.MaxExpansionChunks,
		MaxChunksPerSource:    cfg.Retrieval.MaxChunksPerSource,
		MaxChunksPerPage:      cfg.Retrieval.MaxChunksPerPage,
		Weights: retrieval.ScoreWeights{
			VectorSimilarity:    cfg.Retrieval.Weights.VectorSimilarity,
			ContentTypeMatch:    cfg.Retrieval.Weights.ContentTypeMatch,
			InstructionalValue:  cfg.Retrieval.Weights.InstructionalValue,
			QualityScore:        cfg.Retrieval.Weights.QualityScore,
			ContextualRelevance: cfg.Retrieval.Weights.ContextualRelevance,
		},
		ContentTypeMatrix: contentTypeMatrixFromConfig(cfg.Retrieval.ContentTypeMatrix),
	})

	return &app{
		cfg:              cfg,
		logger:           logger,
		obs:              obs,
		store:            st,
		ingest:           pipeline,
		retrieve:         retriever,
		retrievalTimeout: secondsToDuration(cfg.Concurrency.RetrievalTimeoutSeconds),
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.obs != nil {
		_ = a.obs.Shutdown(ctx)
	}
}

// loadConfigFromFileOrDefaults loads path if it exists, else returns a
// fully defaulted Config — mirroring cmd/hector/config_loader.go's
// default-file-or-zero-config fallback, minus the zero-config/API-key
// prompt since ragforge's config carries no LLM credentials.
func loadConfigFromFileOrDefaults(path string) (*config.Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return nil, fmt.Errorf("ragforge: failed to load config from %s: %w", path, err)
			}
			return cfg, nil
		}
	}
	return config.DefaultConfig(), nil
}

// embeddingProviderFromEnv builds the OpenAI-compatible embedding
// provider from the OPENAI_API_KEY environment variable, the same
// lookup cmd/hector/config_loader.go's getOrRequireAPIKey performs.
func embeddingProviderFromEnv(cfg *config.Config) (*embedding.OpenAIProvider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf(
			"OPENAI_API_KEY is required to compute embeddings\n\n" +
				"Provide it via:\n" +
				"  export OPENAI_API_KEY=sk-...\n")
	}
	return embedding.NewOpenAIProvider(embedding.OpenAIProviderConfig{
		APIKey: apiKey,
	})
}

// contentTypeMatrixFromConfig translates the YAML-friendly string-keyed
// matrix (config.RetrievalConfig.ContentTypeMatrix) into the typed form
// retrieval.Config expects. Nil input yields nil, letting
// retrieval.Config.SetDefaults fall back to its own built-in table.
func contentTypeMatrixFromConfig(m map[string]map[string]float64) map[ragforge.QueryType]map[ragforge.ContentType]float64 {
	if m == nil {
		return nil
	}
	out := make(map[ragforge.QueryType]map[ragforge.ContentType]float64, len(m))
	for qt, row := range m {
		converted := make(map[ragforge.ContentType]float64, len(row))
		for ct, weight := range row {
			converted[ragforge.ContentType(ct)] = weight
		}
		out[ragforge.QueryType(qt)] = converted
	}
	return out
}

func enabledKinds(names []string) []ragforge.EmbeddingKind {
	out := make([]ragforge.EmbeddingKind, 0, len(names))
	for _, n := range names {
		out = append(out, ragforge.EmbeddingKind(n))
	}
	return out
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
