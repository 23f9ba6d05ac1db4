// Package vectorindex implements the approximate-nearest-neighbour index
// required per embedding kind (§6(d): "ANN index per embedding kind, e.g.
// HNSW, pluggable"). One Index interface is satisfied by three backends:
// an embedded HNSW graph (coder/hnsw, default), an embedded chromem-go
// collection, and a remote Qdrant collection.
//
// Grounded on pkg/vector's provider-per-backend shape (one interface,
// selected via ProviderConfig.Type), with the HNSW backend itself
// adapted from a standalone coder/hnsw-backed store.
package vectorindex

import "context"

// Match is one ANN search result: a chunk ID and its similarity score,
// higher is more similar. The HNSW backend maps cosine distance into
// [0, 1]; the chromem and Qdrant backends return their cosine similarity
// unchanged, which lies in [-1, 1].
type Match struct {
	ID    string
	Score float64
}

// Index is the per-embedding-kind ANN index (§6(d)). Implementations own
// their own ID space; callers address vectors by the same string ID they
// used to Add the vector.
type Index interface {
	// Add inserts or replaces the vector for id. Every vector added to a
	// given Index must share the same dimension.
	Add(ctx context.Context, id string, vector []float32) error

	// Remove deletes id's vector, if present. Removing an absent ID is
	// not an error.
	Remove(ctx context.Context, id string) error

	// Search returns up to k nearest neighbours of vector, ranked by
	// descending score.
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Len reports the number of vectors currently indexed.
	Len() int
}

// BackendType selects which Index implementation Open constructs (§6(d):
// "pluggable").
type BackendType string

const (
	BackendHNSW    BackendType = "hnsw"
	BackendChromem BackendType = "chromem"
	BackendQdrant  BackendType = "qdrant"
)

// Config configures Open. Exactly the sub-config matching Backend is
// consulted.
type Config struct {
	Backend BackendType

	HNSW    HNSWConfig
	Chromem ChromemConfig
	Qdrant  QdrantConfig
}

func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendHNSW
	}
}

// Open constructs the Index selected by cfg.Backend for one embedding
// kind's collection/namespace.
func Open(ctx context.Context, cfg Config, collection string, dimension int) (Index, error) {
	cfg.SetDefaults()
	switch cfg.Backend {
	case BackendHNSW:
		return newHNSWIndex(cfg.HNSW), nil
	case BackendChromem:
		return newChromemIndex(ctx, cfg.Chromem, collection)
	case BackendQdrant:
		return newQdrantIndex(ctx, cfg.Qdrant, collection, dimension)
	default:
		return newHNSWIndex(cfg.HNSW), nil
	}
}
