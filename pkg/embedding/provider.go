package embedding

import "context"

// Provider is the embedding provider's consumed interface (spec §4.4,
// §6: "Embed([string], kind) → [float32[D]]"). D is advertised via
// Dimension and frozen for the store's lifetime once the first call
// succeeds.
//
// Grounded on pkg/embedder/embedder.go's Embedder interface, narrowed to
// batch-only (no single-text convenience method — every caller in this
// pipeline already batches) and given the §4.4 error taxonomy instead of
// a bare error.
type Provider interface {
	// EmbedBatch embeds a batch of UTF-8 strings, returning one vector
	// per input in the same order. Errors should be one of
	// ragforge.TransientProviderError or ragforge.FatalProviderError;
	// a TransientProviderError whose Class is
	// ragforge.ProviderInvalidInput is never retried.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns D, the fixed vector length this provider
	// produces.
	Dimension() int

	// Model names the embedding model in use, for cache-key
	// namespacing and observability labels.
	Model() string
}
