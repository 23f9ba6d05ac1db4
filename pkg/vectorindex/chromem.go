package vectorindex

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// PersistPath, if set, persists the collection to this directory.
	PersistPath string
	Compress    bool
}

// chromemIndex is the alternate embedded ANN backend (§6(d)). Grounded on
// pkg/vector/chromem.go: vectors are pre-computed upstream, so the
// collection is opened with an identity EmbeddingFunc that is never
// actually invoked, and documents are upserted with Embedding set
// directly.
type chromemIndex struct {
	collection *chromem.Collection
}

func newChromemIndex(ctx context.Context, cfg ChromemConfig, collection string) (*chromemIndex, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("vectorindex: open chromem persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("vectorindex: embedding function invoked but vectors are pre-computed")
	}

	col, err := db.GetOrCreateCollection(collection, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create chromem collection %q: %w", collection, err)
	}
	return &chromemIndex{collection: col}, nil
}

func (c *chromemIndex) Add(ctx context.Context, id string, vector []float32) error {
	doc := chromem.Document{ID: id, Embedding: vector}
	return c.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU())
}

func (c *chromemIndex) Remove(ctx context.Context, id string) error {
	return c.collection.Delete(ctx, nil, nil, id)
}

func (c *chromemIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	n := k
	if count := c.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}
	results, err := c.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: chromem query: %w", err)
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{ID: r.ID, Score: float64(r.Similarity)})
	}
	return matches, nil
}

func (c *chromemIndex) Len() int {
	return c.collection.Count()
}
