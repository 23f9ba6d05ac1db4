package vectorindex

import (
	"context"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the embedded coder/hnsw graph.
type HNSWConfig struct {
	// M is the max number of neighbours per node (default 16).
	M int
	// EfSearch controls the search-time candidate list size (default 64).
	EfSearch int
}

func (c *HNSWConfig) SetDefaults() {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 64
	}
}

// hnswIndex is the default embedded ANN backend (§6(d)): cosine distance
// over normalised vectors, a string-ID <-> uint64-key map since coder/hnsw
// keys are integers, and lazy deletion (orphan the keyToID entry rather
// than calling graph.Delete) to dodge coder/hnsw's bug on deleting a
// graph's last remaining node — an orphaned node simply never resolves
// to an ID and is skipped when Search encounters it.
type hnswIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64
}

func newHNSWIndex(cfg HNSWConfig) *hnswIndex {
	cfg.SetDefaults()
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	return &hnswIndex{
		graph:   g,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
	}
}

func (h *hnswIndex) Add(ctx context.Context, id string, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	v := normalizedCopy(vector)

	if oldKey, ok := h.idToKey[id]; ok {
		delete(h.keyToID, oldKey)
	}

	key := h.nextKey
	h.nextKey++
	h.idToKey[id] = key
	h.keyToID[key] = id

	h.graph.Add(hnsw.MakeNode(key, v))
	return nil
}

func (h *hnswIndex) Remove(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key, ok := h.idToKey[id]
	if !ok {
		return nil
	}
	delete(h.idToKey, id)
	delete(h.keyToID, key)
	return nil
}

func (h *hnswIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 {
		return nil, nil
	}
	v := normalizedCopy(vector)

	// Over-fetch to absorb orphaned (lazily-deleted) nodes still
	// resident in the graph.
	fetch := k + (h.graph.Len() - len(h.idToKey))
	if fetch < k {
		fetch = k
	}
	nodes := h.graph.Search(v, fetch)

	matches := make([]Match, 0, k)
	for _, n := range nodes {
		id, ok := h.keyToID[n.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{ID: id, Score: distanceToScore(hnsw.CosineDistance(v, n.Value))})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

func (h *hnswIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToKey)
}

// distanceToScore converts coder/hnsw's cosine distance (0 = identical,
// 2 = opposite) into a [0, 1] similarity score (§4.8 "cosine similarity").
func distanceToScore(distance float32) float64 {
	return 1 - float64(distance)/2
}

func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSquares float64
	for _, f := range out {
		sumSquares += float64(f) * float64(f)
	}
	if sumSquares == 0 {
		return out
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range out {
		out[i] /= norm
	}
	return out
}
