package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kadirpekel/ragforge"
)

// cacheKey implements §4.4's "(kind, SHA-256(content canonicalised))"
// addressing scheme, plus the model name so switching providers can't
// return stale vectors from a previous model's cache entries.
func cacheKey(model string, kind ragforge.EmbeddingKind, canonicalContent string) string {
	h := sha256.Sum256([]byte(canonicalContent))
	return fmt.Sprintf("%s|%s|%s", model, kind, hex.EncodeToString(h[:]))
}

// Cache is the process-wide, thread-safe, size-bounded embedding cache
// (§4.4 Caching, §5 "Embedding caches are per-process, thread-safe, and
// size-bounded"). Grounded on hashicorp/golang-lru/v2.
type Cache struct {
	entries *lru.Cache[string, []float32]
}

// NewCache builds a Cache with the given LRU capacity.
func NewCache(maxEntries int) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	l, err := lru.New[string, []float32](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create cache: %w", err)
	}
	return &Cache{entries: l}, nil
}

// Get returns a cached vector for the key, and whether it was present.
func (c *Cache) Get(key string) ([]float32, bool) {
	return c.entries.Get(key)
}

// Put stores a vector under the key, evicting the least recently used
// entry if the cache is at capacity.
func (c *Cache) Put(key string, vector []float32) {
	c.entries.Add(key, vector)
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	return c.entries.Len()
}
