package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDefaultsToHNSW(t *testing.T) {
	idx, err := Open(context.Background(), Config{}, "test", 3)
	require.NoError(t, err)
	_, ok := idx.(*hnswIndex)
	assert.True(t, ok)
}

func TestOpenChromem(t *testing.T) {
	idx, err := Open(context.Background(), Config{Backend: BackendChromem}, "test", 3)
	require.NoError(t, err)
	_, ok := idx.(*chromemIndex)
	assert.True(t, ok)
}

func runIndexContract(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0, 0}))
	require.NoError(t, idx.Add(ctx, "b", []float32{0, 1, 0}))
	require.NoError(t, idx.Add(ctx, "c", []float32{0.99, 0.01, 0}))
	assert.Equal(t, 3, idx.Len())

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "c", matches[1].ID)

	require.NoError(t, idx.Remove(ctx, "a"))
	assert.Equal(t, 2, idx.Len())

	matches, err = idx.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c", matches[0].ID)
}

func TestHNSWIndexSatisfiesContract(t *testing.T) {
	runIndexContract(t, newHNSWIndex(HNSWConfig{}))
}

func TestChromemIndexSatisfiesContract(t *testing.T) {
	idx, err := newChromemIndex(context.Background(), ChromemConfig{}, "contract-test")
	require.NoError(t, err)
	runIndexContract(t, idx)
}

func TestHNSWReplacesVectorOnDuplicateAdd(t *testing.T) {
	idx := newHNSWIndex(HNSWConfig{})
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0, 0}))
	require.NoError(t, idx.Add(ctx, "a", []float32{0, 1, 0}))
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestHNSWSearchZeroKReturnsNil(t *testing.T) {
	idx := newHNSWIndex(HNSWConfig{})
	matches, err := idx.Search(context.Background(), []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestDistanceToScore(t *testing.T) {
	assert.Equal(t, 1.0, distanceToScore(0))
	assert.Equal(t, 0.0, distanceToScore(2))
}
