package ragforge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleCoarserThan(t *testing.T) {
	assert.True(t, ScaleDocument.CoarserThan(ScaleSection))
	assert.True(t, ScaleSection.CoarserThan(ScaleParagraph))
	assert.True(t, ScaleParagraph.CoarserThan(ScaleSentence))
	assert.False(t, ScaleSentence.CoarserThan(ScaleDocument))
	assert.False(t, ScaleDocument.CoarserThan(ScaleDocument))
}

func TestChunkHasParent(t *testing.T) {
	assert.False(t, (&Chunk{}).HasParent())
	assert.True(t, (&Chunk{ParentChunkID: "c1"}).HasParent())
}

func TestChunkDimension(t *testing.T) {
	c := &Chunk{}
	_, ok := c.Dimension()
	assert.False(t, ok)

	c.Embeddings = map[EmbeddingKind][]float32{EmbeddingContent: {0.1, 0.2, 0.3}}
	dim, ok := c.Dimension()
	assert.True(t, ok)
	assert.Equal(t, 3, dim)
}

func TestNewSourceIDIsDeterministic(t *testing.T) {
	a := NewSourceID("abc123")
	b := NewSourceID("abc123")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewSourceID("different"))
}

func TestNewChunkIDIsDeterministic(t *testing.T) {
	a := NewChunkID("abc123", ScaleSection, []string{"Intro", "Overview"}, 0)
	b := NewChunkID("abc123", ScaleSection, []string{"Intro", "Overview"}, 0)
	assert.Equal(t, a, b)
}

func TestNewChunkIDVariesWithEachComponent(t *testing.T) {
	base := NewChunkID("abc123", ScaleSection, []string{"Intro"}, 0)
	assert.NotEqual(t, base, NewChunkID("xyz789", ScaleSection, []string{"Intro"}, 0))
	assert.NotEqual(t, base, NewChunkID("abc123", ScaleParagraph, []string{"Intro"}, 0))
	assert.NotEqual(t, base, NewChunkID("abc123", ScaleSection, []string{"Other"}, 0))
	assert.NotEqual(t, base, NewChunkID("abc123", ScaleSection, []string{"Intro"}, 1))
}

func TestValidationErrorWrapsAndFormats(t *testing.T) {
	inner := errors.New("boom")
	err := NewValidationError("path", "must not be empty", inner)
	assert.Contains(t, err.Error(), "path")
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, inner)
}

func TestDetectionErrorWrapsAndFormats(t *testing.T) {
	err := NewDetectionError("src-1", "unreadable signature", nil)
	assert.Equal(t, "detection[src-1]: unreadable signature", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestExtractionErrorFormatsFormatAndSource(t *testing.T) {
	err := NewExtractionError("src-1", FormatPDF, "corrupt page table", nil)
	assert.Contains(t, err.Error(), "src-1")
	assert.Contains(t, err.Error(), "pdf")
}

func TestTransientProviderErrorFormatsClassAndAttempt(t *testing.T) {
	err := NewTransientProviderError(ProviderRateLimited, 2, "too many requests", nil)
	assert.Contains(t, err.Error(), "rate_limited")
	assert.Contains(t, err.Error(), "attempt 2")
}

func TestFatalProviderErrorFormatsKind(t *testing.T) {
	err := NewFatalProviderError(EmbeddingSemantic, "dimension mismatch", nil)
	assert.Contains(t, err.Error(), "semantic")
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestStoreErrorFormatsOperationAndSource(t *testing.T) {
	err := NewStoreError("ReplaceChunks", "src-1", "transaction rollback", nil)
	assert.Contains(t, err.Error(), "ReplaceChunks")
	assert.Contains(t, err.Error(), "src-1")
}

func TestQueryErrorTruncatesLongQueries(t *testing.T) {
	longQuery := ""
	for i := 0; i < 100; i++ {
		longQuery += "x"
	}
	err := NewQueryError(longQuery, "too long", nil)
	assert.Contains(t, err.Error(), "...")
	assert.NotContains(t, err.Error(), longQuery)
}

func TestQueryErrorKeepsShortQueriesIntact(t *testing.T) {
	err := NewQueryError("how do retries work?", "bad filter", nil)
	assert.Contains(t, err.Error(), "how do retries work?")
}

func TestCancelledFormatsWithAndWithoutStage(t *testing.T) {
	assert.Equal(t, "cancelled", (&Cancelled{}).Error())
	assert.Equal(t, `cancelled at stage "embed"`, NewCancelled("embed", nil).Error())
}

func TestCancelledUnwrapsUnderlyingContextError(t *testing.T) {
	inner := errors.New("context canceled")
	err := NewCancelled("chunk", inner)
	assert.ErrorIs(t, err, inner)
}
