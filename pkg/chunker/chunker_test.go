package chunker

import (
	"strings"
	"testing"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/structure"
	"github.com/kadirpekel/ragforge/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	tokens, err := utils.NewTokenCounter("cl100k_base")
	require.NoError(t, err)
	return New(cfg, tokens)
}

func TestConfigSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, Band{TargetMin: 4000, TargetMax: 8000}, cfg.DocumentBand)
	assert.Equal(t, 20, cfg.HardMinTokens)
	assert.Equal(t, 10000, cfg.HardMaxTokens)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsBadBounds(t *testing.T) {
	cfg := Config{HardMinTokens: 100, HardMaxTokens: 10}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())
}

func TestChunkProducesDocumentScaleRoot(t *testing.T) {
	ck := newTestChunker(t, Config{})

	text := "Just a short document with no headings at all."
	in := Input{SourceID: "src-1", ContentHash: "hash1", Sections: nil}

	chunks, warnings, err := ck.Chunk(in, text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, warnings, "empty document: no sections detected")

	var foundDoc bool
	for _, c := range chunks {
		if c.Scale == ragforge.ScaleDocument {
			foundDoc = true
			assert.False(t, c.HasParent())
		}
	}
	assert.True(t, foundDoc)
}

func TestChunkBuildsSectionHierarchy(t *testing.T) {
	ck := newTestChunker(t, Config{})

	fullText := strings.Repeat("word ", 200)
	sections := []structure.Section{
		{Heading: "Intro", Level: 1, SectionPath: []string{"Intro"}, Body: strings.Repeat("intro content word. ", 40)},
	}
	in := Input{SourceID: "src-2", ContentHash: "hash2", Sections: sections}

	chunks, _, err := ck.Chunk(in, fullText)
	require.NoError(t, err)

	var docChunk, sectionChunk *ragforge.Chunk
	for _, c := range chunks {
		switch c.Scale {
		case ragforge.ScaleDocument:
			docChunk = c
		case ragforge.ScaleSection:
			sectionChunk = c
		}
	}
	require.NotNil(t, docChunk)
	require.NotNil(t, sectionChunk)
	assert.Equal(t, docChunk.ChunkID, sectionChunk.ParentChunkID)
	assert.Contains(t, docChunk.ChildChunkIDs, sectionChunk.ChunkID)
	assert.Equal(t, []string{"Intro"}, sectionChunk.SectionPath)
}

func TestChunkDeterministicIDs(t *testing.T) {
	ck := newTestChunker(t, Config{MinChunkQuality: 0})
	text := strings.Repeat("consistent content word. ", 30)
	in := Input{SourceID: "src-3", ContentHash: "samehash", Sections: nil}

	chunksA, _, err := ck.Chunk(in, text)
	require.NoError(t, err)
	chunksB, _, err := ck.Chunk(in, text)
	require.NoError(t, err)

	require.Equal(t, len(chunksA), len(chunksB))
	for i := range chunksA {
		assert.Equal(t, chunksA[i].ChunkID, chunksB[i].ChunkID)
	}
}

func TestPruneByQualityKeepsDocumentRoot(t *testing.T) {
	ck := newTestChunker(t, Config{MinChunkQuality: 0.9}) // aggressive pruning

	sections := []structure.Section{
		{Heading: "H", Level: 1, SectionPath: []string{"H"}, Body: "short"},
	}
	in := Input{SourceID: "src-4", ContentHash: "hash4", Sections: sections}

	chunks, _, err := ck.Chunk(in, "short document body")
	require.NoError(t, err)
	// Regardless of how aggressively children are pruned, the
	// document-scale root always survives (§3: document chunk is never
	// quality-gated).
	var foundDoc bool
	for _, c := range chunks {
		if c.Scale == ragforge.ScaleDocument {
			foundDoc = true
		}
	}
	assert.True(t, foundDoc)
}

func TestSplitSentencesSuppressesAbbreviations(t *testing.T) {
	sentences := SplitSentences("Dr. Smith arrived. He was early.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "Dr. Smith arrived.", sentences[0])
	assert.Equal(t, "He was early.", sentences[1])
}

func TestSplitSentencesSuppressesDecimals(t *testing.T) {
	sentences := SplitSentences("The value is 3.14 exactly.")
	assert.Len(t, sentences, 1)
}

func TestSplitParagraphsOnBlankLines(t *testing.T) {
	paras := SplitParagraphs("First paragraph.\n\nSecond paragraph.\n\n\nThird paragraph.")
	require.Len(t, paras, 3)
	assert.Equal(t, "First paragraph.", paras[0])
	assert.Equal(t, "Third paragraph.", paras[2])
}

func TestSplitStepsKeepsStepsTogether(t *testing.T) {
	text := "1. Open the panel\nand confirm the settings.\n2. Click apply\nand wait."
	steps := SplitSteps(text)
	require.Len(t, steps, 2)
	assert.True(t, strings.HasPrefix(steps[0], "1. Open the panel"))
	assert.True(t, strings.HasPrefix(steps[1], "2. Click apply"))
}

func TestSplitStepsSingleStepReturnsWhole(t *testing.T) {
	text := "just one paragraph, no numbered steps here."
	assert.Equal(t, []string{text}, SplitSteps(text))
}
