package quality

import (
	"testing"

	"github.com/kadirpekel/ragforge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	t.Run("baseline with no bonuses", func(t *testing.T) {
		assert.Equal(t, 0.5, Score(ChunkContext{}))
	})

	t.Run("word count bonuses stack", func(t *testing.T) {
		assert.InDelta(t, 0.7, Score(ChunkContext{WordCount: 500}), 1e-9)
	})

	t.Run("procedural bonus requires both signals", func(t *testing.T) {
		assert.Equal(t, 0.5, Score(ChunkContext{HasProcedures: true}))
		assert.InDelta(t, 0.6, Score(ChunkContext{HasProcedures: true, ParentIsProcedural: true}), 1e-9)
	})

	t.Run("table of contents penalty in instructional doc", func(t *testing.T) {
		got := Score(ChunkContext{IsTableOfContents: true, DocumentIsInstructional: true})
		assert.InDelta(t, 0.2, got, 1e-9)
	})

	t.Run("clamps to [0,1]", func(t *testing.T) {
		got := Score(ChunkContext{
			WordCount: 1000, HasStepByStep: true, HasProcedures: true, ParentIsProcedural: true,
			HasDefinitions: true, IsDefinitionBlock: true, HasExamples: true, IsExampleBlock: true,
		})
		assert.LessOrEqual(t, got, 1.0)
	})
}

func TestDetectDuplicates(t *testing.T) {
	v := New(Config{})

	t.Run("flags exact duplicates by content hash", func(t *testing.T) {
		chunks := []*ragforge.Chunk{
			{ChunkID: "a", Content: "Restart the service after editing the config file."},
			{ChunkID: "b", Content: "restart   THE service after editing the config file."},
		}
		dups := v.DetectDuplicates(chunks)
		require.Len(t, dups, 1)
		assert.True(t, dups[0].Exact)
		assert.Equal(t, "b", dups[0].ChunkID)
		assert.Equal(t, "a", dups[0].OfChunkID)
	})

	t.Run("no duplicates among distinct chunks", func(t *testing.T) {
		chunks := []*ragforge.Chunk{
			{ChunkID: "a", Content: "Install the package using the package manager."},
			{ChunkID: "b", Content: "Query results are ranked by a blended score."},
		}
		assert.Empty(t, v.DetectDuplicates(chunks))
	})

	t.Run("flags near duplicates over the similarity threshold", func(t *testing.T) {
		strict := New(Config{MaxDuplicateThreshold: 0.5})
		chunks := []*ragforge.Chunk{
			{ChunkID: "a", Content: "one two three four five six seven eight"},
			{ChunkID: "b", Content: "one two three four five six seven nine"},
		}
		dups := strict.DetectDuplicates(chunks)
		require.Len(t, dups, 1)
		assert.False(t, dups[0].Exact)
		assert.Greater(t, dups[0].Similarity, 0.5)
	})
}

func TestContentHashIsCanonical(t *testing.T) {
	a := ContentHash("Hello   World")
	b := ContentHash("hello world")
	assert.Equal(t, a, b)
}

func TestFleschReadingEase(t *testing.T) {
	t.Run("empty content scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, FleschReadingEase(""))
	})

	t.Run("simple short sentences score higher than dense prose", func(t *testing.T) {
		simple := FleschReadingEase("The cat sat. The dog ran. It was fun.")
		dense := FleschReadingEase("Notwithstanding the aforementioned considerations, the implementation necessitates comprehensive documentation regarding interoperability.")
		assert.Greater(t, simple, dense)
	})
}

func TestContentDiversity(t *testing.T) {
	t.Run("empty content", func(t *testing.T) {
		assert.Equal(t, 0.0, ContentDiversity(""))
	})

	t.Run("all unique words scores 1", func(t *testing.T) {
		assert.Equal(t, 1.0, ContentDiversity("one two three four"))
	})

	t.Run("repeated words lower the score", func(t *testing.T) {
		got := ContentDiversity("one one one two")
		assert.InDelta(t, 0.5, got, 1e-9)
	})
}

func TestBuildReport(t *testing.T) {
	v := New(Config{})

	t.Run("empty source scores only the duplicate and embedding axes and has no warnings", func(t *testing.T) {
		report := v.BuildReport("src-1", nil, 1.0)
		assert.Equal(t, "src-1", report.SourceID)
		assert.InDelta(t, 25.0, report.OverallScore, 1e-9)
		assert.Equal(t, GradeVeryPoor, report.Grade)
		assert.Empty(t, report.Warnings)
	})

	t.Run("healthy chunks grade well and warn on duplicates", func(t *testing.T) {
		chunks := []*ragforge.Chunk{
			{
				ChunkID: "a", WordCount: 150, TokenCount: 120, QualityScore: 0.9,
				SectionPath: []string{"Intro"}, Content: "This guide explains installation steps clearly and thoroughly with many words to read.",
			},
			{
				ChunkID:       "b",
				ParentChunkID: "a",
				WordCount:     150, TokenCount: 120, QualityScore: 0.9,
				SectionPath: []string{"Intro", "Steps"},
				Content:     "This guide explains installation steps clearly and thoroughly with many words to read.",
			},
		}
		report := v.BuildReport("src-2", chunks, 1.0)
		assert.Greater(t, report.OverallScore, 0.0)
		require.NotEmpty(t, report.Warnings)
		assert.Contains(t, report.Recommendations, "duplicates")
	})
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Grade
	}{
		{95, GradeExcellent},
		{85, GradeGood},
		{75, GradeFair},
		{65, GradePoor},
		{10, GradeVeryPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeFor(tt.score))
	}
}
