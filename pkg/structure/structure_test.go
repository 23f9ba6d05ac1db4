package structure

import (
	"testing"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeMarkdownHeadings(t *testing.T) {
	text := "# Guide\n\nIntro text here.\n\n## Setup\n\nFirst step.\n\n### Details\n\nMore detail.\n"

	sections := New().Analyze(text, format.Hints{})

	require.Len(t, sections, 3)
	assert.Equal(t, []string{"Guide"}, sections[0].SectionPath)
	assert.Equal(t, []string{"Guide", "Setup"}, sections[1].SectionPath)
	assert.Equal(t, []string{"Guide", "Setup", "Details"}, sections[2].SectionPath)
	assert.Equal(t, 1, sections[0].Level)
	assert.Equal(t, 3, sections[2].Level)
}

func TestAnalyzeSiblingSectionsResetNesting(t *testing.T) {
	text := "# Doc\n\n## One\n\nbody one\n\n## Two\n\nbody two\n"

	sections := New().Analyze(text, format.Hints{})

	require.Len(t, sections, 3)
	assert.Equal(t, []string{"Doc", "One"}, sections[1].SectionPath)
	assert.Equal(t, []string{"Doc", "Two"}, sections[2].SectionPath)
}

func TestAnalyzeNoHeadingsYieldsOneSection(t *testing.T) {
	text := "Just a single block of prose with no heading markers whatsoever."

	sections := New().Analyze(text, format.Hints{})

	require.Len(t, sections, 1)
	assert.Empty(t, sections[0].SectionPath)
	assert.Equal(t, text, sections[0].Body)
}

func TestAnalyzeUsesReaderHeadingHints(t *testing.T) {
	text := "Title Line\nbody under title\n"
	hints := format.Hints{HeadingOffsets: map[int]int{0: 1}}

	sections := New().Analyze(text, hints)

	require.Len(t, sections, 1)
	assert.Equal(t, "Title Line", sections[0].Heading)
	assert.Equal(t, 1, sections[0].Level)
}

func TestClassifyContentType(t *testing.T) {
	a := New()

	t.Run("numbered steps classify as instructions", func(t *testing.T) {
		ct, conf := a.classifyContentType("How to configure", "1. Click Start\n2. Select Settings\n3. Enter the value")
		assert.Equal(t, ragforge.ContentInstructions, ct)
		assert.Greater(t, conf, 0.0)
	})

	t.Run("question-answer pairs classify as faq", func(t *testing.T) {
		ct, _ := a.classifyContentType("FAQ", "Q: What is this?\nA: It answers a question.")
		assert.Equal(t, ragforge.ContentFAQ, ct)
	})

	t.Run("definition colon pattern classifies as definitions", func(t *testing.T) {
		ct, _ := a.classifyContentType("Glossary", "Chunk: a fragment of a source document, refers to a unit of retrieval.")
		assert.Equal(t, ragforge.ContentDefinitions, ct)
	})

	t.Run("plain prose with no signal falls back to text", func(t *testing.T) {
		ct, _ := a.classifyContentType("Overview", "This section briefly describes the system at a high level.")
		assert.Equal(t, ragforge.ContentText, ct)
	})
}

func TestCharacteristicsForInstructions(t *testing.T) {
	c := characteristicsFor(ragforge.ContentInstructions, "How to proceed", "1. Click Start\n2. Select Settings")
	assert.True(t, c.IsProcedural)
	assert.True(t, c.HasStepByStep)
	assert.True(t, c.PreserveSequence)
	assert.Equal(t, "semantic_with_procedures", c.RecommendedStrategy)
}

func TestCharacteristicsForFAQ(t *testing.T) {
	c := characteristicsFor(ragforge.ContentFAQ, "FAQ", "Q: why?\nA: because.")
	assert.Equal(t, "qa_pair_preservation", c.RecommendedStrategy)
	assert.False(t, c.IsProcedural)
}

func TestCharacteristicsDetectsWarnings(t *testing.T) {
	c := characteristicsFor(ragforge.ContentText, "Notes", "Warning: do not skip this step.")
	assert.True(t, c.HasWarnings)
}
