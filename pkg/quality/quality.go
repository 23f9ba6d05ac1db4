// Package quality implements the Quality Validator (spec §4.6):
// per-chunk scoring, duplicate detection, readability/diversity metrics,
// and a per-source ValidationReport with letter grades.
//
// Grounded on pkg/rag/store.go's running-metrics-tracking texture
// (accumulate counters across an ingestion pass, surface them as a
// summary at the end); the scoring formulas themselves are written
// directly from §4.6's thresholds and have no reference algorithm to
// port.
package quality

import (
	"crypto/md5" //nolint:gosec // content fingerprinting, not a security boundary
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kadirpekel/ragforge"
)

// Config configures the validator's thresholds (§4.6, §6).
type Config struct {
	MinChunkQuality        float64
	MaxDuplicateThreshold  float64
}

func (c *Config) SetDefaults() {
	if c.MinChunkQuality == 0 {
		c.MinChunkQuality = 0.4
	}
	if c.MaxDuplicateThreshold == 0 {
		c.MaxDuplicateThreshold = 0.9
	}
}

// ChunkContext is the information the scoring formula needs beyond the
// chunk itself (§4.6 "Per-chunk qualityScore").
type ChunkContext struct {
	WordCount              int
	HasStepByStep           bool
	HasProcedures           bool
	ParentIsProcedural      bool
	HasDefinitions          bool
	IsDefinitionBlock       bool
	HasExamples             bool
	IsExampleBlock          bool
	IsTableOfContents       bool
	DocumentIsInstructional bool
}

// Score computes the per-chunk qualityScore (§4.6).
func Score(ctx ChunkContext) float64 {
	score := 0.5
	if ctx.WordCount >= 100 {
		score += 0.1
	}
	if ctx.WordCount >= 500 {
		score += 0.1
	}
	if (ctx.HasStepByStep || ctx.HasProcedures) && ctx.ParentIsProcedural {
		score += 0.1
	}
	if ctx.HasDefinitions && ctx.IsDefinitionBlock {
		score += 0.1
	}
	if ctx.HasExamples && ctx.IsExampleBlock {
		score += 0.1
	}
	if ctx.IsTableOfContents && ctx.DocumentIsInstructional {
		score -= 0.3
	}
	return clamp01(score)
}

// Duplicate records one detected duplicate relationship.
type Duplicate struct {
	ChunkID    string
	OfChunkID  string
	Exact      bool
	Similarity float64
}

// Validator is the Quality Validator.
type Validator struct {
	config Config
}

func New(cfg Config) *Validator {
	cfg.SetDefaults()
	return &Validator{config: cfg}
}

// CanonicalizeContent normalises whitespace/case before hashing or
// shingling, so cosmetic differences don't defeat duplicate detection.
func CanonicalizeContent(content string) string {
	fields := strings.Fields(strings.ToLower(content))
	return strings.Join(fields, " ")
}

// ContentHash returns the MD5 of canonicalised content, used for exact
// duplicate detection (§4.6).
func ContentHash(content string) string {
	sum := md5.Sum([]byte(CanonicalizeContent(content))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// DetectDuplicates finds exact (MD5) and near (Jaccard-over-shingles)
// duplicates among a batch of chunks. Duplicates are flagged, not
// removed — callers decide whether to keep or mark them (§4.6).
func (v *Validator) DetectDuplicates(chunks []*ragforge.Chunk) []Duplicate {
	var dups []Duplicate

	hashes := make(map[string]string) // contentHash -> first chunkId seen
	shingleSets := make(map[string]map[string]struct{}, len(chunks))

	for _, c := range chunks {
		shingleSets[c.ChunkID] = shingles(CanonicalizeContent(c.Content), 3)
	}

	hashOf := make(map[string]string, len(chunks))
	for _, c := range chunks {
		h := ContentHash(c.Content)
		hashOf[c.ChunkID] = h
		if first, ok := hashes[h]; ok {
			dups = append(dups, Duplicate{ChunkID: c.ChunkID, OfChunkID: first, Exact: true, Similarity: 1.0})
			continue
		}
		hashes[h] = c.ChunkID
	}

	for i, a := range chunks {
		for j := i + 1; j < len(chunks); j++ {
			b := chunks[j]
			if hashOf[a.ChunkID] == hashOf[b.ChunkID] {
				continue // already reported as an exact duplicate
			}
			sim := jaccard(shingleSets[a.ChunkID], shingleSets[b.ChunkID])
			if sim >= v.config.MaxDuplicateThreshold {
				dups = append(dups, Duplicate{ChunkID: b.ChunkID, OfChunkID: a.ChunkID, Exact: false, Similarity: sim})
			}
		}
	}
	return dups
}

func shingles(text string, k int) map[string]struct{} {
	words := strings.Fields(text)
	set := make(map[string]struct{})
	if len(words) < k {
		if len(words) > 0 {
			set[strings.Join(words, " ")] = struct{}{}
		}
		return set
	}
	for i := 0; i+k <= len(words); i++ {
		set[strings.Join(words[i:i+k], " ")] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for s := range a {
		if _, ok := b[s]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// FleschReadingEase computes the classic readability score. Violations
// of configured thresholds raise warnings, never rejections (§4.6).
func FleschReadingEase(content string) float64 {
	sentences := countSentences(content)
	words := strings.Fields(content)
	if sentences == 0 || len(words) == 0 {
		return 0
	}
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}
	wordsPerSentence := float64(len(words)) / float64(sentences)
	syllablesPerWord := float64(syllables) / float64(len(words))
	return 206.835 - 1.015*wordsPerSentence - 84.6*syllablesPerWord
}

func countSentences(content string) int {
	n := strings.Count(content, ".") + strings.Count(content, "!") + strings.Count(content, "?")
	if n == 0 {
		return 1
	}
	return n
}

func countSyllables(word string) int {
	word = strings.ToLower(strings.Trim(word, ".,!?;:\"'()"))
	if word == "" {
		return 0
	}
	vowels := "aeiouy"
	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

// ContentDiversity is unique-words / total-words (§4.6).
func ContentDiversity(content string) float64 {
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

// Grade is a letter grade derived from an overall score out of 100
// (§4.6).
type Grade string

const (
	GradeExcellent Grade = "Excellent"
	GradeGood      Grade = "Good"
	GradeFair      Grade = "Fair"
	GradePoor      Grade = "Poor"
	GradeVeryPoor  Grade = "Very Poor"
)

func gradeFor(overall float64) Grade {
	switch {
	case overall >= 90:
		return GradeExcellent
	case overall >= 80:
		return GradeGood
	case overall >= 70:
		return GradeFair
	case overall >= 60:
		return GradePoor
	default:
		return GradeVeryPoor
	}
}

// ValidationReport is the Quality Validator's per-source output (§4.6).
type ValidationReport struct {
	SourceID        string
	OverallScore    float64
	Grade           Grade
	BasicMetrics    float64
	ContentQuality  float64
	StructuralFit   float64
	DuplicateScore  float64
	EmbeddingQuality float64
	Duplicates      []Duplicate
	Issues          []string
	Warnings        []string
	Recommendations map[string][]string
}

// axisWeights are the five-axis weights for the overall score out of
// 100 (§4.6).
const (
	weightBasicMetrics    = 0.30
	weightContentQuality  = 0.25
	weightStructuralFit   = 0.20
	weightDuplicateAnalysis = 0.15
	weightEmbeddingQuality  = 0.10
)

// BuildReport composes a ValidationReport from per-chunk scores already
// computed during chunking plus an embedding-quality signal from the
// embedder (§4.4's discarded-vector rate).
func (v *Validator) BuildReport(sourceID string, chunks []*ragforge.Chunk, embeddingSuccessRate float64) *ValidationReport {
	dups := v.DetectDuplicates(chunks)

	basic := averageBasicMetrics(chunks)
	content := averageContentQuality(chunks)
	structural := averageStructuralFit(chunks)
	duplicateScore := 1.0
	if len(chunks) > 0 {
		duplicateScore = 1.0 - float64(len(dups))/float64(len(chunks))
	}
	duplicateScore = clamp01(duplicateScore)

	overall := 100 * (weightBasicMetrics*basic +
		weightContentQuality*content +
		weightStructuralFit*structural +
		weightDuplicateAnalysis*duplicateScore +
		weightEmbeddingQuality*clamp01(embeddingSuccessRate))

	report := &ValidationReport{
		SourceID:         sourceID,
		OverallScore:     overall,
		Grade:            gradeFor(overall),
		BasicMetrics:     basic,
		ContentQuality:   content,
		StructuralFit:    structural,
		DuplicateScore:   duplicateScore,
		EmbeddingQuality: clamp01(embeddingSuccessRate),
		Duplicates:       dups,
		Recommendations:  make(map[string][]string),
	}

	if len(dups) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d duplicate or near-duplicate chunks detected", len(dups)))
		report.Recommendations["duplicates"] = []string{"review flagged chunks; consider pruning exact duplicates"}
	}
	for _, c := range chunks {
		if FleschReadingEase(c.Content) < 30 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("chunk %s has low readability", c.ChunkID))
		}
	}
	sort.Strings(report.Warnings)

	return report
}

func averageBasicMetrics(chunks []*ragforge.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		v := 0.0
		if c.WordCount >= 100 {
			v += 0.5
		}
		if c.TokenCount > 0 {
			v += 0.5
		}
		sum += v
	}
	return sum / float64(len(chunks))
}

func averageContentQuality(chunks []*ragforge.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.QualityScore
	}
	return sum / float64(len(chunks))
}

func averageStructuralFit(chunks []*ragforge.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		if c.HasParent() && len(c.SectionPath) > 0 {
			sum += 1.0
		} else if len(c.SectionPath) > 0 {
			sum += 0.5
		}
	}
	return sum / float64(len(chunks))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
