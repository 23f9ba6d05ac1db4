// Package detector implements the Document Type Detector (spec §4.1):
// format detection from extension/magic-bytes/MIME, document-type
// classification from pattern families, and processing-strategy lookup.
//
// Grounded on pkg/rag/extractor.go's registry-of-strategies shape
// (priority-ordered matchers tried in turn) generalized from a content
// extractor registry into a scoring detector.
package detector

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/format"
)

const (
	defaultSampleSize                 = 5000
	defaultMinConfidenceForClassification = 0.4
	formatDecisionThreshold            = 0.6
)

// Metadata is the optional caller-supplied context for detection (§4.1
// contract: "a byte-accessible file plus optional metadata").
type Metadata struct {
	Filename    string
	DeclaredMIME string
}

// Result is the detector's output (§4.1 contract).
type Result struct {
	Format           ragforge.Format
	FormatConfidence float64
	Type             ragforge.DocumentType
	TypeConfidence   float64
	Subtype          string
	ProcessingStrategy string
	StrategyOptions    map[string]any
	QualityIndicators  map[string]float64
	Metadata           map[string]string
	ExtractedText      string
	Hints              format.Hints
}

// strategyEntry is one row of the fixed type→strategy table (§4.1 step
// 5).
type strategyEntry struct {
	strategy string
	options  map[string]any
}

var strategyTable = map[ragforge.DocumentType]strategyEntry{
	ragforge.TypeUserGuide: {
		strategy: "procedure_optimized",
		options: map[string]any{
			"preserveStepSequences": true,
			"extractProcedures":     true,
			"chunking":              "semantic_with_procedures",
		},
	},
	ragforge.TypeQuickStart: {
		strategy: "step_by_step_optimized",
		options: map[string]any{
			"prioritizeEarlyContent": true,
			"chunking":               "sequential_with_context",
		},
	},
	ragforge.TypeTechnicalSpec: {
		strategy: "reference_optimized",
		options: map[string]any{
			"preserveStructure": true,
			"chunking":          "hierarchical_with_references",
		},
	},
	ragforge.TypeFAQ: {
		strategy: "qa_optimized",
		options: map[string]any{
			"preserveQAPairs": true,
			"chunking":        "qa_pair_preservation",
		},
	},
	ragforge.TypeTroubleshoot: {
		strategy: "problem_solution_optimized",
		options: map[string]any{
			"chunking": "problem_solution_grouping",
		},
	},
	ragforge.TypeUnknown: {
		strategy: "general_purpose",
		options: map[string]any{
			"conservativeChunking": true,
			"chunking":             "adaptive_semantic",
		},
	},
}

// typePatterns holds the three weighted pattern sets per type (§4.1 step
// 3): title (0.3), content (0.4), structure (0.3).
type typePatterns struct {
	title     []*regexp.Regexp
	content   []*regexp.Regexp
	structure []*regexp.Regexp
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

var documentTypePatterns = map[ragforge.DocumentType]typePatterns{
	ragforge.TypeUserGuide: {
		title:     compileAll(`user guide|manual|handbook`),
		content:   compileAll(`step \d+|how to|instructions`),
		structure: compileAll(`table of contents|introduction|getting started`),
	},
	ragforge.TypeQuickStart: {
		title:     compileAll(`quick start|getting started|setup`),
		content:   compileAll(`step \d+|first|next|then|finally`),
		structure: compileAll(`prerequisites`),
	},
	ragforge.TypeTechnicalSpec: {
		title:     compileAll(`specification|api|reference`),
		content:   compileAll(`parameter|function|method|class`),
		structure: compileAll(`syntax|examples|parameters`),
	},
	ragforge.TypeFAQ: {
		title:     compileAll(`faq|frequently asked`),
		content:   compileAll(`\?|q:|a:`),
		structure: compileAll(`q\d+|question \d+`),
	},
	ragforge.TypeTroubleshoot: {
		title:     compileAll(`troubleshoot|error|issue`),
		content:   compileAll(`solution|fix|resolve`),
		structure: compileAll(`symptom|cause|resolution`),
	},
}

// magicSignatures maps a leading byte signature to the format it
// indicates (§4.1 step 1: "first 10 bytes").
var magicSignatures = []struct {
	format    ragforge.Format
	signature []byte
}{
	{ragforge.FormatPDF, []byte("%PDF-")},
	{ragforge.FormatDOCX, []byte{0x50, 0x4B, 0x03, 0x04}}, // zip-based OOXML
}

var extensionFormats = map[string]ragforge.Format{
	".pdf":      ragforge.FormatPDF,
	".docx":     ragforge.FormatDOCX,
	".htm":      ragforge.FormatHTML,
	".html":     ragforge.FormatHTML,
	".md":       ragforge.FormatMarkdown,
	".markdown": ragforge.FormatMarkdown,
	".txt":      ragforge.FormatText,
}

var mimeFormats = map[string]ragforge.Format{
	"application/pdf": ragforge.FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ragforge.FormatDOCX,
	"text/html":     ragforge.FormatHTML,
	"text/markdown": ragforge.FormatMarkdown,
	"text/plain":    ragforge.FormatText,
}

// Config configures the detector's thresholds.
type Config struct {
	SampleSize                     int
	MinConfidenceForClassification float64
}

func (c *Config) SetDefaults() {
	if c.SampleSize == 0 {
		c.SampleSize = defaultSampleSize
	}
	if c.MinConfidenceForClassification == 0 {
		c.MinConfidenceForClassification = defaultMinConfidenceForClassification
	}
}

// Detector is the Document Type Detector.
type Detector struct {
	config   Config
	readers  *format.Registry
}

// New constructs a Detector. readers resolves a detected format to a
// FormatReader; if nil, a default registry with all shipped readers is
// used.
func New(cfg Config, readers *format.Registry) *Detector {
	cfg.SetDefaults()
	if readers == nil {
		readers = format.NewRegistry()
	}
	return &Detector{config: cfg, readers: readers}
}

// Detect runs the full §4.1 algorithm against the file at path.
func (d *Detector) Detect(ctx context.Context, path string, meta Metadata) (*Result, error) {
	if meta.Filename == "" {
		meta.Filename = filepath.Base(path)
	}

	detectedFormat, formatConfidence, err := d.detectFormat(path, meta)
	if err != nil {
		return nil, ragforge.NewDetectionError("", fmt.Sprintf("reading %s for format detection", path), err)
	}

	text, extractConfidence, hints, extractMetadata := d.extractText(ctx, detectedFormat, path, meta)
	if extractConfidence < formatConfidence {
		formatConfidence = extractConfidence
	}

	docType, typeConfidence, subtype := d.classifyType(text, meta.Filename)

	entry, ok := strategyTable[docType]
	if !ok {
		entry = strategyTable[ragforge.TypeUnknown]
	}

	return &Result{
		Format:             detectedFormat,
		FormatConfidence:   formatConfidence,
		Type:               docType,
		TypeConfidence:     typeConfidence,
		Subtype:            subtype,
		ProcessingStrategy: entry.strategy,
		StrategyOptions:    entry.options,
		QualityIndicators:  map[string]float64{"typeConfidence": typeConfidence, "formatConfidence": formatConfidence},
		Metadata:           extractMetadata,
		ExtractedText:      text,
		Hints:              hints,
	}, nil
}

// detectFormat implements §4.1 step 1: extension +0.6, declared MIME
// +0.6, signature +0.4; the highest-scoring format wins if it reaches
// formatDecisionThreshold (ties go to whichever the map iteration meets
// first), else extension, else unknown.
func (d *Detector) detectFormat(path string, meta Metadata) (ragforge.Format, float64, error) {
	scores := make(map[ragforge.Format]float64)

	ext := strings.ToLower(filepath.Ext(meta.Filename))
	if f, ok := extensionFormats[ext]; ok {
		scores[f] += 0.6
	}
	if meta.DeclaredMIME != "" {
		if f, ok := mimeFormats[meta.DeclaredMIME]; ok {
			scores[f] += 0.6
		}
	}

	head := make([]byte, 10)
	n, err := readHead(path, head)
	if err != nil {
		return ragforge.FormatUnknown, 0.1, err
	}
	head = head[:n]
	for _, sig := range magicSignatures {
		if bytes.HasPrefix(head, sig.signature) {
			scores[sig.format] += 0.4
		}
	}

	var best ragforge.Format
	var bestScore float64
	for f, s := range scores {
		if s > bestScore {
			best, bestScore = f, s
		}
	}
	if bestScore >= formatDecisionThreshold {
		return best, clamp01(bestScore), nil
	}
	if f, ok := extensionFormats[ext]; ok {
		return f, 0.6, nil
	}
	return ragforge.FormatUnknown, 0.1, nil
}

func readHead(path string, buf []byte) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Read(buf)
}

// extractText runs the format's reader; on failure it produces a
// synthetic metadata-only text with degraded confidence (§4.1 step 2).
func (d *Detector) extractText(ctx context.Context, f ragforge.Format, path string, meta Metadata) (string, float64, format.Hints, map[string]string) {
	metadata := map[string]string{"filename": meta.Filename}

	reader, ok := d.readers.Lookup(f)
	if !ok {
		return syntheticText(meta), 0.3, format.Hints{}, metadata
	}

	result, err := reader.Read(ctx, path)
	if err != nil {
		metadata["extractionError"] = err.Error()
		return syntheticText(meta), 0.3, format.Hints{}, metadata
	}
	return result.Text, 1.0, result.Hints, metadata
}

func syntheticText(meta Metadata) string {
	return fmt.Sprintf("[unreadable document] filename=%s", meta.Filename)
}

// classifyType implements §4.1 steps 3-4.
func (d *Detector) classifyType(text, filename string) (ragforge.DocumentType, float64, string) {
	sample := text
	if len(sample) > d.config.SampleSize {
		sample = sample[:d.config.SampleSize]
	}
	titleSample := filename + "\n" + firstLines(sample, 5)

	var bestType ragforge.DocumentType = ragforge.TypeUnknown
	var bestScore float64

	for _, t := range []ragforge.DocumentType{
		ragforge.TypeUserGuide, ragforge.TypeQuickStart, ragforge.TypeTechnicalSpec,
		ragforge.TypeFAQ, ragforge.TypeTroubleshoot,
	} {
		patterns := documentTypePatterns[t]
		titleScore := matchRatio(patterns.title, titleSample) * 0.3
		contentScore := matchRatio(patterns.content, sample) * 0.4
		structureScore := matchRatio(patterns.structure, sample) * 0.3
		score := clamp01(titleScore + contentScore + structureScore)
		if score > bestScore {
			bestScore, bestType = score, t
		}
	}

	if bestScore < d.config.MinConfidenceForClassification {
		return ragforge.TypeUnknown, bestScore, ""
	}
	return bestType, bestScore, ""
}

func matchRatio(patterns []*regexp.Regexp, text string) float64 {
	if len(patterns) == 0 {
		return 0
	}
	hits := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			hits++
		}
	}
	return float64(hits) / float64(len(patterns))
}

func firstLines(text string, n int) string {
	lines := strings.SplitN(text, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
