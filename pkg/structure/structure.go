// Package structure implements the Structure Analyzer & Semantic Section
// Detector (spec §4.2): heading detection, section extraction, and
// per-block content-type scoring with priority-rule tie-breaking.
//
// Grounded on pkg/context/chunking/semantic_chunker.go's
// boundary-detection shape (find structural units, fall back to a
// simpler strategy when none are found), generalized from code
// function/type boundaries to prose heading/section boundaries, plus
// the FormatReader heading hints from pkg/format when present.
package structure

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/format"
)

// Characteristics are precomputed booleans the chunker consumes (§4.2
// Output).
type Characteristics struct {
	IsProcedural        bool
	HasStepByStep       bool
	HasDefinitions      bool
	HasExamples         bool
	HasWarnings         bool
	PreserveSequence    bool
	RecommendedStrategy string
}

// Section is one heading-delimited block of text (§4.2 Output).
type Section struct {
	Heading          string
	Level            int
	SectionPath      []string
	Body             string
	ContentType      ragforge.ContentType
	Confidence       float64
	Characteristics  Characteristics
	BodyByteOffset   int
	PageNumber       int
}

var markdownHeadingLineRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// sentenceFinalPunct disqualifies a line from the implicit-heading
// heuristic (§4.2 rule (b)) when it ends like a sentence.
var sentenceFinalPunct = regexp.MustCompile(`[.!?]\s*$`)

// typeWeights is the per-type multiplier applied to the raw pattern
// score (§4.2 "multiplied by the type weight (table above)" — the table
// referenced is §4.1's type table; reused here as the content-type
// weight since content-type scoring reuses the same family of document
// types).
var typeWeights = map[ragforge.ContentType]float64{
	ragforge.ContentInstructions:    1.0,
	ragforge.ContentDefinitions:     1.0,
	ragforge.ContentFAQ:             1.0,
	ragforge.ContentExamples:        1.0,
	ragforge.ContentTableOfContents: 1.0,
	ragforge.ContentText:            1.0,
}

// rejectionThresholds are the per-type minimums below which a candidate
// type is rejected (§4.2).
var rejectionThresholds = map[ragforge.ContentType]float64{
	ragforge.ContentInstructions: 0.6,
	ragforge.ContentFAQ:          0.5,
	ragforge.ContentExamples:     0.4,
}

// priority breaks classification ties: instructions > definitions > faq
// > examples > tableOfContents > text (§4.2).
var priority = []ragforge.ContentType{
	ragforge.ContentInstructions,
	ragforge.ContentDefinitions,
	ragforge.ContentFAQ,
	ragforge.ContentExamples,
	ragforge.ContentTableOfContents,
	ragforge.ContentText,
}

type contentPatterns struct {
	patterns []*regexp.Regexp
	keywords []string
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

var contentTypePatterns = map[ragforge.ContentType]contentPatterns{
	ragforge.ContentInstructions: {
		patterns: compile(`^\s*\d+[.)]\s`, `step \d+`, `click|select|enter|choose|navigate`),
		keywords: []string{"step", "click", "select", "procedure", "instructions"},
	},
	ragforge.ContentTableOfContents: {
		patterns: compile(`\.{2,}\s*\d+\s*$`, `^\s*\d+(\.\d+)*\s+\S`),
		keywords: []string{"contents", "chapter", "appendix"},
	},
	ragforge.ContentDefinitions: {
		patterns: compile(`^\s*\S.{0,60}:\s`, `\bis defined as\b|\brefers to\b|\bmeans\b`),
		keywords: []string{"definition", "means", "refers to", "glossary"},
	},
	ragforge.ContentExamples: {
		patterns: compile(`\bfor example\b|\be\.g\.\b|\bexample:`),
		keywords: []string{"example", "sample", "e.g."},
	},
	ragforge.ContentFAQ: {
		patterns: compile(`\?\s*$`, `^\s*q:`, `^\s*a:`),
		keywords: []string{"question", "answer", "faq"},
	},
}

var warningRe = regexp.MustCompile(`(?i)\bwarning\b|\bcaution\b|\bimportant\b|\bnote:`)
var procedureHeadingRe = regexp.MustCompile(`(?i)how to|procedure|steps?\b`)

// Analyzer is the Structure Analyzer & Semantic Section Detector.
type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

// Analyze turns extracted text (and optional reader hints) into a
// sequence of sections.
func (a *Analyzer) Analyze(text string, hints format.Hints) []Section {
	lines := splitKeepOffsets(text)
	boundaries := a.headingBoundaries(lines, hints)

	var sections []Section
	var headingStack []headingEntry

	for i, b := range boundaries {
		bodyStart := b.lineIndex + 1
		bodyEnd := len(lines)
		if i+1 < len(boundaries) {
			bodyEnd = boundaries[i+1].lineIndex
		}
		body := joinLines(lines[bodyStart:bodyEnd])

		headingStack = pushHeading(headingStack, b.level, b.text)
		sectionPath := pathOf(headingStack)

		ct, conf := a.classifyContentType(b.text, body)
		sections = append(sections, Section{
			Heading:         b.text,
			Level:           b.level,
			SectionPath:     sectionPath,
			Body:            body,
			ContentType:     ct,
			Confidence:      conf,
			Characteristics: characteristicsFor(ct, b.text, body),
			BodyByteOffset:  byteOffsetOfLine(lines, bodyStart),
			PageNumber:      pageForOffset(hints, byteOffsetOfLine(lines, bodyStart)),
		})
	}

	// No headings at all: treat the entire text as one section, per
	// §8's "Document with no headings" boundary behaviour.
	if len(sections) == 0 {
		ct, conf := a.classifyContentType("", text)
		sections = append(sections, Section{
			Body:            text,
			ContentType:     ct,
			Confidence:      conf,
			Characteristics: characteristicsFor(ct, "", text),
		})
	}

	return sections
}

type headingEntry struct {
	level int
	text  string
}

func pushHeading(stack []headingEntry, level int, text string) []headingEntry {
	for len(stack) > 0 && stack[len(stack)-1].level >= level {
		stack = stack[:len(stack)-1]
	}
	return append(stack, headingEntry{level: level, text: text})
}

func pathOf(stack []headingEntry) []string {
	path := make([]string, len(stack))
	for i, e := range stack {
		path[i] = e.text
	}
	return path
}

type lineOffset struct {
	text   string
	offset int
}

func splitKeepOffsets(text string) []lineOffset {
	var out []lineOffset
	offset := 0
	for _, raw := range strings.SplitAfter(text, "\n") {
		out = append(out, lineOffset{text: strings.TrimRight(raw, "\n"), offset: offset})
		offset += len(raw)
	}
	return out
}

func joinLines(lines []lineOffset) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.text
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func byteOffsetOfLine(lines []lineOffset, idx int) int {
	if idx < 0 || idx >= len(lines) {
		if len(lines) > 0 {
			return lines[len(lines)-1].offset
		}
		return 0
	}
	return lines[idx].offset
}

func pageForOffset(hints format.Hints, offset int) int {
	best := 0
	bestOffset := -1
	for o, page := range hints.PageOffsets {
		if o <= offset && o > bestOffset {
			bestOffset, best = o, page
		}
	}
	return best
}

type boundary struct {
	lineIndex int
	level     int
	text      string
}

// headingBoundaries implements §4.2's heading detection: markdown `#`
// markers (rule a) take priority when hints are present; otherwise a
// line qualifies if it is short, punctuation-free, title/caps-cased, and
// blank-line delimited (rule b).
func (a *Analyzer) headingBoundaries(lines []lineOffset, hints format.Hints) []boundary {
	var out []boundary

	if len(hints.HeadingOffsets) > 0 {
		for i, l := range lines {
			if level, ok := hints.HeadingOffsets[l.offset]; ok {
				out = append(out, boundary{lineIndex: i, level: level, text: strings.TrimSpace(stripMarkdownHash(l.text))})
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	for i, l := range lines {
		trimmed := strings.TrimSpace(l.text)
		if m := markdownHeadingLineRe.FindStringSubmatch(trimmed); m != nil {
			out = append(out, boundary{lineIndex: i, level: len(m[1]), text: strings.TrimSpace(m[2])})
			continue
		}
		if isImplicitHeading(lines, i) {
			out = append(out, boundary{lineIndex: i, level: 1, text: trimmed})
		}
	}
	return out
}

func stripMarkdownHash(s string) string {
	if m := markdownHeadingLineRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return m[2]
	}
	return s
}

func isImplicitHeading(lines []lineOffset, i int) bool {
	trimmed := strings.TrimSpace(lines[i].text)
	if trimmed == "" || len(trimmed) >= 100 {
		return false
	}
	if sentenceFinalPunct.MatchString(trimmed) {
		return false
	}
	if !isTitleOrCaps(trimmed) {
		return false
	}
	prevBlank := i == 0 || strings.TrimSpace(lines[i-1].text) == ""
	nextBlank := i+1 >= len(lines) || strings.TrimSpace(lines[i+1].text) == ""
	return prevBlank && nextBlank
}

func isTitleOrCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false // any lowercase rune disqualifies all-caps/title-case-only heuristic
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			hasLetter = true
		}
	}
	return hasLetter
}

// classifyContentType implements §4.2's content-type scoring and
// priority tie-break.
func (a *Analyzer) classifyContentType(heading, body string) (ragforge.ContentType, float64) {
	combined := heading + "\n" + body
	lengthNorm := float64(len(body)) / 1000.0
	if lengthNorm < 0.01 {
		lengthNorm = 0.01
	}

	scores := make(map[ragforge.ContentType]float64)
	for ct, cp := range contentTypePatterns {
		var raw float64
		for _, p := range cp.patterns {
			raw += float64(len(p.FindAllString(combined, -1))) * 0.1
		}
		lower := strings.ToLower(combined)
		for _, kw := range cp.keywords {
			raw += float64(strings.Count(lower, kw)) * 0.05
		}
		score := (raw / lengthNorm) * typeWeights[ct]
		if score <= 0 {
			continue // no pattern or keyword hit: not a candidate
		}
		if threshold, ok := rejectionThresholds[ct]; ok && score < threshold {
			continue
		}
		scores[ct] = clamp01(score)
	}

	if len(scores) == 0 {
		return ragforge.ContentText, 0
	}

	// Among types that scored, pick by the §4.2 priority rule rather
	// than raw max, so a numbered procedure never loses to
	// tableOfContents merely because digits matched too.
	for _, ct := range priority {
		if score, ok := scores[ct]; ok {
			return ct, score
		}
	}
	return ragforge.ContentText, scores[ragforge.ContentText]
}

func characteristicsFor(ct ragforge.ContentType, heading, body string) Characteristics {
	lower := strings.ToLower(body)
	c := Characteristics{
		IsProcedural:   ct == ragforge.ContentInstructions || procedureHeadingRe.MatchString(heading),
		HasStepByStep:  contentTypePatterns[ragforge.ContentInstructions].patterns[0].MatchString(body) || contentTypePatterns[ragforge.ContentInstructions].patterns[1].MatchString(body),
		HasDefinitions: ct == ragforge.ContentDefinitions,
		HasExamples:    ct == ragforge.ContentExamples || strings.Contains(lower, "example"),
		HasWarnings:    warningRe.MatchString(body),
	}
	c.PreserveSequence = c.IsProcedural && c.HasStepByStep
	switch {
	case c.IsProcedural:
		c.RecommendedStrategy = "semantic_with_procedures"
	case ct == ragforge.ContentFAQ:
		c.RecommendedStrategy = "qa_pair_preservation"
	default:
		c.RecommendedStrategy = "adaptive_semantic"
	}
	return c
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

