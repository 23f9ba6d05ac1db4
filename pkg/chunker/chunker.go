// Package chunker implements the Hierarchical Chunker (spec §4.3): a
// forest of chunks at scales document → section → paragraph → sentence,
// with edges populated and the §3 invariants satisfied.
//
// Grounded on pkg/rag/chunker.go's Config/Strategy shape and
// pkg/rag/chunker_simple.go's splitting-and-merging body, generalized
// from flat fixed-size chunks into a scale-banded forest.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/ragforge"
	"github.com/kadirpekel/ragforge/pkg/quality"
	"github.com/kadirpekel/ragforge/pkg/structure"
	"github.com/kadirpekel/ragforge/pkg/utils"
)

// Band is a token-count target range for one scale (§3). The hard
// limits that apply regardless of target are Config.HardMinTokens and
// Config.HardMaxTokens.
type Band struct {
	TargetMin int
	TargetMax int
}

// Config configures the chunker (§3, §6).
type Config struct {
	DocumentBand  Band
	SectionBand   Band
	ParagraphBand Band
	SentenceBand  Band

	HardMinTokens int
	HardMaxTokens int

	SentenceSimilarityThreshold float64
	MinChunkQuality             float64

	// SemanticBoundaryRefinement enables the optional adjacent-paragraph
	// merge pass of §4.3 step 7.
	SemanticBoundaryRefinement bool
}

func (c *Config) SetDefaults() {
	if c.DocumentBand == (Band{}) {
		c.DocumentBand = Band{TargetMin: 4000, TargetMax: 8000}
	}
	if c.SectionBand == (Band{}) {
		c.SectionBand = Band{TargetMin: 500, TargetMax: 2000}
	}
	if c.ParagraphBand == (Band{}) {
		c.ParagraphBand = Band{TargetMin: 100, TargetMax: 500}
	}
	if c.SentenceBand == (Band{}) {
		c.SentenceBand = Band{TargetMin: 20, TargetMax: 150}
	}
	if c.HardMinTokens == 0 {
		c.HardMinTokens = 20
	}
	if c.HardMaxTokens == 0 {
		c.HardMaxTokens = 10000
	}
	if c.SentenceSimilarityThreshold == 0 {
		c.SentenceSimilarityThreshold = 0.3
	}
	if c.MinChunkQuality == 0 {
		c.MinChunkQuality = 0.4
	}
}

func (c *Config) Validate() error {
	if c.HardMinTokens <= 0 || c.HardMaxTokens <= c.HardMinTokens {
		return fmt.Errorf("chunker: invalid hard token bounds")
	}
	return nil
}

// Input is everything the chunker needs beyond configuration: the
// source identity, the full extracted text, and the structural analysis
// of that text.
type Input struct {
	SourceID            string
	Version             string
	ContentHash         string
	Language            string
	Sections            []structure.Section
	DocumentIsInstructional bool
}

// Chunker is the Hierarchical Chunker.
type Chunker struct {
	config Config
	tokens *utils.TokenCounter
}

func New(cfg Config, tokens *utils.TokenCounter) *Chunker {
	cfg.SetDefaults()
	return &Chunker{config: cfg, tokens: tokens}
}

// node is the chunker's working representation before conversion to
// ragforge.Chunk — ordinal tracks emission order for deterministic ID
// derivation, and rejected children are promoted to rejected's parent.
type node struct {
	ordinal      int
	scale        ragforge.Scale
	content      string
	heading      string
	sectionPath  []string
	pageNumber   int
	contentType  ragforge.ContentType
	confidence   float64
	instructional float64
	parent       *node
	children     []*node
	characteristics structure.Characteristics
}

// Chunk runs the full §4.3 algorithm and returns the surviving chunk
// forest, flattened in reading order.
func (ck *Chunker) Chunk(in Input, fullText string) ([]*ragforge.Chunk, []string, error) {
	var warnings []string
	ordinal := 0
	nextOrdinal := func() int { o := ordinal; ordinal++; return o }

	// Step 1: one document-scale chunk.
	docContent := fullText
	docTokens := ck.tokens.Count(docContent)
	if docTokens > ck.config.DocumentBand.TargetMax {
		docContent = ck.truncateToTokens(docContent, ck.config.DocumentBand.TargetMax)
	}
	docNode := &node{
		ordinal:     nextOrdinal(),
		scale:       ragforge.ScaleDocument,
		content:     docContent,
		contentType: ragforge.ContentText,
		instructional: instructionalValue(in.DocumentIsInstructional, ragforge.ContentText),
	}

	if len(in.Sections) == 0 {
		warnings = append(warnings, "empty document: no sections detected")
	}

	// Step 2: one section-scale chunk per detected section, parented by
	// nearest ancestor of lower level or the document.
	var sectionStack []*node // stack of (level, node) by section nesting
	var levelStack []int

	for _, sec := range in.Sections {
		if strings.TrimSpace(sec.Body) == "" && sec.Heading == "" {
			continue // empty sections emit no chunk
		}
		for len(levelStack) > 0 && levelStack[len(levelStack)-1] >= sec.Level {
			levelStack = levelStack[:len(levelStack)-1]
			sectionStack = sectionStack[:len(sectionStack)-1]
		}
		var parent *node
		if len(sectionStack) > 0 {
			parent = sectionStack[len(sectionStack)-1]
		} else {
			parent = docNode
		}

		secNode := &node{
			ordinal:         nextOrdinal(),
			scale:           ragforge.ScaleSection,
			content:         sec.Body,
			heading:         sec.Heading,
			sectionPath:     sec.SectionPath,
			pageNumber:      sec.PageNumber,
			contentType:     sec.ContentType,
			confidence:      sec.Confidence,
			instructional:   instructionalValue(in.DocumentIsInstructional, sec.ContentType),
			parent:          parent,
			characteristics: sec.Characteristics,
		}
		parent.children = append(parent.children, secNode)

		levelStack = append(levelStack, sec.Level)
		sectionStack = append(sectionStack, secNode)

		ck.emitParagraphs(secNode, nextOrdinal)
	}

	// Step 7: optional semantic boundary refinement across sibling
	// paragraphs of every section.
	if ck.config.SemanticBoundaryRefinement {
		for _, sec := range flattenByScale(docNode, ragforge.ScaleSection) {
			ck.mergeSimilarSiblings(sec)
		}
	}

	// Step 8: quality-gate every chunk; a rejection promotes children to
	// the rejected node's parent.
	ck.pruneByQuality(docNode)

	chunks := ck.flattenToChunks(in, docNode)
	return chunks, warnings, nil
}

// emitParagraphs implements §4.3 steps 3-6 for one section: split on
// blank lines, merge short paragraphs into the previous one, pass each
// through splitOversizeParagraph, then descend into sentences.
func (ck *Chunker) emitParagraphs(sectionNode *node, nextOrdinal func() int) {
	var paragraphs []string
	if sectionNode.characteristics.PreserveSequence {
		paragraphs = SplitSteps(sectionNode.content)
	} else {
		paragraphs = SplitParagraphs(sectionNode.content)
	}
	paragraphs = ck.mergeShortParagraphs(paragraphs)

	for _, p := range paragraphs {
		p = ck.splitOversizeParagraph(p)
		paraNode := &node{
			ordinal:         nextOrdinal(),
			scale:           ragforge.ScaleParagraph,
			content:         p,
			heading:         sectionNode.heading,
			sectionPath:     sectionNode.sectionPath,
			pageNumber:      sectionNode.pageNumber,
			contentType:     sectionNode.contentType,
			confidence:      sectionNode.confidence,
			instructional:   sectionNode.instructional,
			parent:          sectionNode,
			characteristics: sectionNode.characteristics,
		}
		sectionNode.children = append(sectionNode.children, paraNode)

		ck.emitSentences(paraNode, nextOrdinal)
	}
}

func (ck *Chunker) mergeShortParagraphs(paragraphs []string) []string {
	var out []string
	for _, p := range paragraphs {
		if len(out) > 0 && ck.tokens.Count(p) < ck.config.ParagraphBand.TargetMin {
			out[len(out)-1] = out[len(out)-1] + "\n\n" + p
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitOversizeParagraph handles a paragraph over the band maximum. It
// never splits a paragraph into several: a paragraph of more than one
// sentence is truncated to HardMaxTokens, and a single-sentence
// paragraph is returned whole.
func (ck *Chunker) splitOversizeParagraph(p string) string {
	if ck.tokens.Count(p) <= ck.config.ParagraphBand.TargetMax {
		return p
	}
	sentences := SplitSentences(p)
	if len(sentences) > 1 {
		// Text past HardMaxTokens is dropped, not carried into another
		// paragraph.
		return ck.truncateToTokens(p, ck.config.HardMaxTokens)
	}
	mid := len(p) / 2
	for i := mid; i < len(p); i++ {
		if p[i] == ' ' {
			return p
		}
	}
	return p
}

func (ck *Chunker) emitSentences(paraNode *node, nextOrdinal func() int) {
	sentences := SplitSentences(paraNode.content)
	if len(sentences) <= 1 {
		return
	}
	for _, s := range sentences {
		if ck.tokens.Count(s) < ck.config.HardMinTokens {
			continue
		}
		sentNode := &node{
			ordinal:         nextOrdinal(),
			scale:           ragforge.ScaleSentence,
			content:         s,
			heading:         paraNode.heading,
			sectionPath:     paraNode.sectionPath,
			pageNumber:      paraNode.pageNumber,
			contentType:     paraNode.contentType,
			confidence:      paraNode.confidence,
			instructional:   paraNode.instructional,
			parent:          paraNode,
			characteristics: paraNode.characteristics,
		}
		paraNode.children = append(paraNode.children, sentNode)
	}
}

// mergeSimilarSiblings implements §4.3 step 7 using a TF-IDF-free
// word-overlap cosine as the "else" branch of "using a provider
// embedding if enabled, else a TF-IDF cosine" — the embedder runs after
// chunking in this pipeline (§5 ordering), so only the stand-in
// similarity is available here.
func (ck *Chunker) mergeSimilarSiblings(sectionNode *node) {
	children := sectionNode.children
	var merged []*node
	for _, c := range children {
		if len(merged) == 0 {
			merged = append(merged, c)
			continue
		}
		prev := merged[len(merged)-1]
		sim := wordOverlapCosine(lastSentence(prev.content), firstSentence(c.content))
		combinedTokens := ck.tokens.Count(prev.content) + ck.tokens.Count(c.content)
		if sim > ck.config.SentenceSimilarityThreshold && combinedTokens <= ck.config.ParagraphBand.TargetMax {
			prev.content += "\n\n" + c.content
			prev.children = append(prev.children, c.children...)
			for _, gc := range c.children {
				gc.parent = prev
			}
			continue
		}
		merged = append(merged, c)
	}
	sectionNode.children = merged
}

func lastSentence(text string) string {
	s := SplitSentences(text)
	if len(s) == 0 {
		return text
	}
	return s[len(s)-1]
}

func firstSentence(text string) string {
	s := SplitSentences(text)
	if len(s) == 0 {
		return text
	}
	return s[0]
}

func wordOverlapCosine(a, b string) float64 {
	wa := wordFreq(a)
	wb := wordFreq(b)
	var dot, na, nb float64
	for w, fa := range wa {
		fb := wb[w]
		dot += float64(fa * fb)
		na += float64(fa * fa)
	}
	for _, fb := range wb {
		nb += float64(fb * fb)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func wordFreq(text string) map[string]int {
	freq := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		freq[w]++
	}
	return freq
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// pruneByQuality scores every node, and for any below the configured
// minimum, removes it while promoting its children to its own parent
// (§4.3 step 8).
func (ck *Chunker) pruneByQuality(n *node) {
	var walk func(*node) []*node
	walk = func(cur *node) []*node {
		var survivors []*node
		for _, child := range cur.children {
			child.children = walk(child)
			if ck.scoreNode(child) < ck.config.MinChunkQuality && child.scale != ragforge.ScaleDocument {
				survivors = append(survivors, child.children...)
				for _, promoted := range child.children {
					promoted.parent = cur
				}
				continue
			}
			survivors = append(survivors, child)
		}
		return survivors
	}
	n.children = walk(n)
}

func (ck *Chunker) scoreNode(n *node) float64 {
	wordCount := len(strings.Fields(n.content))
	return quality.Score(quality.ChunkContext{
		WordCount:               wordCount,
		HasStepByStep:           n.characteristics.HasStepByStep,
		HasProcedures:           n.characteristics.IsProcedural,
		ParentIsProcedural:      n.parent != nil && n.parent.characteristics.IsProcedural,
		HasDefinitions:          n.characteristics.HasDefinitions,
		IsDefinitionBlock:       n.contentType == ragforge.ContentDefinitions,
		HasExamples:             n.characteristics.HasExamples,
		IsExampleBlock:          n.contentType == ragforge.ContentExamples,
		IsTableOfContents:       n.contentType == ragforge.ContentTableOfContents,
		DocumentIsInstructional: n.instructional > 0.5,
	})
}

func instructionalValue(documentIsInstructional bool, ct ragforge.ContentType) float64 {
	if ct == ragforge.ContentInstructions {
		return 0.9
	}
	if documentIsInstructional {
		return 0.6
	}
	return 0.3
}

func flattenByScale(root *node, scale ragforge.Scale) []*node {
	var out []*node
	var walk func(*node)
	walk = func(n *node) {
		if n.scale == scale {
			out = append(out, n)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, c := range root.children {
		walk(c)
	}
	return out
}

// flattenToChunks converts the node forest to ragforge.Chunk records in
// reading order, assigning deterministic IDs and wiring parent/child/
// sibling edges (§4.3 step 6).
func (ck *Chunker) flattenToChunks(in Input, root *node) []*ragforge.Chunk {
	var ordered []*node
	var walk func(*node)
	walk = func(n *node) {
		ordered = append(ordered, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ordinal < ordered[j].ordinal })

	ids := make(map[*node]string, len(ordered))
	for _, n := range ordered {
		ids[n] = ragforge.NewChunkID(in.ContentHash, n.scale, n.sectionPath, n.ordinal)
	}

	chunks := make([]*ragforge.Chunk, 0, len(ordered))
	for _, n := range ordered {
		content := n.content
		chunk := &ragforge.Chunk{
			ChunkID:               ids[n],
			SourceID:              in.SourceID,
			Version:               in.Version,
			Scale:                 n.scale,
			Content:               content,
			Heading:               n.heading,
			SectionPath:           n.sectionPath,
			PageNumber:            n.pageNumber,
			TokenCount:            ck.tokens.Count(content),
			WordCount:             len(strings.Fields(content)),
			CharacterCount:        len([]rune(content)),
			ContentType:           n.contentType,
			ContentTypeConfidence: n.confidence,
			QualityScore:          ck.scoreNode(n),
			InstructionalValue:    n.instructional,
			Language:              in.Language,
			Embeddings:            make(map[ragforge.EmbeddingKind][]float32),
		}
		if n.parent != nil {
			chunk.ParentChunkID = ids[n.parent]
			chunk.HierarchyPath = hierarchyPath(n, ids)
		}
		for _, c := range n.children {
			chunk.ChildChunkIDs = append(chunk.ChildChunkIDs, ids[c])
		}
		if n.parent != nil {
			for _, sib := range n.parent.children {
				if sib != n {
					chunk.SiblingChunkIDs = append(chunk.SiblingChunkIDs, ids[sib])
				}
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func hierarchyPath(n *node, ids map[*node]string) []string {
	if n == nil || n.parent == nil {
		return nil
	}
	return append(hierarchyPath(n.parent, ids), ids[n.parent])
}

// truncateToTokens greedily keeps whole words until the token budget is
// exhausted, used for the document-scale summary (§4.3 step 1) and as a
// last-resort cap on oversize paragraphs.
func (ck *Chunker) truncateToTokens(text string, maxTokens int) string {
	words := strings.Fields(text)
	lo, hi := 0, len(words)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ck.tokens.Count(strings.Join(words[:mid], " ")) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.Join(words[:lo], " ")
}
