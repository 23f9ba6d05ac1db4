// Package ragforge defines the entities shared by every component of the
// ingestion and retrieval pipeline: Source, Chunk, and the transient
// QueryResultItem (spec §3). These are closed algebraic records rather
// than inline maps, so that an unrecognised field is a compile error
// instead of a silently-dropped key (per the redesign notes in §9).
package ragforge

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Format is a detected source document format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatUnknown  Format = "unknown"
)

// DocumentType is a detected document genre, used to pick a processing
// strategy (§4.1).
type DocumentType string

const (
	TypeUserGuide      DocumentType = "userGuide"
	TypeQuickStart     DocumentType = "quickStart"
	TypeTechnicalSpec  DocumentType = "technicalSpec"
	TypeFAQ            DocumentType = "faq"
	TypeTroubleshoot   DocumentType = "troubleshooting"
	TypeUnknown        DocumentType = "unknown"
)

// SourceStatus is the lifecycle state of a Source (§3 Lifecycle).
type SourceStatus string

const (
	StatusPending   SourceStatus = "pending"
	StatusRunning   SourceStatus = "running"
	StatusCompleted SourceStatus = "completed"
	StatusFailed    SourceStatus = "failed"
	StatusCancelled SourceStatus = "cancelled"
)

// Scale is the granularity at which a Chunk was produced.
type Scale string

const (
	ScaleDocument  Scale = "document"
	ScaleSection   Scale = "section"
	ScaleParagraph Scale = "paragraph"
	ScaleSentence  Scale = "sentence"
)

// scaleRank orders scales from coarsest to finest, used to enforce the
// "parent is strictly coarser" invariant (§3).
var scaleRank = map[Scale]int{
	ScaleDocument:  0,
	ScaleSection:   1,
	ScaleParagraph: 2,
	ScaleSentence:  3,
}

// CoarserThan reports whether s is a strictly coarser scale than other,
// i.e. whether a chunk at scale s may be the parent of one at other.
func (s Scale) CoarserThan(other Scale) bool {
	return scaleRank[s] < scaleRank[other]
}

// ContentType is the semantic category of a chunk's content (§3, §4.2).
type ContentType string

const (
	ContentInstructions    ContentType = "instructions"
	ContentTableOfContents ContentType = "tableOfContents"
	ContentDefinitions     ContentType = "definitions"
	ContentExamples        ContentType = "examples"
	ContentFAQ             ContentType = "faq"
	ContentText            ContentType = "text"
)

// EmbeddingKind names one of the four vector representations a chunk may
// carry (§4.4).
type EmbeddingKind string

const (
	EmbeddingContent      EmbeddingKind = "content"
	EmbeddingContextual   EmbeddingKind = "contextual"
	EmbeddingHierarchical EmbeddingKind = "hierarchical"
	EmbeddingSemantic     EmbeddingKind = "semantic"
)

// QueryType classifies a natural-language query (§4.7).
type QueryType string

const (
	QueryProcedure    QueryType = "procedure"
	QueryDefinition   QueryType = "definition"
	QueryList         QueryType = "list"
	QueryTroubleshoot QueryType = "troubleshoot"
	QueryGeneral      QueryType = "general"
)

// Source represents one ingested document (§3).
type Source struct {
	SourceID       string
	Version        string
	ContentHash    string // hex
	ByteSize       int64
	Filename       string
	Format         Format
	DetectedType   DocumentType
	Status         SourceStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Chunk is a fragment of a Source at a given scale (§3, the "ChunkNode").
// Edges to other chunks are ID references into the store's arena, never
// direct pointers — this keeps the graph free of reference cycles and
// lets the store hold chunks independently of process memory layout.
type Chunk struct {
	ChunkID string
	SourceID string
	Version string

	Scale Scale

	Content     string
	Heading     string   // optional
	SectionPath []string // ordered, root-first

	PageNumber int // 0 means absent; pages are 1-based when present

	TokenCount     int
	WordCount      int
	CharacterCount int

	ContentType           ContentType
	ContentTypeConfidence float64

	QualityScore       float64
	InstructionalValue float64

	Language string // ISO code

	ParentChunkID  string   // empty means root
	ChildChunkIDs  []string // set, order not significant
	SiblingChunkIDs []string // ordered list, reading order

	HierarchyPath []string // ordered ancestor chunkIds, root-first

	// Embeddings maps embedding kind to a dense vector. All vectors
	// present on a chunk, and across the whole store, share length D.
	Embeddings map[EmbeddingKind][]float32
}

// HasParent reports whether c is a non-root chunk.
func (c *Chunk) HasParent() bool {
	return c.ParentChunkID != ""
}

// Dimension returns the vector length D shared by every embedding kind
// present on the chunk, and false if the chunk carries no embeddings yet.
func (c *Chunk) Dimension() (int, bool) {
	for _, v := range c.Embeddings {
		return len(v), true
	}
	return 0, false
}

// Citation is the provenance record attached to a QueryResultItem.
type Citation struct {
	SourceID    string
	Version     string
	Heading     string
	SectionPath []string
	PageNumber  int
}

// QueryResultItem is a transient ranked result returned by the retriever
// (§3, §4.8). It is never persisted.
type QueryResultItem struct {
	ChunkID        string
	RetrievalScore float64 // in [0,1]
	Strategy       string  // tag identifying which searcher contributed the largest score component
	Citation       Citation
}

// VectorMatch is one hit from a ChunkStore's ANN search (§4.5/§4.8),
// shared between pkg/store (the producer) and pkg/retrieval (the
// consumer) so the two packages' interfaces agree on a single type
// instead of two structurally-identical-but-distinct ones.
type VectorMatch struct {
	ChunkID string
	Score   float64
}

// LexicalMatch is one hit from a ChunkStore's BM25 search (§4.5/§4.8).
type LexicalMatch struct {
	ChunkID string
	Score   float64
}

// namespaceRagforge is the fixed UUIDv5 namespace all deterministic IDs
// are derived under, so that re-ingesting identical bytes under
// identical configuration reproduces identical chunkIds (§8 property 3).
var namespaceRagforge = uuid.MustParse("6f7a6e9a-6e2a-4b1d-9c7a-1f2e4d6b8a3c")

// NewSourceID derives a deterministic sourceId from a content hash. Two
// uploads of byte-identical content get the same sourceId, satisfying the
// re-ingestion supersede semantics of §4.5.
func NewSourceID(contentHash string) string {
	return uuid.NewSHA1(namespaceRagforge, []byte("source:"+contentHash)).String()
}

// NewChunkID derives a deterministic chunkId from the quadruple
// (contentHash, scale, sectionPath, ordinal), so identical input bytes
// and configuration always produce the same chunk graph.
func NewChunkID(contentHash string, scale Scale, sectionPath []string, ordinal int) string {
	key := strings.Join([]string{
		"chunk", contentHash, string(scale), strings.Join(sectionPath, ">"), strconv.Itoa(ordinal),
	}, "|")
	return uuid.NewSHA1(namespaceRagforge, []byte(key)).String()
}
