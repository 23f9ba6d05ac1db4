// Package format provides FormatReader implementations — the consumed
// interface of §6: "Read(filePath) → (textUTF8, hints)". Raw format
// parsing is not the point of this module (§1 Non-goals), but the
// detector and chunker need real text to operate on end to end, so
// concrete readers are shipped for every format §4.1 recognises.
//
// Grounded on pkg/rag/native_parsers.go's pdf/docx bodies, generalized
// behind one Reader interface instead of a fixed registry of two parser
// structs.
package format

import (
	"context"

	"github.com/kadirpekel/ragforge"
)

// Hints carries optional structural cues a reader was able to recover
// while extracting text, consumed by the structure analyzer when present
// (§6: "When a reader lacks hints, the structure analyzer operates on
// text alone").
type Hints struct {
	// ParagraphBoundaries are byte offsets into Text marking paragraph
	// starts, in ascending order.
	ParagraphBoundaries []int
	// HeadingOffsets maps a byte offset into Text to a heading level
	// (1-6), for formats whose container format carries real heading
	// markup (markdown, html) rather than relying on text-only
	// detection.
	HeadingOffsets map[int]int
	// PageOffsets maps a byte offset into Text to a 1-based page number,
	// for paginated formats (pdf).
	PageOffsets map[int]int
}

// Result is what a Reader returns: UTF-8 text plus whatever structural
// hints it could recover.
type Result struct {
	Text  string
	Hints Hints
}

// Reader extracts UTF-8 text (and optional hints) from one source
// format.
type Reader interface {
	// Format reports the format this reader handles.
	Format() ragforge.Format
	// Read extracts text from the file at path. It tolerates partial
	// failure internally (e.g. one bad PDF page) rather than aborting,
	// per §4.9 — only a totally unreadable file returns an error.
	Read(ctx context.Context, path string) (Result, error)
}

// Registry resolves a Format to its Reader. A missing entry is not an
// error condition for callers — detector.go falls back to a synthetic
// metadata-only text per §4.1 rule 2.
type Registry struct {
	readers map[ragforge.Format]Reader
}

// NewRegistry builds a Registry preloaded with every reader this package
// ships.
func NewRegistry() *Registry {
	r := &Registry{readers: make(map[ragforge.Format]Reader)}
	for _, reader := range []Reader{
		newPDFReader(),
		newDOCXReader(),
		newMarkdownReader(),
		newHTMLReader(),
		newTextReader(),
	} {
		r.Register(reader)
	}
	return r
}

// Register adds or replaces the reader for its format.
func (r *Registry) Register(reader Reader) {
	r.readers[reader.Format()] = reader
}

// Lookup returns the reader for a format, and whether one was found.
func (r *Registry) Lookup(f ragforge.Format) (Reader, bool) {
	reader, ok := r.readers[f]
	return reader, ok
}
