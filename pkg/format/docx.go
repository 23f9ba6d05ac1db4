package format

import (
	"context"
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/kadirpekel/ragforge"
)

// docxReader extracts paragraph text, grounded on
// pkg/rag/native_parsers.go's officeParser.parseWordDocument body.
type docxReader struct{}

func newDOCXReader() *docxReader { return &docxReader{} }

func (r *docxReader) Format() ragforge.Format { return ragforge.FormatDOCX }

func (r *docxReader) Read(_ context.Context, path string) (Result, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("format: open docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()

	paragraphs := strings.Split(content, "\n\n")
	boundaries := make([]int, 0, len(paragraphs))
	offset := 0
	for _, p := range paragraphs {
		boundaries = append(boundaries, offset)
		offset += len(p) + len("\n\n")
	}

	return Result{
		Text:  content,
		Hints: Hints{ParagraphBoundaries: boundaries},
	}, nil
}
