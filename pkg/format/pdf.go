package format

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kadirpekel/ragforge"
)

// pdfReader extracts text page by page, tolerating per-page failures
// rather than aborting the whole document — grounded on
// pkg/rag/native_parsers.go's pdfParser, which does the same "--- Page N
// ---" marker join and continues past a page extraction error instead of
// failing the file.
type pdfReader struct{}

func newPDFReader() *pdfReader { return &pdfReader{} }

func (r *pdfReader) Format() ragforge.Format { return ragforge.FormatPDF }

func (r *pdfReader) Read(ctx context.Context, path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("format: open pdf: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("format: stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return Result{}, fmt.Errorf("format: parse pdf: %w", err)
	}

	var b strings.Builder
	pageOffsets := make(map[int]int)
	total := reader.NumPage()

	for pageNum := 1; pageNum <= total; pageNum++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A bad page degrades the page, not the document.
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "--- Page %d (extraction failed: %v) ---", pageNum, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		pageOffsets[b.Len()] = pageNum
		fmt.Fprintf(&b, "--- Page %d ---\n%s", pageNum, text)
	}

	return Result{
		Text:  b.String(),
		Hints: Hints{PageOffsets: pageOffsets},
	}, nil
}
