package format

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/kadirpekel/ragforge"
)

// htmlReader does a minimal tag scan for heading hints rather than a full
// DOM parse (§4.9): good enough to recover heading offsets
// without pulling in a dedicated HTML library for a Non-goal surface.
type htmlReader struct{}

func newHTMLReader() *htmlReader { return &htmlReader{} }

func (r *htmlReader) Format() ragforge.Format { return ragforge.FormatHTML }

var (
	htmlHeadingOpenRe = regexp.MustCompile(`(?i)<h([1-6])[^>]*>`)
	htmlTagRe         = regexp.MustCompile(`<[^>]+>`)
)

func (r *htmlReader) Read(ctx context.Context, path string) (Result, error) {
	raw, err := readAll(ctx, path)
	if err != nil {
		return Result{}, err
	}

	headings := make(map[int]int)
	locs := htmlHeadingOpenRe.FindAllStringSubmatchIndex(raw, -1)
	text := htmlTagRe.ReplaceAllString(raw, "")

	// Map each heading tag's position in raw to its approximate position
	// in the stripped text by counting stripped bytes before it.
	for _, loc := range locs {
		tagStart := loc[0]
		levelStr := raw[loc[2]:loc[3]]
		level, convErr := strconv.Atoi(levelStr)
		if convErr != nil {
			continue
		}
		strippedBefore := len(htmlTagRe.ReplaceAllString(raw[:tagStart], ""))
		headings[strippedBefore] = level
	}

	return Result{
		Text:  strings.TrimSpace(text),
		Hints: Hints{HeadingOffsets: headings},
	}, nil
}
