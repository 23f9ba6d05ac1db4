package format

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kadirpekel/ragforge"
)

// textReader and markdownReader are pass-through extraction: the bytes
// already are the content. markdownReader additionally scans `#`-prefixed
// lines for heading-offset hints, since the structure analyzer can use
// real markup instead of guessing at all-caps title lines.
type textReader struct{}

func newTextReader() *textReader { return &textReader{} }

func (r *textReader) Format() ragforge.Format { return ragforge.FormatText }

func (r *textReader) Read(ctx context.Context, path string) (Result, error) {
	text, err := readAll(ctx, path)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}

type markdownReader struct{}

func newMarkdownReader() *markdownReader { return &markdownReader{} }

func (r *markdownReader) Format() ragforge.Format { return ragforge.FormatMarkdown }

var markdownHeadingRe = regexp.MustCompile(`^(#{1,6})\s+`)

func (r *markdownReader) Read(ctx context.Context, path string) (Result, error) {
	text, err := readAll(ctx, path)
	if err != nil {
		return Result{}, err
	}

	headings := make(map[int]int)
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if m := markdownHeadingRe.FindStringSubmatch(line); m != nil {
			headings[offset] = len(m[1])
		}
		offset += len(line)
	}

	return Result{
		Text:  text,
		Hints: Hints{HeadingOffsets: headings},
	}, nil
}

func readAll(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("format: open %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("format: read %s: %w", path, err)
	}
	return b.String(), nil
}
