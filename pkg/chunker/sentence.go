package chunker

import (
	"regexp"
	"strings"
)

// abbreviations suppress a false sentence boundary after common
// abbreviations (§4.3 step 5: "suppression for abbreviations").
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "inc": {}, "ltd": {}, "co": {},
	"fig": {}, "no": {}, "vol": {}, "approx": {}, "dept": {},
}

var (
	enumeratedMarkerRe = regexp.MustCompile(`^\s*(\(?[0-9]+[.)]|\(?[a-zA-Z][.)])\s*$`)
	decimalRe          = regexp.MustCompile(`^\d+$`)
)

// SplitSentences is a finite-state splitter on terminal punctuation
// (.!?) that suppresses splits after abbreviations, enumerated item
// markers, and decimal numerics (§4.3 step 5).
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	n := len(runes)

	for i := 0; i < n; i++ {
		r := runes[i]
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Decimal numeric: a '.' between two digits is not a boundary.
		if r == '.' && i > 0 && i+1 < n && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
			continue
		}

		if precededByAbbreviation(current.String()) {
			continue
		}

		// Lookahead: only a boundary if followed by whitespace then a
		// new capital/digit, or end of text.
		j := i + 1
		for j < n && (runes[j] == ' ' || runes[j] == '\t') {
			j++
		}
		if j < n && runes[j] != '\n' && !isUpper(runes[j]) && !isDigit(runes[j]) {
			continue
		}

		sentences = append(sentences, strings.TrimSpace(current.String()))
		current.Reset()
		i = j - 1
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func precededByAbbreviation(s string) bool {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), ".")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(fields[len(fields)-1])
	if _, ok := abbreviations[last]; ok {
		return true
	}
	if enumeratedMarkerRe.MatchString(fields[len(fields)-1] + ".") {
		return true
	}
	return decimalRe.MatchString(last)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

// SplitParagraphs splits on blank-line boundaries (§4.3 step 3).
func SplitParagraphs(text string) []string {
	raw := regexp.MustCompile(`\n\s*\n+`).Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// stepBoundaryRe recognises a fully-formed numbered/lettered step start,
// used to split sequential content only between steps, never inside one
// (§4.3 step 4).
var stepBoundaryRe = regexp.MustCompile(`(?m)^\s*(?:[0-9]+[.)]|[Ss]tep\s+[0-9]+)\s+\S`)

// SplitSteps splits text at the start of each fully-formed numbered
// step, keeping each step (and any continuation lines before the next
// step marker) together.
func SplitSteps(text string) []string {
	locs := stepBoundaryRe.FindAllStringIndex(text, -1)
	if len(locs) < 2 {
		return []string{text}
	}
	var parts []string
	for i, loc := range locs {
		start := loc[0]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if part := strings.TrimSpace(text[start:end]); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
