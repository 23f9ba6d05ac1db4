package embedding

import (
	"sort"
	"strings"
)

// stopWords is a small, fixed stop-word list used by keyword extraction
// for the semantic embedding kind (§4.4) and shared in spirit with the
// query classifier's stop-word filtering (§4.7).
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "to": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "with": {}, "by": {}, "from": {}, "as": {}, "that": {},
	"this": {}, "it": {}, "its": {}, "into": {}, "about": {}, "can": {}, "will": {}, "shall": {},
	"if": {}, "then": {}, "than": {}, "so": {}, "not": {}, "no": {}, "do": {}, "does": {},
}

// TopKeywords returns up to k content words ranked by frequency, used to
// build the semantic embedding's input text (§4.4: "top-K keywords
// (K=10)").
func TopKeywords(text string, k int) []string {
	freq := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if w == "" {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		freq[w]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > k {
		words = words[:k]
	}
	return words
}

// DomainTerms returns every lexicon term that appears (case-insensitive)
// in text, preserving lexicon order, used to enrich the semantic
// embedding's input with configured domain vocabulary (§4.4: "detected
// domain terms (from a configurable lexicon, e.g. fund management)").
func DomainTerms(text string, lexicon []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range lexicon {
		if strings.Contains(lower, strings.ToLower(term)) {
			found = append(found, term)
		}
	}
	return found
}
