// Package query implements the Query Classifier (spec §4.7): a rule-based
// mapping from a natural-language query to one of the five QueryTypes,
// plus stop-word-filtered keyword extraction.
//
// Grounded on pkg/rag/extractor.go's ordered-rule-table dispatch shape
// (first matching rule wins) and this module's own pkg/embedding/keywords.go
// stop-word list, extended with simple suffix stemming.
package query

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/ragforge"
)

// rule is one classification rule: match against the lower-cased query,
// first match wins (§4.7 Rules, evaluated top to bottom).
type rule struct {
	queryType ragforge.QueryType
	matches   func(q string) bool
}

var rules = []rule{
	{
		queryType: ragforge.QueryProcedure,
		matches: func(q string) bool {
			return strings.HasPrefix(q, "how") ||
				strings.Contains(q, "steps") ||
				strings.Contains(q, "to create") ||
				strings.Contains(q, "procedure")
		},
	},
	{
		queryType: ragforge.QueryDefinition,
		matches: func(q string) bool {
			return strings.HasPrefix(q, "what is") ||
				strings.Contains(q, "means") ||
				strings.Contains(q, "definition")
		},
	},
	{
		queryType: ragforge.QueryList,
		matches: func(q string) bool {
			return strings.Contains(q, "list") ||
				strings.Contains(q, "types of") ||
				strings.Contains(q, "kinds of")
		},
	},
	{
		queryType: ragforge.QueryTroubleshoot,
		matches: func(q string) bool {
			return strings.Contains(q, "error") ||
				strings.Contains(q, "problem") ||
				strings.Contains(q, "fix") ||
				strings.Contains(q, "fails")
		},
	},
}

// Classify maps query to a QueryType per §4.7's ordered rule table,
// defaulting to QueryGeneral when nothing matches.
func Classify(query string) ragforge.QueryType {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, r := range rules {
		if r.matches(lower) {
			return r.queryType
		}
	}
	return ragforge.QueryGeneral
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "for": {}, "with": {},
	"by": {}, "from": {}, "and": {}, "or": {}, "what": {}, "how": {}, "do": {},
	"does": {}, "i": {}, "can": {}, "you": {}, "me": {}, "my": {}, "this": {},
	"that": {}, "it": {},
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Keywords extracts the stop-word-filtered, stemmed keywords from query
// (§4.7: "a list of detected query-relevant keywords (stop-word-filtered,
// stemmed)").
func Keywords(query string) []string {
	words := wordRe.FindAllString(strings.ToLower(query), -1)
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		stem := stemSuffix(w)
		if _, dup := seen[stem]; dup {
			continue
		}
		seen[stem] = struct{}{}
		out = append(out, stem)
	}
	return out
}

// stemSuffix applies a small fixed set of suffix-stripping rules — not a
// full Porter stemmer, but enough to fold "creating"/"creates" onto
// "creat" so query keywords and chunk keywords overlap more often. There
// is no "-ed" rule, so "created" stays as it is.
func stemSuffix(w string) string {
	switch {
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		return w[:len(w)-3]
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "es") && len(w) > 4:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && len(w) > 3 && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	default:
		return w
	}
}
