// Package rank scores documents against a free-text query. The same
// function backs both the search endpoint and chat candidate selection.
package rank

import (
	"sort"
	"strings"

	"github.com/mnbossa/agridocs/internal/docs"
)

// Weights applied during scoring. A full-query title match dominates, an
// excerpt match ranks below it, and individual token hits break further ties.
const (
	titleMatchScore   = 100
	excerptMatchScore = 50
	tokenMatchScore   = 10
)

// Rank orders the corpus by relevance to query and drops documents that do
// not match at all. Equal scores keep the corpus input order, so callers get
// deterministic output for a deterministic corpus.
func Rank(corpus []docs.Document, query string) []docs.Document {
	q := strings.ToLower(query)
	tokens := strings.Fields(q)

	type scored struct {
		score int
		doc   docs.Document
	}
	matches := make([]scored, 0, len(corpus))
	for _, d := range corpus {
		title := strings.ToLower(d.Title)
		excerpt := strings.ToLower(d.Excerpt)

		score := 0
		if q != "" && strings.Contains(title, q) {
			score += titleMatchScore
		}
		if q != "" && strings.Contains(excerpt, q) {
			score += excerptMatchScore
		}
		for _, tok := range tokens {
			// Each token counts once, no matter how often it recurs.
			if strings.Contains(title, tok) || strings.Contains(excerpt, tok) {
				score += tokenMatchScore
			}
		}
		if score > 0 {
			matches = append(matches, scored{score: score, doc: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]docs.Document, len(matches))
	for i, m := range matches {
		out[i] = m.doc
	}
	return out
}
