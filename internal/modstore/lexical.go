package modstore

import (
	"sort"
	"strings"

	"github.com/modforge/assembler/internal/domain"
)

// lexicalScore ranks mods by query-term overlap against name/summary/tags,
// the same tokenize-then-overlap shape as the teacher's simple reranker,
// applied here as the lexical leg of retrieval rather than a post-hoc
// rerank of vector results.
func lexicalScore(query string, mods []domain.Mod) []ScoredMod {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	scored := make([]ScoredMod, 0, len(mods))
	for _, m := range mods {
		docTokens := tokenize(m.Name + " " + m.Summary + " " + strings.Join(m.Tags, " "))
		overlap := termOverlap(queryTokens, docTokens)
		if overlap > 0 {
			scored = append(scored, ScoredMod{Mod: m, Score: overlap})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) > 2 && !isStopword(token) {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "this": true, "that": true, "mod": true, "mods": true,
}

func isStopword(token string) bool { return stopwords[token] }

// termOverlap returns the fraction of unique query tokens present in docTokens.
func termOverlap(queryTokens, docTokens []string) float32 {
	docSet := make(map[string]bool, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = true
	}

	matched := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		if docSet[t] {
			matched[t] = true
		}
	}
	return float32(len(matched)) / float32(len(queryTokens))
}
