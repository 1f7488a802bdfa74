package membase

import (
	"sort"

	"github.com/NethermindEth/eternalgov/core"
)

// Rank scores records by the share of query terms found in their content.
// Records without any overlap are dropped; k <= 0 returns every match.
func Rank(records []Record, query string, k int) []Hit {
	terms := uniqueTerms(query)
	if len(terms) == 0 {
		return nil
	}

	hits := make([]Hit, 0)
	for _, r := range records {
		content := make(map[string]bool)
		for _, t := range core.Tokenize(r.Content) {
			content[t] = true
		}
		matched := 0
		for _, t := range terms {
			if content[t] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, Hit{Record: r.clone(), Score: float64(matched) / float64(len(terms))})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Seq > hits[j].Seq
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func uniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range core.Tokenize(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
