package svve

import "sort"

// sortTopK orders hits by score descending, ties broken by ascending
// document identifier, and truncates to at most k entries. The tie-break
// keeps equal-score runs deterministic across calls.
func sortTopK(hits []ScoredDoc, k int) []ScoredDoc {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
