package svve

import (
	"context"
	"fmt"
	"math"
)

// rerankUntilStable runs expanding-limit search rounds against the corrected
// query and merges them into a per-document best-score map. Round n requests
// baseLimit*n hits, where baseLimit = max(topK, segment top-k). The loop
// stops when a round returns fewer hits than requested (backend exhausted),
// when the merged map holds at least topK entries and the top-K slice has
// been stable for two consecutive rounds, or when the round budget runs out.
func (e *Engine) rerankUntilStable(
	ctx context.Context, backend Backend, prfQuery []float32, topK int,
) ([]ScoredDoc, error) {
	if topK <= 0 {
		return nil, nil
	}

	baseLimit := topK
	if e.segmentTopK > baseLimit {
		baseLimit = e.segmentTopK
	}

	merged := make(map[DocID]float32)
	var prevTopIDs map[DocID]struct{}
	var prevScoreSum float32
	havePrev := false
	stableRounds := 0

	for round := 1; round <= e.maxRounds; round++ {
		limit := baseLimit * round
		hits, err := backend.Search(ctx, prfQuery, limit)
		if err != nil {
			return nil, fmt.Errorf("rerank round %d: %w", round, err)
		}

		for _, hit := range hits {
			// Scores only ever improve across rounds.
			if prev, ok := merged[hit.ID]; !ok || hit.Score > prev {
				merged[hit.ID] = hit.Score
			}
		}

		currentTop := topKFromMerged(merged, topK)
		currentTopIDs := make(map[DocID]struct{}, len(currentTop))
		var scoreSum float32
		for _, hit := range currentTop {
			currentTopIDs[hit.ID] = struct{}{}
			scoreSum += hit.Score
		}

		if havePrev {
			jaccard := jaccardSimilarity(prevTopIDs, currentTopIDs)
			delta := relativeScoreDelta(prevScoreSum, scoreSum)
			if jaccard >= e.stabilityJaccard && delta <= e.stabilityScoreDelta {
				stableRounds++
			} else {
				stableRounds = 0
			}
		}

		prevTopIDs = currentTopIDs
		prevScoreSum = scoreSum
		havePrev = true

		if len(hits) < limit {
			break
		}
		if len(merged) >= topK && stableRounds >= e.stableRoundsRequired {
			break
		}
	}

	ranked := make([]ScoredDoc, 0, len(merged))
	for id, score := range merged {
		ranked = append(ranked, ScoredDoc{ID: id, Score: score})
	}
	return sortTopK(ranked, topK), nil
}

func topKFromMerged(merged map[DocID]float32, topK int) []ScoredDoc {
	ranked := make([]ScoredDoc, 0, len(merged))
	for id, score := range merged {
		ranked = append(ranked, ScoredDoc{ID: id, Score: score})
	}
	return sortTopK(ranked, topK)
}

// jaccardSimilarity returns intersection size over union size. Two empty
// sets are vacuously identical, so their similarity is 1.
func jaccardSimilarity(a, b map[DocID]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	intersection := 0
	for id := range a {
		if _, ok := b[id]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

// relativeScoreDelta returns |curr-prev| relative to |prev|. The denominator
// is clamped at 1e-6 so that a zero previous sum does not divide by zero.
func relativeScoreDelta(prev, curr float32) float64 {
	denom := math.Max(math.Abs(float64(prev)), 1e-6)
	return math.Abs(float64(curr)-float64(prev)) / denom
}
