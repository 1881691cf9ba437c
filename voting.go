package svve

import (
	"math"
	"sort"
)

// voteClass grades a document by how many segment searches returned it.
type voteClass int

const (
	// voteNoise marks documents seen by at most one segment.
	voteNoise voteClass = iota
	// voteWeak marks documents seen by exactly two segments.
	voteWeak
	// voteStrong marks documents seen by three or more segments.
	voteStrong
)

// classifyVote derives the vote class from a raw vote count.
func classifyVote(votes int) voteClass {
	switch {
	case votes >= 3:
		return voteStrong
	case votes == 2:
		return voteWeak
	default:
		return voteNoise
	}
}

// voteRecord is the per-document aggregate over all segment result lists.
type voteRecord struct {
	ID        DocID
	Votes     int
	RankScore float32
	BestScore float32
}

// mergeSegmentResults fuses per-segment result lists into ranked vote
// records. Each appearance at 0-based rank r contributes 1/(r+1) to the
// rank score, one vote, and a best-score max update. Records are ordered by
// votes desc, rank score desc, best score desc, then id asc so that equal
// aggregates rank deterministically.
func mergeSegmentResults(segmentResults [][]ScoredDoc) []voteRecord {
	aggregated := make(map[DocID]*voteRecord)

	for _, hits := range segmentResults {
		for rank, hit := range hits {
			rec, ok := aggregated[hit.ID]
			if !ok {
				rec = &voteRecord{ID: hit.ID, BestScore: float32(math.Inf(-1))}
				aggregated[hit.ID] = rec
			}
			rec.Votes++
			rec.RankScore += 1 / float32(rank+1)
			if hit.Score > rec.BestScore {
				rec.BestScore = hit.Score
			}
		}
	}

	records := make([]voteRecord, 0, len(aggregated))
	for _, rec := range aggregated {
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		if a.RankScore != b.RankScore {
			return a.RankScore > b.RankScore
		}
		if a.BestScore != b.BestScore {
			return a.BestScore > b.BestScore
		}
		return a.ID < b.ID
	})

	return records
}

// selectSurvivors filters out noise-classified records and returns the
// identifiers of the first limit records in voting order. The result is
// empty when every candidate is noise.
func selectSurvivors(records []voteRecord, limit int) []DocID {
	survivors := make([]DocID, 0, limit)
	for _, rec := range records {
		if classifyVote(rec.Votes) == voteNoise {
			continue
		}
		survivors = append(survivors, rec.ID)
		if len(survivors) == limit {
			break
		}
	}
	return survivors
}
