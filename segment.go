package svve

// segmentRange is a half-open coordinate interval [Start, End) over the
// embedding space.
type segmentRange struct {
	Start int
	End   int
}

// segmentRanges partitions [0, dim) into exactly count contiguous ranges.
// The base length is dim/count and the first dim%count ranges take one
// extra coordinate, so range lengths differ by at most one.
func segmentRanges(dim, count int) []segmentRange {
	ranges := make([]segmentRange, 0, count)
	baseLen := dim / count
	remainder := dim % count

	start := 0
	for i := 0; i < count; i++ {
		end := start + baseLen
		if i < remainder {
			end++
		}
		ranges = append(ranges, segmentRange{Start: start, End: end})
		start = end
	}
	return ranges
}

// buildSegmentQuery returns a vector equal to query inside rng and zero
// elsewhere. A zero-width range (possible only when dim < the segment
// count) yields the all-zero vector.
func buildSegmentQuery(query []float32, rng segmentRange) []float32 {
	projected := make([]float32, len(query))
	if rng.Start < rng.End {
		copy(projected[rng.Start:rng.End], query[rng.Start:rng.End])
	}
	return projected
}
