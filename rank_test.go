package svve

import (
	"reflect"
	"testing"
)

func TestSortTopK_DescendingWithIDTieBreak(t *testing.T) {
	hits := []ScoredDoc{
		{ID: 7, Score: 0.5},
		{ID: 3, Score: 0.9},
		{ID: 9, Score: 0.5},
		{ID: 1, Score: 0.5},
		{ID: 4, Score: 0.7},
	}

	got := sortTopK(hits, 10)

	want := []ScoredDoc{
		{ID: 3, Score: 0.9},
		{ID: 4, Score: 0.7},
		{ID: 1, Score: 0.5},
		{ID: 7, Score: 0.5},
		{ID: 9, Score: 0.5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSortTopK_Deterministic(t *testing.T) {
	base := []ScoredDoc{
		{ID: 5, Score: 1}, {ID: 2, Score: 1}, {ID: 8, Score: 1},
		{ID: 1, Score: 1}, {ID: 9, Score: 1}, {ID: 3, Score: 1},
	}

	first := sortTopK(append([]ScoredDoc(nil), base...), 4)
	for i := 0; i < 20; i++ {
		again := sortTopK(append([]ScoredDoc(nil), base...), 4)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: expected %v, got %v", i, first, again)
		}
	}
	if first[0].ID != 1 || first[3].ID != 5 {
		t.Fatalf("tie-break by ascending id violated: %v", first)
	}
}

func TestSortTopK_Truncates(t *testing.T) {
	hits := []ScoredDoc{{ID: 1, Score: 3}, {ID: 2, Score: 2}, {ID: 3, Score: 1}}

	got := sortTopK(hits, 2)

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("unexpected order: %v", got)
	}
}
