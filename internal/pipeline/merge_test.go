package pipeline

import (
	"testing"

	"spotter/internal/model"
)

func TestMergeOverlapping_Empty(t *testing.T) {
	if got := MergeOverlapping(nil); len(got) != 0 {
		t.Fatalf("got = %+v", got)
	}
}

func TestMergeOverlapping_SameSpanKeepsHigherScore(t *testing.T) {
	got := MergeOverlapping([]model.Span{
		{Label: "person", Start: 0, End: 10, Score: 0.6},
		{Label: "organization", Start: 0, End: 10, Score: 0.9},
	})
	if len(got) != 1 || got[0].Score != 0.9 || got[0].Label != "organization" {
		t.Fatalf("got = %+v", got)
	}
}

func TestMergeOverlapping_LargerSpanWins(t *testing.T) {
	got := MergeOverlapping([]model.Span{
		{Label: "person", Start: 0, End: 10, Score: 0.6},
		{Label: "person", Start: 4, End: 8, Score: 0.99},
	})
	if len(got) != 1 || got[0].End != 10 {
		t.Fatalf("got = %+v", got)
	}
}

func TestMergeOverlapping_DisjointUntouchedAndSorted(t *testing.T) {
	got := MergeOverlapping([]model.Span{
		{Label: "location", Start: 20, End: 29, Score: 0.8},
		{Label: "person", Start: 0, End: 10, Score: 0.9},
	})
	if len(got) != 2 || got[0].Start != 0 || got[1].Start != 20 {
		t.Fatalf("got = %+v", got)
	}
}
