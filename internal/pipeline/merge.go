package pipeline

import (
	"sort"

	"spotter/internal/model"
)

// MergeOverlapping collapses overlapping spans: identical spans keep the
// higher score, otherwise the larger span wins, with score breaking ties.
// The result is sorted by (start, end).
func MergeOverlapping(spans []model.Span) []model.Span {
	if len(spans) == 0 {
		return spans
	}

	ordered := make([]model.Span, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		li, lj := ordered[i].End-ordered[i].Start, ordered[j].End-ordered[j].Start
		if li != lj {
			return li > lj
		}
		return ordered[i].Score > ordered[j].Score
	})

	merged := make([]model.Span, 0, len(ordered))
	for _, s := range ordered {
		clash := -1
		for i, kept := range merged {
			if s.Start < kept.End && s.End > kept.Start {
				clash = i
				break
			}
		}
		if clash < 0 {
			merged = append(merged, s)
			continue
		}
		kept := merged[clash]
		sameSpan := s.Start == kept.Start && s.End == kept.End
		if (sameSpan && s.Score > kept.Score) || (!sameSpan && s.End-s.Start > kept.End-kept.Start) {
			merged[clash] = s
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Start == merged[j].Start {
			return merged[i].End < merged[j].End
		}
		return merged[i].Start < merged[j].Start
	})
	return merged
}
