package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// labelTable maps graph output indices to BIO tag names ("O", "B-PER", ...).
type labelTable map[int]string

func loadLabelTable(path string) (labelTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var byName map[string]string
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	table := make(labelTable, len(byName))
	usable := false
	for k, tag := range byName {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%s: label index %q is not a number", path, k)
		}
		table[idx] = tag
		if strings.HasPrefix(tag, "B-") {
			usable = true
		}
	}
	if !usable {
		return nil, fmt.Errorf("%s: no B- tags, label vocabulary unsupported", path)
	}
	return table, nil
}

// decodePositions turns per-position logits into one tag and score per word,
// taking the distribution of each word's first piece.
func decodePositions(enc *encoding, logits [][]float32, table labelTable) (tags []string, scores []float64, err error) {
	tags = make([]string, len(enc.words))
	scores = make([]float64, len(enc.words))
	seen := make([]bool, len(enc.words))
	for pos, wi := range enc.positionWord {
		if wi < 0 || seen[wi] {
			continue
		}
		seen[wi] = true
		probs := softmax(logits[pos])
		best, bestScore := 0, probs[0]
		for i, p := range probs {
			if p > bestScore {
				best, bestScore = i, p
			}
		}
		tag, ok := table[best]
		if !ok {
			return nil, nil, fmt.Errorf("graph emitted label index %d outside the vocabulary", best)
		}
		tags[wi] = tag
		scores[wi] = bestScore
	}
	// Truncated words never got a position; leave them outside any span.
	for wi := range tags {
		if !seen[wi] {
			tags[wi] = "O"
		}
	}
	return tags, scores, nil
}

func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v - max))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// assembleSpans merges word-level BIO tags into entity spans. A span's score
// is the mean of its member words' scores.
func assembleSpans(text string, words []word, tags []string, scores []float64) []Span {
	var out []Span
	var cur *Span
	var members float64

	flush := func() {
		if cur == nil {
			return
		}
		cur.Score /= math.Max(1, members)
		cur.Text = text[cur.Start:cur.End]
		out = append(out, *cur)
		cur, members = nil, 0
	}

	for i := range words {
		prefix, entity, ok := splitTag(tags[i])
		if !ok {
			flush()
			continue
		}
		label := canonicalLabel(entity)
		if prefix == "B" || cur == nil || cur.Label != label {
			flush()
			cur = &Span{Label: label, Start: words[i].start, End: words[i].end, Score: scores[i]}
			members = 1
			continue
		}
		cur.End = words[i].end
		cur.Score += scores[i]
		members++
	}
	flush()
	return out
}

func splitTag(tag string) (prefix, entity string, ok bool) {
	if tag == "" || tag == "O" {
		return "", "", false
	}
	prefix, entity, found := strings.Cut(tag, "-")
	if !found || (prefix != "B" && prefix != "I") {
		return "", "", false
	}
	return prefix, entity, true
}

// canonicalLabel maps model tag vocabulary to the lowercase label names the
// API speaks.
func canonicalLabel(entity string) string {
	switch strings.ToUpper(entity) {
	case "PER", "PERSON":
		return "person"
	case "ORG", "ORGANIZATION":
		return "organization"
	case "LOC", "GPE", "LOCATION":
		return "location"
	case "DATE":
		return "date"
	case "MISC":
		return "miscellaneous"
	default:
		return strings.ToLower(entity)
	}
}

// filterSpans keeps spans matching one of the requested labels at or above
// threshold, sorted by (start, end) with duplicate triples removed.
func filterSpans(spans []Span, requested []string, threshold float64) []Span {
	want := make(map[string]bool, len(requested))
	for _, l := range requested {
		want[strings.ToLower(strings.TrimSpace(l))] = true
	}
	kept := spans[:0]
	for _, s := range spans {
		if s.Score >= threshold && want[s.Label] {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Start == kept[j].Start {
			return kept[i].End < kept[j].End
		}
		return kept[i].Start < kept[j].Start
	})
	out := kept[:0]
	for _, s := range kept {
		if n := len(out); n > 0 && out[n-1].Start == s.Start && out[n-1].End == s.End && out[n-1].Label == s.Label {
			if s.Score > out[n-1].Score {
				out[n-1] = s
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
