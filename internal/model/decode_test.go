package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSoftmax_SumsToOne(t *testing.T) {
	probs := softmax([]float32{0.2, 0.4, 0.8})
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if sum < 0.9999 || sum > 1.0001 {
		t.Fatalf("sum = %f", sum)
	}
}

func TestSoftmax_NumericalStability(t *testing.T) {
	for _, p := range softmax([]float32{1000, 1001, 1002}) {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("bad prob %f", p)
		}
	}
}

func writeLabels(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), labelsFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLabelTable(t *testing.T) {
	table, err := loadLabelTable(writeLabels(t, `{"0":"O","1":"B-PER","2":"I-PER"}`))
	if err != nil {
		t.Fatalf("loadLabelTable: %v", err)
	}
	if table[1] != "B-PER" {
		t.Fatalf("table = %v", table)
	}
}

func TestLoadLabelTable_RejectsVocabularyWithoutBTags(t *testing.T) {
	_, err := loadLabelTable(writeLabels(t, `{"0":"O","1":"X"}`))
	if err == nil {
		t.Fatal("expected unsupported vocabulary error")
	}
}

func TestLoadLabelTable_RejectsNonNumericIndex(t *testing.T) {
	_, err := loadLabelTable(writeLabels(t, `{"zero":"O","1":"B-PER"}`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAssembleSpans_MergesBIORuns(t *testing.T) {
	text := "Steve Jobs founded Apple"
	words := splitWords(text)
	tags := []string{"B-PER", "I-PER", "O", "B-ORG"}
	scores := []float64{0.9, 0.7, 0.0, 0.95}
	spans := assembleSpans(text, words, tags, scores)
	if len(spans) != 2 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Label != "person" || spans[0].Text != "Steve Jobs" || spans[0].Start != 0 || spans[0].End != 10 {
		t.Fatalf("first = %+v", spans[0])
	}
	if got := spans[0].Score; got < 0.79 || got > 0.81 {
		t.Fatalf("merged score = %f, want mean 0.8", got)
	}
	if spans[1].Label != "organization" || spans[1].Text != "Apple" {
		t.Fatalf("second = %+v", spans[1])
	}
}

func TestAssembleSpans_BTagStartsNewSpan(t *testing.T) {
	text := "Anna Marie"
	words := splitWords(text)
	spans := assembleSpans(text, words, []string{"B-PER", "B-PER"}, []float64{0.9, 0.8})
	if len(spans) != 2 {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestAssembleSpans_DanglingITagStartsSpan(t *testing.T) {
	text := "Paris"
	spans := assembleSpans(text, splitWords(text), []string{"I-LOC"}, []float64{0.6})
	if len(spans) != 1 || spans[0].Label != "location" {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestCanonicalLabel(t *testing.T) {
	cases := map[string]string{
		"PER": "person", "PERSON": "person",
		"ORG": "organization", "LOC": "location", "GPE": "location",
		"DATE": "date", "MISC": "miscellaneous", "DRUG": "drug",
	}
	for in, want := range cases {
		if got := canonicalLabel(in); got != want {
			t.Fatalf("canonicalLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilterSpans_ThresholdAndLabels(t *testing.T) {
	spans := []Span{
		{Label: "person", Start: 0, End: 5, Score: 0.9},
		{Label: "person", Start: 10, End: 15, Score: 0.4},
		{Label: "organization", Start: 20, End: 25, Score: 0.99},
	}
	got := filterSpans(spans, []string{"person"}, 0.5)
	if len(got) != 1 || got[0].Start != 0 {
		t.Fatalf("got = %+v", got)
	}
}

func TestFilterSpans_SortsAndDeduplicates(t *testing.T) {
	spans := []Span{
		{Label: "person", Start: 10, End: 15, Score: 0.8},
		{Label: "person", Start: 0, End: 5, Score: 0.9},
		{Label: "person", Start: 0, End: 5, Score: 0.95},
	}
	got := filterSpans(spans, []string{"person"}, 0.5)
	if len(got) != 2 {
		t.Fatalf("got = %+v", got)
	}
	if got[0].Start != 0 || got[0].Score != 0.95 {
		t.Fatalf("dedup kept %+v", got[0])
	}
	if got[1].Start != 10 {
		t.Fatalf("got = %+v", got)
	}
}

func TestFilterSpans_ThresholdOfOne(t *testing.T) {
	spans := []Span{
		{Label: "person", Start: 0, End: 5, Score: 0.999},
		{Label: "person", Start: 10, End: 15, Score: 1.0},
	}
	got := filterSpans(spans, []string{"person"}, 1.0)
	if len(got) != 1 || got[0].Score != 1.0 {
		t.Fatalf("got = %+v", got)
	}
}
