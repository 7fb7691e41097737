package pipeline

import (
	"context"
	"errors"
	"testing"

	"spotter/internal/config"
	"spotter/internal/model"
)

type stubModel struct {
	spans    []model.Span
	err      error
	calls    int
	lastText string
	labels   []string
	thresh   float64
}

func (s *stubModel) Infer(ctx context.Context, text string, labels []string, threshold float64) ([]model.Span, error) {
	s.calls++
	s.lastText = text
	s.labels = labels
	s.thresh = threshold
	if s.err != nil {
		return nil, s.err
	}
	return s.spans, nil
}

func (s *stubModel) Kind() string { return "stub" }

type recordingObserver struct {
	events []Event
}

func (o *recordingObserver) Observe(ev Event) { o.events = append(o.events, ev) }

type panickingObserver struct{}

func (panickingObserver) Observe(Event) { panic("observer blew up") }

func testConfig() *config.Config {
	return &config.Config{
		DefaultEntities:  []string{"person", "organization", "location", "date"},
		DefaultThreshold: 0.5,
	}
}

func f64(v float64) *float64 { return &v }

func boolp(v bool) *bool { return &v }

func TestExtract_ScenarioSteveJobs(t *testing.T) {
	text := "Steve Jobs founded Apple in Cupertino."
	stub := &stubModel{spans: []model.Span{
		{Text: "Cupertino", Label: "location", Start: 28, End: 37, Score: 0.91},
		{Text: "Steve Jobs", Label: "person", Start: 0, End: 10, Score: 0.97},
		{Text: "Apple", Label: "organization", Start: 19, End: 24, Score: 0.88},
	}}
	obs := &recordingObserver{}
	ex := New(testConfig(), stub, obs)

	res, err := ex.Extract(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Entities) != 3 {
		t.Fatalf("entities = %+v", res.Entities)
	}
	wantLabels := []string{"person", "organization", "location"}
	for i, want := range wantLabels {
		got := res.Entities[i]
		if got.Label != want {
			t.Fatalf("entity %d = %+v, want label %s", i, got, want)
		}
		if got.Score < 0.5 {
			t.Fatalf("entity %d score = %f", i, got.Score)
		}
		if got.Start < 0 || got.End > len(text) || got.Start >= got.End {
			t.Fatalf("entity %d offsets = %+v", i, got)
		}
	}
	// Spans sorted ascending by start.
	for i := 1; i < len(res.Entities); i++ {
		if res.Entities[i].Start < res.Entities[i-1].Start {
			t.Fatalf("not sorted: %+v", res.Entities)
		}
	}
	// Defaults flowed into the backend call.
	if len(stub.labels) != 4 || stub.thresh != 0.5 {
		t.Fatalf("backend saw labels=%v threshold=%g", stub.labels, stub.thresh)
	}
	if len(obs.events) != 1 || obs.events[0].Outcome != OutcomeOK {
		t.Fatalf("events = %+v", obs.events)
	}
}

func TestExtract_EmptyTextFailsBeforeBackend(t *testing.T) {
	stub := &stubModel{}
	obs := &recordingObserver{}
	ex := New(testConfig(), stub, obs)

	_, err := ex.Extract(context.Background(), Request{Text: "   ", Entities: []string{"person"}})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != "empty text" {
		t.Fatalf("err = %v", err)
	}
	if stub.calls != 0 {
		t.Fatal("backend must not be invoked")
	}
	if len(obs.events) != 1 || obs.events[0].Outcome != OutcomeValidation {
		t.Fatalf("events = %+v", obs.events)
	}
}

func TestExtract_ThresholdOutOfRangeFailsBeforeBackend(t *testing.T) {
	stub := &stubModel{}
	ex := New(testConfig(), stub, nil)
	_, err := ex.Extract(context.Background(), Request{Text: "Hello", Threshold: f64(2.0)})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v", err)
	}
	if stub.calls != 0 {
		t.Fatal("backend must not be invoked")
	}
}

func TestExtract_RequestOverridesOnlySuppliedFields(t *testing.T) {
	stub := &stubModel{}
	ex := New(testConfig(), stub, nil)

	if _, err := ex.Extract(context.Background(), Request{Text: "x", Entities: []string{"drug"}}); err != nil {
		t.Fatal(err)
	}
	if len(stub.labels) != 1 || stub.labels[0] != "drug" || stub.thresh != 0.5 {
		t.Fatalf("labels=%v threshold=%g", stub.labels, stub.thresh)
	}

	if _, err := ex.Extract(context.Background(), Request{Text: "x", Threshold: f64(0.9)}); err != nil {
		t.Fatal(err)
	}
	if len(stub.labels) != 4 || stub.thresh != 0.9 {
		t.Fatalf("labels=%v threshold=%g", stub.labels, stub.thresh)
	}
}

func TestExtract_ThresholdOfOneKeepsOnlyPerfectScores(t *testing.T) {
	stub := &stubModel{spans: []model.Span{
		{Label: "person", Start: 0, End: 4, Score: 1.0},
		{Label: "person", Start: 10, End: 14, Score: 0.999},
	}}
	ex := New(testConfig(), stub, nil)
	res, err := ex.Extract(context.Background(), Request{Text: "aaaa bbbbb cccc", Threshold: f64(1.0)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Score != 1.0 {
		t.Fatalf("entities = %+v", res.Entities)
	}
}

func TestExtract_ReFiltersBackendThatIgnoresThreshold(t *testing.T) {
	stub := &stubModel{spans: []model.Span{
		{Label: "person", Start: 0, End: 4, Score: 0.2},
		{Label: "person", Start: 5, End: 9, Score: 0.8},
	}}
	ex := New(testConfig(), stub, nil)
	res, err := ex.Extract(context.Background(), Request{Text: "aaaa bbbb"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Score != 0.8 {
		t.Fatalf("entities = %+v", res.Entities)
	}
}

func TestExtract_DropsOutOfBoundsSpans(t *testing.T) {
	stub := &stubModel{spans: []model.Span{
		{Label: "person", Start: 2, End: 99, Score: 0.9},
		{Label: "person", Start: 3, End: 3, Score: 0.9},
		{Label: "person", Start: -1, End: 2, Score: 0.9},
		{Label: "person", Start: 0, End: 4, Score: 0.9},
	}}
	ex := New(testConfig(), stub, nil)
	res, err := ex.Extract(context.Background(), Request{Text: "aaaa bbbb"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Start != 0 || res.Entities[0].End != 4 {
		t.Fatalf("entities = %+v", res.Entities)
	}
}

func TestExtract_DeduplicatesTriples(t *testing.T) {
	stub := &stubModel{spans: []model.Span{
		{Label: "person", Start: 0, End: 4, Score: 0.7},
		{Label: "person", Start: 0, End: 4, Score: 0.9},
	}}
	ex := New(testConfig(), stub, nil)
	res, err := ex.Extract(context.Background(), Request{Text: "aaaa", Flat: boolp(false)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Score != 0.9 {
		t.Fatalf("entities = %+v", res.Entities)
	}
}

func TestExtract_InferenceErrorWrapped(t *testing.T) {
	cause := errors.New("graph exploded")
	stub := &stubModel{err: cause}
	obs := &recordingObserver{}
	ex := New(testConfig(), stub, obs)

	_, err := ex.Extract(context.Background(), Request{Text: "hello world"})
	var ierr *InferenceError
	if !errors.As(err, &ierr) || !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
	if len(obs.events) != 1 || obs.events[0].Outcome != OutcomeInference {
		t.Fatalf("events = %+v", obs.events)
	}
}

func TestExtract_PanickingObserverDoesNotFailRequest(t *testing.T) {
	stub := &stubModel{}
	ex := New(testConfig(), stub, panickingObserver{})
	if _, err := ex.Extract(context.Background(), Request{Text: "hello"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	stub := &stubModel{spans: []model.Span{{Text: "Anna", Label: "person", Start: 0, End: 4, Score: 0.9}}}
	ex := New(testConfig(), stub, nil)
	req := Request{Text: "Anna met Bob."}
	first, err := ex.Extract(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ex.Extract(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Entities) != len(second.Entities) {
		t.Fatalf("first %+v second %+v", first, second)
	}
	for i := range first.Entities {
		if first.Entities[i] != second.Entities[i] {
			t.Fatalf("first %+v second %+v", first, second)
		}
	}
}

func TestExtractBatch(t *testing.T) {
	stub := &stubModel{spans: []model.Span{{Text: "Anna", Label: "person", Start: 0, End: 4, Score: 0.9}}}
	obs := &recordingObserver{}
	ex := New(testConfig(), stub, obs)

	results, err := ex.ExtractBatch(context.Background(), []string{"Anna one", "Anna two"}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if len(obs.events) != 2 {
		t.Fatalf("events = %+v", obs.events)
	}
}

func TestExtractBatch_FailsOnBadText(t *testing.T) {
	stub := &stubModel{}
	ex := New(testConfig(), stub, nil)
	_, err := ex.ExtractBatch(context.Background(), []string{"fine", ""}, nil, nil, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v", err)
	}
}
