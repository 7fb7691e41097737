// Package pipeline is the request-serving core: it validates an extraction
// request, resolves defaults from configuration, invokes the loaded model,
// and shapes the result. One observability event is emitted per request.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"spotter/internal/config"
	"spotter/internal/model"
)

// Request is one parsed extraction request. Entities and Threshold are
// optional; absent values fall back to the configured defaults. Flat controls
// whether overlapping spans are merged (default true).
type Request struct {
	Text      string
	Entities  []string
	Threshold *float64
	Flat      *bool
}

// Result is produced fresh per request and owned by the caller.
type Result struct {
	Entities []model.Span
}

// Inferencer is the slice of the loaded model the pipeline needs; *model.Model
// satisfies it, and tests inject fakes.
type Inferencer interface {
	Infer(ctx context.Context, text string, labels []string, threshold float64) ([]model.Span, error)
	Kind() string
}

// Event describes one finished pipeline invocation for the metrics
// collaborator.
type Event struct {
	Outcome  string
	Backend  string
	Labels   int
	Duration time.Duration
}

// Event outcomes. Validation failures happen before the backend is invoked;
// inference failures after.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation_error"
	OutcomeInference  = "inference_error"
)

// Observer receives one Event per request. Implementations must not block;
// failures and panics are swallowed, never propagated into the request path.
type Observer interface {
	Observe(Event)
}

// ValidationError rejects one request; the process keeps serving.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// InferenceError reports a failed or timed-out backend call for one request.
// The core never retries; higher layers decide.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return "inference: " + e.Err.Error() }

func (e *InferenceError) Unwrap() error { return e.Err }

// Extractor serves extraction requests against one loaded model. It holds
// non-owning references to the model and the immutable configuration.
type Extractor struct {
	cfg   *config.Config
	model Inferencer
	obs   Observer
}

func New(cfg *config.Config, m Inferencer, obs Observer) *Extractor {
	return &Extractor{cfg: cfg, model: m, obs: obs}
}

// Extract validates req, resolves defaults, runs inference, and shapes the
// result. Spans come back sorted by (start, end), deduplicated, and all at or
// above the effective threshold.
func (e *Extractor) Extract(ctx context.Context, req Request) (Result, error) {
	started := time.Now()

	entities, threshold, err := e.resolve(req)
	if err != nil {
		e.emit(Event{Outcome: OutcomeValidation, Backend: e.model.Kind(), Labels: len(entities), Duration: time.Since(started)})
		return Result{}, err
	}

	spans, err := e.model.Infer(ctx, req.Text, entities, threshold)
	if err != nil {
		e.emit(Event{Outcome: OutcomeInference, Backend: e.model.Kind(), Labels: len(entities), Duration: time.Since(started)})
		return Result{}, &InferenceError{Err: err}
	}

	spans = shape(spans, req.Text, threshold)
	if req.Flat == nil || *req.Flat {
		spans = MergeOverlapping(spans)
	}

	e.emit(Event{Outcome: OutcomeOK, Backend: e.model.Kind(), Labels: len(entities), Duration: time.Since(started)})
	return Result{Entities: spans}, nil
}

// ExtractBatch runs Extract over each text with shared options. It stops at
// the first failing text; partial successes are discarded.
func (e *Extractor) ExtractBatch(ctx context.Context, texts []string, entities []string, threshold *float64, flat *bool) ([]Result, error) {
	if len(texts) == 0 {
		return nil, &ValidationError{Reason: "empty batch"}
	}
	results := make([]Result, 0, len(texts))
	for i, text := range texts {
		res, err := e.Extract(ctx, Request{Text: text, Entities: entities, Threshold: threshold, Flat: flat})
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// resolve applies request-over-config defaulting and re-checks the resulting
// invariants. Callers may bypass upstream validation, so everything is
// checked again here.
func (e *Extractor) resolve(req Request) (entities []string, threshold float64, err error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, 0, &ValidationError{Reason: "empty text"}
	}

	entities = req.Entities
	if len(entities) == 0 {
		entities = e.cfg.DefaultEntities
	}
	cleaned := entities[:0:0]
	for _, l := range entities {
		if l = strings.TrimSpace(l); l != "" {
			cleaned = append(cleaned, l)
		}
	}
	if len(cleaned) == 0 {
		return nil, 0, &ValidationError{Reason: "no entity labels requested"}
	}

	threshold = e.cfg.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold <= 0 || threshold > 1 {
		return cleaned, 0, &ValidationError{Reason: fmt.Sprintf("threshold %g is outside (0,1]", threshold)}
	}
	return cleaned, threshold, nil
}

// shape enforces the result contract regardless of backend behavior: spans
// within bounds, scores at or above threshold, (start,end) order, no
// duplicate (start,end,label) triples.
func shape(spans []model.Span, text string, threshold float64) []model.Span {
	kept := make([]model.Span, 0, len(spans))
	for _, s := range spans {
		if s.Score < threshold {
			continue
		}
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		kept = append(kept, s)
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

// emit delivers the event to the observer. Observation never fails a request:
// a nil observer is skipped and a panicking one is contained here.
func (e *Extractor) emit(ev Event) {
	if e.obs == nil {
		return
	}
	defer func() { _ = recover() }()
	e.obs.Observe(ev)
}
