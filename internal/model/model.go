// Package model selects, loads, and wraps the inference backend. A process
// holds exactly one loaded model; the choice between the native and the
// compiled graph backend is made once, at load time, from configuration.
package model

import (
	"context"
	"fmt"
	"os"
	"sync"

	"spotter/internal/config"
)

// Span is one detected entity: a labeled substring of the input with
// character offsets and a confidence score.
type Span struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Backend is the uniform inference contract both execution paths implement:
// return every span scoring at or above threshold for one of the requested
// labels, in character order, without duplicate (start,end,label) triples.
type Backend interface {
	Infer(ctx context.Context, text string, labels []string, threshold float64) ([]Span, error)
	Kind() string
	Close() error
}

// LoadError is fatal: the model could not be brought up and the process must
// not start serving.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model load: %s: %v", e.Reason, e.Err)
	}
	return "model load: " + e.Reason
}

func (e *LoadError) Unwrap() error { return e.Err }

// Model is the single long-lived handle to the loaded backend. The underlying
// sessions are not safe for concurrent invocation, so Infer serializes calls;
// validation and result shaping happen outside this lock, in the pipeline.
type Model struct {
	backend Backend
	mu      sync.Mutex
}

// Load resolves model artifacts and constructs the configured backend. It is
// eager and possibly slow; a failure here aborts startup. There is no
// degraded serving mode.
func Load(ctx context.Context, cfg *config.Config) (*Model, error) {
	// Compiled graph execution still needs the model's tokenizer and label
	// vocabulary, so artifacts are ensured either way. Only the native path
	// requires the full graph to be present locally.
	dir, err := EnsureArtifacts(ctx, cfg.ModelsDir, cfg.ModelID, !cfg.ONNXEnabled)
	if err != nil {
		return nil, &LoadError{Reason: "fetch artifacts for " + cfg.ModelID, Err: err}
	}

	var backend Backend
	if cfg.ONNXEnabled {
		if _, statErr := os.Stat(cfg.ONNXModelPath); statErr != nil {
			return nil, &LoadError{Reason: "compiled graph missing", Err: statErr}
		}
		backend, err = newCompiledBackend(dir, cfg.ONNXModelPath)
	} else {
		backend, err = newNativeBackend(dir)
	}
	if err != nil {
		return nil, err
	}
	return &Model{backend: backend}, nil
}

// Infer runs one inference call against the loaded backend. At most one call
// is in flight at a time; callers queue on the lock. A canceled context is
// honored both before and after acquiring the slot, and a kill mid-call never
// leaves shared state behind for the next caller.
func (m *Model) Infer(ctx context.Context, text string, labels []string, threshold float64) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.backend.Infer(ctx, text, labels, threshold)
}

// Kind reports which backend is active: "native" or "onnx".
func (m *Model) Kind() string { return m.backend.Kind() }

// Close releases backend resources. Called once, at process shutdown.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Close()
}
