package model

import (
	"context"
	"fmt"
	"path/filepath"
)

// session abstracts one execution of the token-classification graph.
type session interface {
	run(ctx context.Context, enc *encoding) ([][]float32, error)
	close() error
}

// graphBackend is the shared implementation behind both backend kinds. The
// two differ only in which graph file they execute and how the session runs
// it; tokenization and span decoding are identical.
type graphBackend struct {
	kind   string
	tok    *wordPieceTokenizer
	labels labelTable
	sess   session
}

const (
	// KindNative executes the full-precision graph shipped with the model
	// artifacts. Accelerator selection is a deployment concern handled by
	// the execution provider, not by configuration here.
	KindNative = "native"
	// KindONNX executes a precompiled, possibly quantized, graph from an
	// operator-supplied path.
	KindONNX = "onnx"
)

// newNativeBackend loads the model's own graph from the artifact directory
// and executes it through the subprocess bridge.
func newNativeBackend(artifactDir string) (Backend, error) {
	tok, labels, err := loadArtifacts(artifactDir)
	if err != nil {
		return nil, err
	}
	sess := newBridgeSession(filepath.Join(artifactDir, graphFile))
	return &graphBackend{kind: KindNative, tok: tok, labels: labels, sess: sess}, nil
}

// newCompiledBackend executes an operator-supplied precompiled graph, using
// the model artifacts only for the tokenizer and label vocabulary.
func newCompiledBackend(artifactDir, graphPath string) (Backend, error) {
	tok, labels, err := loadArtifacts(artifactDir)
	if err != nil {
		return nil, err
	}
	sess, err := newCompiledSession(graphPath)
	if err != nil {
		return nil, &LoadError{Reason: "open compiled graph", Err: err}
	}
	return &graphBackend{kind: KindONNX, tok: tok, labels: labels, sess: sess}, nil
}

func loadArtifacts(dir string) (*wordPieceTokenizer, labelTable, error) {
	tok, err := newWordPieceTokenizer(filepath.Join(dir, tokenizerFile))
	if err != nil {
		return nil, nil, &LoadError{Reason: "load tokenizer", Err: err}
	}
	labels, err := loadLabelTable(filepath.Join(dir, labelsFile))
	if err != nil {
		return nil, nil, &LoadError{Reason: "load labels", Err: err}
	}
	return tok, labels, nil
}

func (b *graphBackend) Kind() string { return b.kind }

func (b *graphBackend) Close() error { return b.sess.close() }

func (b *graphBackend) Infer(ctx context.Context, text string, labels []string, threshold float64) ([]Span, error) {
	enc := b.tok.encode(text)
	if len(enc.words) == 0 {
		return nil, nil
	}
	logits, err := b.sess.run(ctx, enc)
	if err != nil {
		return nil, err
	}
	if len(logits) != len(enc.inputIDs) {
		return nil, fmt.Errorf("logits cover %d positions, input has %d", len(logits), len(enc.inputIDs))
	}
	tags, scores, err := decodePositions(enc, logits, b.labels)
	if err != nil {
		return nil, err
	}
	spans := assembleSpans(text, enc.words, tags, scores)
	return filterSpans(spans, labels, threshold), nil
}
