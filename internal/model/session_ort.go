//go:build onnxruntime

package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ortSession runs the compiled graph in-process through ONNX Runtime. Needs
// the onnxruntime shared library; point SPOTTER_ORT_LIBRARY at it when it is
// not on the default search path.
type ortSession struct {
	sess        *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

func newCompiledSession(graphPath string) (session, error) {
	if !ort.IsInitialized() {
		if lib := os.Getenv("SPOTTER_ORT_LIBRARY"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	inputs, outputs, err := ort.GetInputOutputInfo(graphPath)
	if err != nil {
		return nil, fmt.Errorf("inspect graph: %w", err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("graph %s has no outputs", graphPath)
	}
	s := &ortSession{}
	for _, in := range inputs {
		s.inputNames = append(s.inputNames, in.Name)
	}
	for _, out := range outputs {
		s.outputNames = append(s.outputNames, out.Name)
	}
	s.sess, err = ort.NewDynamicAdvancedSession(graphPath, s.inputNames, s.outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("open graph session: %w", err)
	}
	return s, nil
}

func (s *ortSession) run(ctx context.Context, enc *encoding) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq := int64(len(enc.inputIDs))
	shape := ort.NewShape(1, seq)

	arrays := map[string][]int64{
		"input_ids":      enc.inputIDs,
		"attention_mask": enc.attentionMask,
		"token_type_ids": enc.tokenTypeIDs,
	}
	inputs := make([]ort.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range s.inputNames {
		data := matchInput(name, arrays)
		if data == nil {
			// Some exports drop token_type_ids; zero-fill anything unknown.
			data = make([]int64, seq)
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("build input %s: %w", name, err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.sess.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run graph: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("graph output 0 is not float32")
	}
	dims := logits.GetShape()
	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected logits shape %v", dims)
	}
	positions, classes := int(dims[1]), int(dims[2])
	flat := logits.GetData()
	out := make([][]float32, positions)
	for i := range out {
		row := make([]float32, classes)
		copy(row, flat[i*classes:(i+1)*classes])
		out[i] = row
	}
	return out, nil
}

func matchInput(name string, arrays map[string][]int64) []int64 {
	for key, data := range arrays {
		if strings.Contains(name, key) {
			return data
		}
	}
	return nil
}

func (s *ortSession) close() error {
	if s.sess != nil {
		s.sess.Destroy()
	}
	return nil
}
