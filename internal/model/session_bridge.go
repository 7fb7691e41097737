package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// bridgeSession executes the graph out-of-process through a small onnxruntime
// driver. Execution providers (CPU, CUDA, ...) are picked per deployment via
// SPOTTER_EXECUTION_PROVIDERS; nothing in the serving core depends on them.
type bridgeSession struct {
	graphPath string
	python    string
}

type bridgeRequest struct {
	GraphPath     string   `json:"graph_path"`
	Providers     []string `json:"providers"`
	InputIDs      []int64  `json:"input_ids"`
	AttentionMask []int64  `json:"attention_mask"`
	TokenTypeIDs  []int64  `json:"token_type_ids"`
}

type bridgeResponse struct {
	Logits [][]float32 `json:"logits"`
	Error  string      `json:"error"`
}

func newBridgeSession(graphPath string) session {
	python := os.Getenv("SPOTTER_PYTHON")
	if python == "" {
		python = "python3"
	}
	return &bridgeSession{graphPath: graphPath, python: python}
}

func executionProviders() []string {
	raw := strings.TrimSpace(os.Getenv("SPOTTER_EXECUTION_PROVIDERS"))
	if raw == "" {
		return []string{"CPUExecutionProvider"}
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *bridgeSession) run(ctx context.Context, enc *encoding) ([][]float32, error) {
	payload, err := json.Marshal(bridgeRequest{
		GraphPath:     s.graphPath,
		Providers:     executionProviders(),
		InputIDs:      enc.inputIDs,
		AttentionMask: enc.attentionMask,
		TokenTypeIDs:  enc.tokenTypeIDs,
	})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, s.python, "-c", bridgeDriverScript)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("graph bridge: %v: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("graph bridge: %w", err)
	}

	var resp bridgeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse bridge output: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("graph bridge: %s", resp.Error)
	}
	return resp.Logits, nil
}

func (s *bridgeSession) close() error { return nil }

const bridgeDriverScript = `
import json
import sys

try:
    import numpy as np
    import onnxruntime as ort
except Exception as exc:
    print(json.dumps({"error": f"missing python dependencies (onnxruntime, numpy): {exc}"}))
    sys.exit(0)

try:
    req = json.load(sys.stdin)
    sess = ort.InferenceSession(req["graph_path"], providers=req.get("providers") or ["CPUExecutionProvider"])
    names = [i.name for i in sess.get_inputs()]

    seq = len(req["input_ids"])
    arrays = {
        "input_ids": np.array([req["input_ids"]], dtype=np.int64),
        "attention_mask": np.array([req["attention_mask"]], dtype=np.int64),
        "token_type_ids": np.array([req["token_type_ids"]], dtype=np.int64),
    }

    feed = {}
    for name in names:
        for key, arr in arrays.items():
            if key in name:
                feed[name] = arr
                break
        else:
            feed[name] = np.zeros((1, seq), dtype=np.int64)

    outputs = sess.run(None, feed)
    print(json.dumps({"logits": outputs[0][0].astype(np.float32).tolist()}))
except Exception as exc:
    print(json.dumps({"error": str(exc)}))
`
