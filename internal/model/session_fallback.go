//go:build !onnxruntime

package model

import (
	"fmt"
	"os"
	"strings"
)

// Without the onnxruntime build tag the compiled graph still runs, just
// through the subprocess bridge instead of in-process. Setting
// SPOTTER_ONNX_BACKEND=ort makes the mismatch loud rather than silent.
func newCompiledSession(graphPath string) (session, error) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("SPOTTER_ONNX_BACKEND")), "ort") {
		return nil, fmt.Errorf("in-process onnxruntime requires building with -tags onnxruntime")
	}
	return newBridgeSession(graphPath), nil
}
