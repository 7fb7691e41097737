package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	graphFile     = "model.onnx"
	tokenizerFile = "tokenizer.json"
	labelsFile    = "labels.json"

	defaultHubURL = "https://huggingface.co"
)

var downloadClient = &http.Client{Timeout: 10 * time.Minute}

// InstallPath is the local artifact directory for a model id. Slashes in hub
// ids are flattened so one directory holds one model.
func InstallPath(root, modelID string) string {
	return filepath.Join(root, strings.ReplaceAll(modelID, "/", "--"))
}

// Installed reports whether the artifact directory already holds everything
// the given backend shape needs.
func Installed(dir string, needGraph bool) bool {
	required := []string{tokenizerFile, labelsFile}
	if needGraph {
		required = append(required, graphFile)
	}
	for _, f := range required {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}

// EnsureArtifacts returns the artifact directory for modelID, fetching any
// missing files from the model hub first. The download lands in a temp
// directory and is renamed into place, so a crash mid-fetch never leaves a
// half-installed model behind.
func EnsureArtifacts(ctx context.Context, root, modelID string, needGraph bool) (string, error) {
	dir := InstallPath(root, modelID)
	if Installed(dir, needGraph) {
		return dir, nil
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(root, filepath.Base(dir)+"-fetch-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	files := []string{tokenizerFile, labelsFile}
	if needGraph {
		files = append(files, graphFile)
	}
	for _, f := range files {
		// Reuse files from a previous partial install when present.
		if prior := filepath.Join(dir, f); copyFile(prior, filepath.Join(tmp, f)) == nil {
			continue
		}
		if err := fetchWithRetry(ctx, artifactURL(modelID, f), filepath.Join(tmp, f)); err != nil {
			return "", fmt.Errorf("fetch %s for %s: %w", f, modelID, err)
		}
	}

	_ = os.RemoveAll(dir)
	if err := os.Rename(tmp, dir); err != nil {
		return "", err
	}
	return dir, nil
}

func artifactURL(modelID, file string) string {
	base := strings.TrimRight(os.Getenv("SPOTTER_HUB_URL"), "/")
	if base == "" {
		base = defaultHubURL
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s", base, modelID, file)
}

func fetchWithRetry(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		if lastErr = fetch(ctx, url, dest); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
	}
	return lastErr
}

func fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
