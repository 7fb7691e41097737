// spotter-check runs one extraction against the configured model and prints
// the spans. Useful for smoke-testing a deployment without the daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"spotter/internal/config"
	"spotter/internal/model"
	"spotter/internal/pipeline"
)

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		fatal(err)
	}
	args := fs.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: spotter-check [flags] <text>")
		fmt.Fprintln(os.Stderr, `Example: spotter-check "Steve Jobs founded Apple in Cupertino."`)
		os.Exit(2)
	}

	cfg, err := config.Resolve(fs)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	m, err := model.Load(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer m.Close()
	fmt.Fprintf(os.Stderr, "loaded %s backend for %s in %s\n", m.Kind(), cfg.ModelID, time.Since(start).Round(time.Millisecond))

	extractor := pipeline.New(cfg, m, nil)
	res, err := extractor.Extract(ctx, pipeline.Request{Text: args[0]})
	if err != nil {
		fatal(err)
	}

	if len(res.Entities) == 0 {
		fmt.Fprintln(os.Stderr, "no entities found")
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Entities); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "spotter-check: %v\n", err)
	os.Exit(1)
}
