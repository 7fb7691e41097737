// spotterd serves a named-entity-recognition model over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spotter/internal/auth"
	"spotter/internal/config"
	"spotter/internal/httpapi"
	"spotter/internal/metrics"
	"spotter/internal/model"
	"spotter/internal/pipeline"
	"spotter/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("spotterd failed")
	}
}

func run() error {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	cfg, err := config.Resolve(fs)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	log.Info().
		Str("version", version.Version).
		Str("model_id", cfg.ModelID).
		Bool("onnx", cfg.ONNXEnabled).
		Str("use_case", cfg.UseCase).
		Msg("starting")

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(cfg)
	}

	loadStart := time.Now()
	m, err := model.Load(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	log.Info().Str("backend", m.Kind()).Dur("took", time.Since(loadStart)).Msg("model loaded")

	gate := auth.NewGate(cfg.APIKey)
	var observer pipeline.Observer
	if collector != nil {
		observer = collector
	}
	extractor := pipeline.New(cfg, m, observer)
	handler := httpapi.NewHandler(cfg, extractor, gate, m.Kind())

	var counter httpapi.AuthCounter
	if collector != nil {
		counter = collector
	}
	api := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      httpapi.NewRouter(cfg, handler, gate, counter),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", api.Addr).Msg("api listening")
		errCh <- api.ListenAndServe()
	}()

	var metricsSrv *http.Server
	if collector != nil {
		metricsSrv = collector.Server(cfg.MetricsAddr())
		go func() {
			log.Info().Str("addr", metricsSrv.Addr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		collector.SetState(metrics.StateRunning)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	if collector != nil {
		collector.SetState(metrics.StateStopping)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			return err
		}
	}
	return api.Shutdown(ctx)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.DurationFieldUnit = time.Millisecond
	if fi, statErr := os.Stderr.Stat(); statErr == nil && fi.Mode()&os.ModeCharDevice != 0 {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	zerolog.DefaultContextLogger = &log.Logger
}
