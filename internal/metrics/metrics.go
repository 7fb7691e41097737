// Package metrics implements the pipeline's observability hooks on top of
// Prometheus and serves the scrape endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spotter/internal/config"
	"spotter/internal/pipeline"
	"spotter/internal/version"
)

// Process states reported by the app_state metric.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopping = "stopping"
)

var states = []string{StateStarting, StateRunning, StateStopping}

// Collector implements pipeline.Observer and counts auth rejections for the
// admission gate. All methods are safe for concurrent use and never block.
type Collector struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	failedInference *prometheus.CounterVec
	failedAuth      prometheus.Counter
	inferenceTime   *prometheus.HistogramVec
	appState        *prometheus.GaugeVec
}

func NewCollector(cfg *config.Config) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spotter_requests_total",
			Help: "Extraction requests by outcome and backend.",
		}, []string{"outcome", "backend"}),
		failedInference: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spotter_failed_inference_total",
			Help: "Failed inference attempts by backend.",
		}, []string{"backend"}),
		failedAuth: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spotter_failed_auth_total",
			Help: "Requests rejected by the admission gate.",
		}),
		inferenceTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spotter_inference_seconds",
			Help:    "Wall time of one pipeline invocation.",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"backend"}),
		appState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spotter_app_state",
			Help: "Current process state, one-hot.",
		}, []string{"state"}),
	}
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spotter_app_info",
		Help: "Static deployment information.",
	}, []string{"version", "model_id", "use_case"})
	info.WithLabelValues(version.Version, cfg.ModelID, cfg.UseCase).Set(1)

	reg.MustRegister(c.requests, c.failedInference, c.failedAuth, c.inferenceTime, c.appState, info)
	c.SetState(StateStarting)
	return c
}

// Observe records one finished pipeline invocation.
func (c *Collector) Observe(ev pipeline.Event) {
	c.requests.WithLabelValues(ev.Outcome, ev.Backend).Inc()
	c.inferenceTime.WithLabelValues(ev.Backend).Observe(ev.Duration.Seconds())
	if ev.Outcome == pipeline.OutcomeInference {
		c.failedInference.WithLabelValues(ev.Backend).Inc()
	}
}

// AuthFailed counts one rejected credential.
func (c *Collector) AuthFailed() {
	c.failedAuth.Inc()
}

// SetState flips the one-hot app_state gauge.
func (c *Collector) SetState(state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		c.appState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Server builds the standalone metrics server. It shares nothing with the
// API server so scrapes keep working while inference is saturated.
func (c *Collector) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
