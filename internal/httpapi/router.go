// Package httpapi exposes the extraction pipeline over HTTP. It owns routing,
// serialization, and the auth middleware; all semantics live in the pipeline.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"spotter/internal/auth"
	"spotter/internal/config"
	"spotter/internal/frontend"
)

// AuthCounter is the slice of the metrics collector the auth middleware
// needs. Nil is fine; rejections then go uncounted.
type AuthCounter interface {
	AuthFailed()
}

// NewRouter wires the full API surface: the invoke endpoints behind the
// admission gate, the open info/health endpoints, and optionally the browser
// frontend at /.
func NewRouter(cfg *config.Config, h *Handler, gate *auth.Gate, counter AuthCounter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/info", h.Info)
		r.Group(func(r chi.Router) {
			r.Use(requireKey(gate, counter))
			r.Post("/invoke", h.Invoke)
			r.Post("/invoke/batch", h.InvokeBatch)
		})
	})

	if cfg.FrontendEnabled {
		r.Get("/", frontend.Handler().ServeHTTP)
	}
	return r
}
