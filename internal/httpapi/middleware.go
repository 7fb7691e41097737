package httpapi

import (
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"spotter/internal/auth"
)

// requestLogger emits one structured log line per request with a
// request-scoped logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := log.With().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Logger()

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		evt := logger.Info()
		if ww.Status() >= 500 {
			evt = logger.Error()
		}
		evt.Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// requireKey enforces the admission gate. Credentials arrive as a bearer
// token or an X-API-Key header; which one is the caller's choice.
func requireKey(gate *auth.Gate, counter AuthCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.Authorize(credential(r)) {
				if counter != nil {
					counter.AuthFailed()
				}
				writeJSON(w, http.StatusUnauthorized, errorResponse{
					Error:  "unauthorized",
					Detail: "missing or invalid API key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return h
	}
	return r.Header.Get("X-API-Key")
}
