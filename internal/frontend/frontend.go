// Package frontend embeds a small browser page for trying the API by hand.
// It talks to the same /api/invoke endpoint any remote client would.
package frontend

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var page []byte

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})
}
