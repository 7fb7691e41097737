// Package auth is the request-admission gate in front of the pipeline.
package auth

import "crypto/subtle"

// Gate authorizes requests against the configured API key. A Gate built
// without a key admits everything.
type Gate struct {
	key string
}

func NewGate(apiKey string) *Gate {
	return &Gate{key: apiKey}
}

// Required reports whether callers must present a credential.
func (g *Gate) Required() bool { return g.key != "" }

// Authorize checks the presented credential in constant time.
func (g *Gate) Authorize(credential string) bool {
	if g.key == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(g.key)) == 1
}
