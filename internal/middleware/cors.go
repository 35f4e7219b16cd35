// Package middleware provides reusable HTTP middleware for the car rental API
// and the payment service.
package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORSHandler returns a middleware that applies CORS headers based on allowedOrigins.
// Each entry in allowedOrigins must be a full origin (scheme + host, no trailing slash).
// Idempotency-Key is allowed so browser clients can make reservations retry-safe.
func NewCORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", IdempotencyHeader},
		ExposedHeaders: []string{"X-Request-Id", "Idempotent-Replayed"},
	})
	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}
