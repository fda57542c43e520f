package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS wraps next with a policy for the browser frontend.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders: []string{
			RequestIDHeader,
			DegradedHeader,
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
		},
	}).Handler(next)
}

// DegradedHeader marks responses built from a salvaged partial result.
const DegradedHeader = "X-Result-Degraded"
