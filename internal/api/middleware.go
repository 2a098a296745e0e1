/*-------------------------------------------------------------------------
 *
 * middleware.go
 *    HTTP middleware for AgentGate API
 *
 * Provides authentication, CORS, logging, and security header
 * middleware for the AgentGate HTTP API server.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/api/middleware.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockpithq/agentgate/internal/auth"
	"github.com/cockpithq/agentgate/internal/metrics"
)

/* AuthMiddleware authenticates requests using API keys. The executor
 * webhook authenticates by HMAC signature instead, so it is exempt
 * along with health and metrics. */
func AuthMiddleware(keychain *auth.Keychain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" || r.URL.Path == "/agents/events" {
				next.ServeHTTP(w, r)
				return
			}

			requestID := GetRequestID(r.Context())

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, WrapError(NewError(http.StatusBadRequest, "missing Authorization header", nil), requestID))
				return
			}

			/* Extract key (format: "Bearer <key>" or "ApiKey <key>") */
			parts := strings.Fields(authHeader)
			if len(parts) != 2 {
				respondError(w, WrapError(ErrUnauthorized, requestID))
				return
			}

			key := parts[1]
			if !keychain.Verify(key) {
				metrics.WarnWithContext(r.Context(), "API key verification failed", map[string]interface{}{
					"key_prefix": auth.GetKeyPrefix(key),
				})
				respondError(w, WrapError(ErrUnauthorized, requestID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

/* SecurityHeadersMiddleware adds security headers to all HTTP responses */
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

/* CORSMiddleware adds CORS headers */
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Correlation-Id, X-Timestamp, X-Signature")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

/* LoggingMiddleware logs requests with structured logging and metrics */
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		/* Wrap response writer to capture status code */
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		metrics.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, duration)
		metrics.InfoWithContext(r.Context(), "Request handled", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": duration.Milliseconds(),
		})
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
