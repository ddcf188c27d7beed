package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mailmerge/internal/types"
)

// MountRoutes sets up the middleware stack and mounts all registered route
// groups. The middleware ordering matters:
//
//  1. Recoverer: Outermost, catches panics from everything below.
//  2. ContextTimeout: Bounds total request handling time.
//  3. RequestID: Assigns IDs early so all downstream logs carry them.
//  4. SecurityHeaders: Applied before any response is written.
//  5. RequestLogger: Logs with status codes after handlers complete.
//  6. CORS: Handles preflight before auth rejects anonymous OPTIONS.
//  7. Auth: Innermost, resolves the session cookie to a user.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.WriteTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, []string{"Authorization", "Cookie"}))
	s.router.Use(NewCORSMiddleware(s.Config.Security.CorsAllowedOrigins))
	s.router.Use(s.AuthMiddleware)

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/v1", s.mountV1)
}

// mountV1 registers all v1 route groups provided by handler packages.
func (s *Server) mountV1(r chi.Router) {
	for _, register := range s.V1RouteRegistrars {
		register(r)
	}
}

// RequestIDMiddleware ensures every request carries a request ID. An
// inbound X-Request-Id header is trusted and propagated; otherwise a fresh
// ID is generated. The ID is stored in the request context and echoed on
// the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextTimeoutMiddleware bounds the lifetime of each request context so
// slow downstream calls cannot hold connections open indefinitely.
func ContextTimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// generateRequestID returns a random 32-character hex string. Falls back to
// a fixed marker if the system entropy source fails, which should never
// happen in practice.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "req-id-unavailable"
	}
	return hex.EncodeToString(b)
}
