package core

import (
	"errors"
	"log/slog"
	"net/http"

	"mailmerge/internal/types"
)

// authPublicPaths lists URL paths that are exempt from authentication.
// Requests to these paths bypass the AuthMiddleware entirely.
var authPublicPaths = map[string]bool{
	"/health":         true,
	"/v1/auth/signup": true,
	"/v1/auth/login":  true,
}

// AuthMiddleware wraps handlers requiring authentication.
//
//  1. Reads the session cookie.
//  2. Validates the session ID against the session store.
//  3. Hydrates the acting user and injects both session and user into the
//     request context.
//  4. Returns 401 Unauthorized on failure with distinct error codes:
//     - auth_session_missing: No session cookie present.
//     - auth_session_invalid: Unknown or malformed session ID.
//     - auth_session_expired: Session exists but has expired.
//
// If Sessions or Users is nil (e.g., during tests that don't inject them),
// the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Sessions == nil || s.Users == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(s.sessionCookieName())
		if err != nil || cookie.Value == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Authentication required")
			return
		}

		session, err := s.Sessions.ValidateSession(r.Context(), cookie.Value)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}

		user, err := s.Users.GetByID(r.Context(), session.UserID)
		if err != nil {
			// The session points at a user that no longer exists; treat the
			// session as invalid rather than leaking the lookup failure.
			s.Logger.Warn("session user lookup failed",
				slog.String("session_id", session.ID),
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionInvalid, "Invalid session")
			return
		}

		ctx := types.WithSession(r.Context(), session)
		ctx = types.WithUser(ctx, user)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionCookieName returns the configured session cookie name.
func (s *Server) sessionCookieName() string {
	if s.Config != nil && s.Config.Auth.CookieName != "" {
		return s.Config.Auth.CookieName
	}
	return "mm_session"
}

// handleAuthError inspects the error from ValidateSession and writes the
// appropriate 401 response with the correct error code.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.Logger.Warn("authentication failed: session expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionExpired, "Session has expired")
			return
		case types.ErrCodeAuthSessionInvalid:
			s.Logger.Warn("authentication failed: session invalid",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionInvalid, "Invalid session")
			return
		}
	}

	// Generic error: log it but don't leak internal details.
	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthSessionInvalid, "Authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response with the given error code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	requestID := types.GetRequestID(r.Context())
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: requestID,
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
