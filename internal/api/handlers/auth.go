// Package handlers contains the HTTP handler implementations for the
// mail-merge API.
//
// Each handler is responsible for:
//   - Decoding and validating HTTP requests
//   - Delegating to service-layer logic
//   - Encoding responses and managing HTTP-specific concerns (headers, cookies)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mailmerge/internal/core"
	"mailmerge/internal/types"
)

// --- DTOs ---

// SignUpRequest is the request body for POST /auth/signup.
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is the unified response for SignUp and Login. The session ID
// is returned ONLY via the HttpOnly Set-Cookie header; it is never included
// in the JSON body.
type AuthResponse struct {
	User      *types.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// --- Service Interface ---

// AuthService orchestrates account creation, credential checks, and session
// lifecycle. The third return value is the raw session ID used for the
// cookie.
type AuthService interface {
	SignUp(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error)
	SignIn(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error)
	SignOut(ctx context.Context, sessionID, userID string) error
}

// --- Cookie Configuration ---

// CookieConfig defines security attributes for the session cookie.
type CookieConfig struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int // seconds
	Path     string
}

// DefaultCookieConfig returns the default cookie configuration:
// HttpOnly, SameSite=Lax, 7 day lifetime.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     "mm_session",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   604800, // 7 days
		Path:     "/",
	}
}

// --- Handler ---

// AuthHandler maps HTTP requests to the auth service layer and manages the
// session cookie.
type AuthHandler struct {
	authService  AuthService
	cookieConfig CookieConfig
	logger       *slog.Logger
	validator    *core.Validator
}

// NewAuthHandler creates a new AuthHandler with the provided dependencies.
func NewAuthHandler(svc AuthService, cfg CookieConfig, l *slog.Logger, v *core.Validator) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{
		authService:  svc,
		cookieConfig: cfg,
		logger:       l,
		validator:    v,
	}
}

// RegisterRoutes mounts all auth routes onto the provided router.
//
// Public routes (no session required):
//   - POST /auth/signup - Account creation
//   - POST /auth/login  - Credential login
//
// Protected routes (requires valid session):
//   - POST /auth/logout - Session logout
//   - GET  /auth/me     - Current user
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.HandleSignUp)
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
	})
}

// --- Handler Methods ---

// HandleSignUp processes POST /auth/signup requests.
//
//  1. Decode and validate the SignUpRequest.
//  2. Call AuthService.SignUp, which canonicalizes the email and creates
//     the account plus an initial session.
//  3. Set the HttpOnly session cookie and return the AuthResponse.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ip := extractClientIP(r)
	userAgent := r.UserAgent()

	user, session, rawSessionID, err := h.authService.SignUp(r.Context(), req.Email, req.Password, ip, userAgent)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.setSessionCookie(w, rawSessionID)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: AuthResponse{
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}})
}

// HandleLogin processes POST /auth/login requests.
//
// Unknown emails and wrong passwords both surface as
// auth_invalid_credentials so the endpoint cannot be used to enumerate
// accounts.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ip := extractClientIP(r)
	userAgent := r.UserAgent()

	user, session, rawSessionID, err := h.authService.SignIn(r.Context(), req.Email, req.Password, ip, userAgent)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.setSessionCookie(w, rawSessionID)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AuthResponse{
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}})
}

// HandleLogout processes POST /auth/logout requests.
//
// The session comes from the request context (injected by the auth
// middleware). The session row is hard-deleted, then the client cookie is
// cleared regardless of whether the delete succeeded.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := types.GetSession(r.Context())
	if !ok {
		// No authenticated session; still clear any residual cookie.
		h.clearSessionCookie(w)
		core.JSON(w, r, http.StatusOK, core.APIResponse{
			Data: map[string]string{"message": "logged out"},
		})
		return
	}

	if err := h.authService.SignOut(r.Context(), session.ID, session.UserID); err != nil {
		h.logger.Warn("failed to invalidate session during logout",
			"session_id", session.ID,
			"error", err,
		)
		// The session will expire naturally; clearing the cookie is enough.
	}

	h.clearSessionCookie(w)

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]string{"message": "logged out"},
	})
}

// HandleMe processes GET /auth/me requests, returning the authenticated
// user from the request context.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// --- Cookie Helpers ---

// setSessionCookie writes the session cookie to the response. The session
// ID travels ONLY via this HttpOnly cookie.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieConfig.Name,
		Value:    sessionID,
		MaxAge:   h.cookieConfig.MaxAge,
		Path:     h.cookieConfig.Path,
		Secure:   h.cookieConfig.Secure,
		HttpOnly: true,
		SameSite: h.cookieConfig.SameSite,
	})
}

// clearSessionCookie writes a cookie with Max-Age<0 and Expires=epoch to
// force immediate browser deletion of the session cookie.
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieConfig.Name,
		Value:    "",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		Path:     h.cookieConfig.Path,
		Secure:   h.cookieConfig.Secure,
		HttpOnly: true,
		SameSite: h.cookieConfig.SameSite,
	})
}

// --- Utility ---

// extractClientIP extracts the client IP from the request. It checks
// X-Forwarded-For first (for requests behind a proxy), then falls back to
// RemoteAddr.
func extractClientIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs: client, proxy1, proxy2.
	// The first entry is the original client IP.
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	// RemoteAddr may include a port ("ip:port").
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
