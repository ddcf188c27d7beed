package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mailmerge/internal/types"
)

// SessionConfig holds configuration for session management.
type SessionConfig struct {
	// SessionDuration is the lifetime of a new session. Default: 7 days.
	SessionDuration time.Duration

	// SessionIDPrefix is the prefix for session IDs ("sess_").
	SessionIDPrefix string
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SessionDuration: 7 * 24 * time.Hour,
		SessionIDPrefix: "sess_",
	}
}

// SessionRepo defines the data access methods needed by the SessionService.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	GetByID(ctx context.Context, sessionID string) (*types.Session, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateSessionID() (string, error)
}

// SessionEventType identifies a change in a user's authentication state.
type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "signed_in"
	SessionSignedOut SessionEventType = "signed_out"
)

// SessionEvent is delivered to subscribers whenever a session is created or
// invalidated, so interested components can react to auth state changes
// without polling.
type SessionEvent struct {
	Type   SessionEventType
	UserID string
}

// SessionService manages server-side session lifecycle: creation,
// validation, invalidation, and the in-process auth change feed.
type SessionService struct {
	repo     SessionRepo
	tokenGen TokenGenerator
	config   SessionConfig
	clock    types.Clock
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[int]chan SessionEvent
	next int
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	repo SessionRepo,
	tokenGen TokenGenerator,
	config SessionConfig,
	clock types.Clock,
	logger *slog.Logger,
) *SessionService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		repo:     repo,
		tokenGen: tokenGen,
		config:   config,
		clock:    clock,
		logger:   logger,
		subs:     make(map[int]chan SessionEvent),
	}
}

// CreateSession creates a new session for the given user and returns the
// Session object and the raw session ID (for cookie setting).
func (s *SessionService) CreateSession(ctx context.Context, userID, ip, userAgent string) (*types.Session, string, error) {
	sessionID, err := s.tokenGen.GenerateSessionID()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session ID", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:             sessionID,
		UserID:         userID,
		IPAddress:      ip,
		UserAgent:      userAgent,
		ExpiresAt:      now.Add(s.config.SessionDuration),
		LastActivityAt: now,
		CreatedAt:      now,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, "", err
	}

	s.logger.Info("session created",
		"session_id", sessionID,
		"user_id", userID,
	)
	s.publish(SessionEvent{Type: SessionSignedIn, UserID: userID})

	return session, sessionID, nil
}

// ValidateSession validates a session ID against the store.
// Returns the Session if valid, or an error if not found or expired.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Expired(s.clock.Now()) {
		// Expired sessions are left for the periodic cleanup to remove.
		s.logger.Info("session expired",
			"session_id", sessionID,
			"expired_at", session.ExpiresAt,
		)
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}

	return session, nil
}

// InvalidateSession performs a hard delete of a single session so logout
// takes effect immediately. Unknown session IDs are a no-op.
func (s *SessionService) InvalidateSession(ctx context.Context, sessionID, userID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session invalidated", "session_id", sessionID)
	s.publish(SessionEvent{Type: SessionSignedOut, UserID: userID})
	return nil
}

// InvalidateAllUserSessions removes all sessions for a user.
func (s *SessionService) InvalidateAllUserSessions(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("all sessions invalidated for user", "user_id", userID)
	s.publish(SessionEvent{Type: SessionSignedOut, UserID: userID})
	return nil
}

// Subscribe registers for session change events. The returned cancel func
// must be called to release the subscription. Events are dropped rather
// than blocking when a subscriber falls behind.
func (s *SessionService) Subscribe() (<-chan SessionEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan SessionEvent, 8)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *SessionService) publish(ev SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CryptoTokenGenerator is the production implementation of TokenGenerator
// using crypto/rand for secure random generation.
type CryptoTokenGenerator struct {
	// SessionIDPrefix is prepended to generated session IDs.
	SessionIDPrefix string
}

// NewCryptoTokenGenerator creates a new CryptoTokenGenerator with the
// standard "sess_" prefix.
func NewCryptoTokenGenerator() *CryptoTokenGenerator {
	return &CryptoTokenGenerator{
		SessionIDPrefix: "sess_",
	}
}

// GenerateSessionID generates a cryptographically secure session ID.
// Format: "sess_" + 32 random hex bytes (64 hex chars).
func (g *CryptoTokenGenerator) GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return g.SessionIDPrefix + hex.EncodeToString(b), nil
}

// CanonicalizeEmail normalizes email addresses for consistent lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
