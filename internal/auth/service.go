package auth

import (
	"context"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"mailmerge/internal/types"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum accepted password size.
const minPasswordLength = 8

// UserRepo defines the data access methods needed by the Service for user
// operations.
type UserRepo interface {
	Create(ctx context.Context, user *types.User) error
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Service implements account signup, login, and logout over the session
// service.
type Service struct {
	userRepo   UserRepo
	sessionSvc *SessionService
	hasher     PasswordHasher
	clock      types.Clock
	logger     *slog.Logger
}

// ServiceConfig holds the dependencies for creating an auth Service.
type ServiceConfig struct {
	UserRepo       UserRepo
	SessionService *SessionService
	Hasher         PasswordHasher
	Clock          types.Clock
	Logger         *slog.Logger
}

// NewService creates a new auth Service.
// If Hasher is nil, the production bcryptHasher is used.
// If Clock is nil, RealClock is used.
// If Logger is nil, slog.Default() is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:   cfg.UserRepo,
		sessionSvc: cfg.SessionService,
		hasher:     hasher,
		clock:      clock,
		logger:     logger,
	}
}

// SignUp creates a new account and an initial session, returning both.
//
// The email is canonicalized before storage so lookups are case-insensitive.
// Returns ErrCodeConflictEmail when an account with the email already exists.
func (s *Service) SignUp(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error) {
	email = CanonicalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, "", types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid email address", nil)
	}
	if len(password) < minPasswordLength {
		return nil, nil, "", types.NewAppError(types.ErrCodeValidationMissingField, "password must be at least 8 characters", nil)
	}

	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		ID:           "user_" + uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, "", err
	}

	session, rawID, err := s.sessionSvc.CreateSession(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, nil, "", err
	}

	s.logger.Info("user signed up",
		"user_id", user.ID,
		"email", email,
	)

	return user, session, rawID, nil
}

// SignIn verifies credentials and creates a session.
//
// Enumeration protection: returns the same generic invalid-credentials
// error for unknown emails and wrong passwords.
func (s *Service) SignIn(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, string, error) {
	email = CanonicalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundUser {
			return nil, nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, nil, "", err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	now := s.clock.Now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Login proceeds; the timestamp is informational.
		s.logger.Warn("failed to update last login",
			"user_id", user.ID,
			"error", err,
		)
	} else {
		user.LastLoginAt = now
	}

	session, rawID, err := s.sessionSvc.CreateSession(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, nil, "", err
	}

	s.logger.Info("user logged in",
		"user_id", user.ID,
		"email", email,
	)

	return user, session, rawID, nil
}

// SignOut invalidates the given session. Idempotent.
func (s *Service) SignOut(ctx context.Context, sessionID, userID string) error {
	return s.sessionSvc.InvalidateSession(ctx, sessionID, userID)
}
