package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"mailmerge/internal/types"
)

// MemoryUserRepo is an in-process UserRepo for local mode, where no
// database is configured. State does not survive a restart.
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]types.User
	byEmail map[string]string
}

// NewMemoryUserRepo creates an empty in-memory user repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]types.User),
		byEmail: make(map[string]string),
	}
}

// Create stores a new user. Returns ErrCodeConflictEmail if the email is
// already registered.
func (r *MemoryUserRepo) Create(_ context.Context, user *types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := r.byEmail[key]; exists {
		return types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", nil)
	}
	r.byID[user.ID] = *user
	r.byEmail[key] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *MemoryUserRepo) GetByID(_ context.Context, id string) (*types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return &u, nil
}

// GetByEmail retrieves a user by email address.
func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	u := r.byID[id]
	return &u, nil
}

// UpdateLastLogin records the login timestamp for a user.
func (r *MemoryUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	u.LastLoginAt = at
	r.byID[userID] = u
	return nil
}

// MemorySessionRepo is an in-process SessionRepo for local mode.
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]types.Session
}

// NewMemorySessionRepo creates an empty in-memory session repository.
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[string]types.Session)}
}

// Create stores a new session.
func (r *MemorySessionRepo) Create(_ context.Context, s *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

// GetByID retrieves a session by its opaque ID. An unknown ID reports
// ErrCodeAuthSessionInvalid, matching the database-backed repository.
func (r *MemorySessionRepo) GetByID(_ context.Context, id string) (*types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthSessionInvalid, "session not found", nil)
	}
	return &s, nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (r *MemorySessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteByUserID removes every session belonging to one user.
func (r *MemorySessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}
