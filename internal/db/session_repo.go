package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mailmerge/internal/types"
)

// SessionRepository provides data access for the sessions table.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, ip_address, user_agent, expires_at, last_activity_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID,
		s.UserID,
		s.IPAddress,
		s.UserAgent,
		s.ExpiresAt,
		s.LastActivityAt,
		s.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByID retrieves a session by its opaque ID.
// Returns ErrCodeAuthSessionInvalid if no session exists, so callers never
// learn whether an unknown token was ever valid.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, ip_address, user_agent, expires_at, last_activity_at, created_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(
		&s.ID,
		&s.UserID,
		&s.IPAddress,
		&s.UserAgent,
		&s.ExpiresAt,
		&s.LastActivityAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthSessionInvalid, "session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	return &s, nil
}

// UpdateLastActivity bumps the session's last_activity_at timestamp.
// A missing session is not an error here; the session may have been
// invalidated concurrently.
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, id string, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_activity_at = $1 WHERE id = $2`,
		s.LastActivityAt,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update session activity", err)
	}
	return nil
}

// Delete removes a session by ID. Deleting an unknown session is a no-op;
// logout must be idempotent.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteByUserID removes all sessions for a user.
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete user sessions", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry has passed. Returns the number
// of sessions removed. Intended for a periodic cleanup job.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
