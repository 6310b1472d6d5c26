// session_repository.go implements SessionRepository, providing database queries
// for login-session creation, refresh-token lookup, logout deactivation, and the
// bulk expiry sweep used by the cleanup job.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/opsdeck/opsdeck/internal/db/models"
)

// SessionRepository handles session database operations
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession creates a new session row for a login
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New().String()
	session.CreatedAt = time.Now()
	session.IsActive = true

	query := `
		INSERT INTO sessions (id, user_id, ip_address, user_agent, refresh_token, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.RefreshToken,
		session.CreatedAt,
		session.ExpiresAt,
		session.IsActive,
	)

	return err
}

// GetActiveByRefreshToken retrieves the active session carrying the given refresh token
func (r *SessionRepository) GetActiveByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	query := `
		SELECT id, user_id, ip_address, user_agent, refresh_token, created_at, expires_at, is_active
		FROM sessions
		WHERE refresh_token = $1 AND is_active = TRUE
	`

	session := &models.Session{}
	err := r.db.GetContext(ctx, session, query, refreshToken)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// DeactivateByRefreshToken deactivates the user's active session holding the
// given refresh token. Returns true when a row was updated.
func (r *SessionRepository) DeactivateByRefreshToken(ctx context.Context, userID, refreshToken string) (bool, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE
		WHERE user_id = $1 AND refresh_token = $2 AND is_active = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, userID, refreshToken)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DeactivateExpired deactivates every active session whose expiry is strictly
// before now, in a single statement, and returns the number of rows affected.
// Re-running against already-inactive rows is a no-op, so overlapping sweeps
// are safe without coordination.
func (r *SessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ListSessions retrieves the most recent sessions, newest first
func (r *SessionRepository) ListSessions(ctx context.Context, limit, offset int) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, ip_address, user_agent, refresh_token, created_at, expires_at, is_active
		FROM sessions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	sessions := make([]*models.Session, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, limit, offset); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CountActive returns the number of currently active sessions
func (r *SessionRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE is_active = TRUE`)
	return count, err
}
