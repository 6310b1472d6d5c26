// user_repository.go implements UserRepository, providing database queries for
// account creation, credential lookup, and role-profile management.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/opsdeck/opsdeck/internal/db/models"
)

// UserRepository handles user and profile database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser creates a new user account together with an (initially empty) profile row.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, username, email, password_hash, is_staff, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsStaff,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, role, updated_at) VALUES ($1, NULL, $2)`,
		user.ID, user.CreatedAt,
	)
	return err
}

// GetUserByID retrieves a user with their profile role by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.UserWithProfile, error) {
	query := `
		SELECT u.id, u.username, u.email, u.password_hash, u.is_staff, u.is_active, u.created_at, u.updated_at, p.role
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		WHERE u.id = $1
	`

	user := &models.UserWithProfile{}
	err := r.db.GetContext(ctx, user, query, userID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByUsername retrieves a user with their profile role by username (for login)
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.UserWithProfile, error) {
	query := `
		SELECT u.id, u.username, u.email, u.password_hash, u.is_staff, u.is_active, u.created_at, u.updated_at, p.role
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		WHERE u.username = $1
	`

	user := &models.UserWithProfile{}
	err := r.db.GetContext(ctx, user, query, username)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// SetRole updates (or assigns) the role on a user's profile. Pass nil to clear it.
func (r *UserRepository) SetRole(ctx context.Context, userID string, role *string) error {
	query := `
		INSERT INTO user_profiles (user_id, role, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, userID, role, time.Now())
	return err
}
