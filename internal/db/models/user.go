// Package models defines the database model types for OpsDeck.
// Each type corresponds to a database table; struct tags cover both JSON serialization and sqlx row scanning.
// Models are pure data types — business logic belongs in the handlers, query logic in the repositories layer.
package models

import "time"

// Role values assignable to a user profile.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleAnalyst   = "analyst"
	RoleViewer    = "viewer"
)

// User represents a user account.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsStaff      bool      `db:"is_staff" json:"is_staff"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserProfile holds the role assignment for a user. It is a separate 1:1 table
// rather than a column on users so the role vocabulary can evolve without
// touching the account record.
type UserProfile struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Role      *string   `db:"role" json:"role"` // nullable: a user may have no role yet
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserWithProfile is a user joined with their profile row (profile may be absent).
type UserWithProfile struct {
	User
	Role *string `db:"role" json:"role"`
}

// RoleName returns the user's role, or "" when no role is assigned.
func (u *UserWithProfile) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return *u.Role
}

// IsAdmin returns true for the admin role or a staff account.
func (u *UserWithProfile) IsAdmin() bool {
	return u.RoleName() == RoleAdmin || u.IsStaff
}
