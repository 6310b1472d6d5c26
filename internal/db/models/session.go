// Package models - session.go defines the Session model tracking one login's
// refresh credential, client metadata, and expiry/active state.
package models

import "time"

// Session represents a single login session for a user. One row is created per
// login; a user may hold any number of concurrent active sessions.
type Session struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	IPAddress    *string   `db:"ip_address" json:"ip_address"`
	UserAgent    *string   `db:"user_agent" json:"user_agent"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	IsActive     bool      `db:"is_active" json:"is_active"`
}
