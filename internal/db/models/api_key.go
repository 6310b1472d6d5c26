// Package models - api_key.go defines the APIKey model for service authentication.
package models

import "time"

// APIKey represents a named service credential.
//
// The token is stored as-is under a unique index. Authentication is a single
// exact-match lookup, and the throttle layer derives its bucket key from the
// raw token, so the token cannot be stored hashed.
type APIKey struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Token     string    `db:"token" json:"-"`
	Scopes    []string  `db:"-" json:"scopes"` // JSONB array: ["tasks:read", "metrics:read"]
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MaskedToken returns a display form of the token, e.g. "x7Km3p...9fQa".
func (k *APIKey) MaskedToken() string {
	if len(k.Token) <= 10 {
		return "(none)"
	}
	return k.Token[:6] + "..." + k.Token[len(k.Token)-4:]
}
