// Package auth - scopes.go defines permission scope constants for OpsDeck
// resources and provides HasScope helpers for scope checking.
package auth

import "fmt"

// Scope represents a permission/scope type
type Scope string

const (
	// Task dashboard scopes
	ScopeTasksRead  Scope = "tasks:read"
	ScopeTasksWrite Scope = "tasks:write"

	// Metrics scopes
	ScopeMetricsRead Scope = "metrics:read"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope for administrative endpoints. Like every other scope it
	// grants exactly itself; there is no wildcard expansion.
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeTasksRead,
		ScopeTasksWrite,
		ScopeMetricsRead,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a scope set grants a required scope. Membership is
// exact: granting tasks:write does not imply tasks:read, and there is no
// wildcard. Keys get precisely the capabilities named on them.
func HasScope(grantedScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range grantedScopes {
		if scope == requiredStr {
			return true
		}
	}

	return false
}
