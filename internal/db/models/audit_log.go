// Package models - audit_log.go defines the AuditLog model for recording
// sensitive-endpoint activity, capturing actor, client metadata, the redacted
// request payload, and the eventual response status.
package models

import "time"

// AuditLog represents one audited request or security event.
//
// Rows written by the audit middleware are two-phase: created before the
// handler runs with ResultStatus nil, then patched once by CorrelationID after
// the response is produced. A row is never updated after its status is set.
type AuditLog struct {
	ID            string                 `db:"id" json:"id"`
	CorrelationID string                 `db:"correlation_id" json:"correlation_id"`
	UserID        *string                `db:"user_id" json:"user_id"` // nullable: anonymous and API-key callers
	IPAddress     *string                `db:"ip_address" json:"ip_address"`
	UserAgent     *string                `db:"user_agent" json:"user_agent"`
	Endpoint      string                 `db:"endpoint" json:"endpoint"`
	Method        string                 `db:"method" json:"method"`
	Action        *string                `db:"action" json:"action"`
	Payload       map[string]interface{} `db:"-" json:"payload"` // JSONB: redacted request payload or event detail
	ResultStatus  *string                `db:"result_status" json:"result_status"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
}
