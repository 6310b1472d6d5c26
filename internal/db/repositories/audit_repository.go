// audit_repository.go implements AuditRepository, providing database queries for
// writing audit log entries, patching their result status by correlation ID, and
// filtered retrieval for the admin listing.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/opsdeck/opsdeck/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	UserID    *string
	Action    *string
	Endpoint  *string
	StartDate *time.Time
	EndDate   *time.Time
}

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	// Marshal payload to JSONB; stays an untyped nil (driver-level NULL) when
	// there is no payload.
	var payloadJSON interface{}
	if log.Payload != nil {
		marshaled, err := json.Marshal(log.Payload)
		if err != nil {
			return err
		}
		payloadJSON = marshaled
	}

	query := `
		INSERT INTO audit_logs (id, correlation_id, user_id, ip_address, user_agent, endpoint, method, action, payload, result_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.CorrelationID,
		log.UserID,
		log.IPAddress,
		log.UserAgent,
		log.Endpoint,
		log.Method,
		log.Action,
		payloadJSON,
		log.ResultStatus,
		log.CreatedAt,
	)

	return err
}

// SetResult patches the pending entry for a correlation ID with the response
// status and (when resolved) the acting user. Only rows whose status is still
// unset are eligible; an entry is never updated after its status is written.
func (r *AuditRepository) SetResult(ctx context.Context, correlationID, status string, userID *string) error {
	query := `
		UPDATE audit_logs
		SET result_status = $2, user_id = COALESCE($3, user_id)
		WHERE correlation_id = $1 AND result_status IS NULL
	`

	_, err := r.db.ExecContext(ctx, query, correlationID, status, userID)
	return err
}

// ListAuditLogs retrieves audit logs with optional filters and pagination
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE 1=1`
	query := `
		SELECT id, correlation_id, user_id, ip_address, user_agent, endpoint, method, action, payload, result_status, created_at
		FROM audit_logs
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.UserID != nil {
		countQuery += fmt.Sprintf(` AND user_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND user_id = $%d`, paramIndex)
		args = append(args, *filters.UserID)
		paramIndex++
	}

	if filters.Action != nil {
		countQuery += fmt.Sprintf(` AND action = $%d`, paramIndex)
		query += fmt.Sprintf(` AND action = $%d`, paramIndex)
		args = append(args, *filters.Action)
		paramIndex++
	}

	if filters.Endpoint != nil {
		countQuery += fmt.Sprintf(` AND endpoint = $%d`, paramIndex)
		query += fmt.Sprintf(` AND endpoint = $%d`, paramIndex)
		args = append(args, *filters.Endpoint)
		paramIndex++
	}

	if filters.StartDate != nil {
		countQuery += fmt.Sprintf(` AND created_at >= $%d`, paramIndex)
		query += fmt.Sprintf(` AND created_at >= $%d`, paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}

	if filters.EndDate != nil {
		countQuery += fmt.Sprintf(` AND created_at <= $%d`, paramIndex)
		query += fmt.Sprintf(` AND created_at <= $%d`, paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	// Get total count
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	// Add ordering and pagination
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log := &models.AuditLog{}
		var payloadJSON []byte

		err := rows.Scan(
			&log.ID,
			&log.CorrelationID,
			&log.UserID,
			&log.IPAddress,
			&log.UserAgent,
			&log.Endpoint,
			&log.Method,
			&log.Action,
			&payloadJSON,
			&log.ResultStatus,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}

		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &log.Payload); err != nil {
				return nil, 0, err
			}
		}

		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// GetByCorrelationID retrieves the audit entry for a correlation ID
func (r *AuditRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.AuditLog, error) {
	query := `
		SELECT id, correlation_id, user_id, ip_address, user_agent, endpoint, method, action, payload, result_status, created_at
		FROM audit_logs
		WHERE correlation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	log := &models.AuditLog{}
	var payloadJSON []byte

	err := r.db.QueryRowContext(ctx, query, correlationID).Scan(
		&log.ID,
		&log.CorrelationID,
		&log.UserID,
		&log.IPAddress,
		&log.UserAgent,
		&log.Endpoint,
		&log.Method,
		&log.Action,
		&payloadJSON,
		&log.ResultStatus,
		&log.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &log.Payload); err != nil {
			return nil, err
		}
	}

	return log, nil
}

// Count returns the total number of audit entries
func (r *AuditRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM audit_logs`)
	return count, err
}
