// api_key_repository.go implements APIKeyRepository, providing database queries
// for API key creation, exact-token authentication lookup, in-place token
// regeneration, and deactivation.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/opsdeck/opsdeck/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// CreateAPIKey creates a new API key
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now()

	// Marshal scopes to JSONB
	scopesJSON, err := json.Marshal(apiKey.Scopes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, name, token, scopes, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.Name,
		apiKey.Token,
		scopesJSON,
		apiKey.IsActive,
		apiKey.CreatedAt,
	)

	return err
}

// GetActiveByToken retrieves an active API key by exact token match (for
// authentication). Inactive keys and unknown tokens both return (nil, nil).
func (r *APIKeyRepository) GetActiveByToken(ctx context.Context, token string) (*models.APIKey, error) {
	query := `
		SELECT id, name, token, scopes, is_active, created_at
		FROM api_keys
		WHERE token = $1 AND is_active = TRUE
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// GetAPIKeyByID retrieves an API key by ID
func (r *APIKeyRepository) GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `
		SELECT id, name, token, scopes, is_active, created_at
		FROM api_keys
		WHERE id = $1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, keyID))
}

// ListAPIKeys retrieves all API keys, newest first
func (r *APIKeyRepository) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT id, name, token, scopes, is_active, created_at
		FROM api_keys
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		key := &models.APIKey{}
		var scopesJSON []byte

		if err := rows.Scan(&key.ID, &key.Name, &key.Token, &scopesJSON, &key.IsActive, &key.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(scopesJSON, &key.Scopes); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// RegenerateToken swaps the token on an existing key in place. The record
// identity, name, and scopes are preserved; the old token stops authenticating
// as soon as the statement commits.
func (r *APIKeyRepository) RegenerateToken(ctx context.Context, keyID, newToken string) (*models.APIKey, error) {
	query := `
		UPDATE api_keys
		SET token = $2
		WHERE id = $1
		RETURNING id, name, token, scopes, is_active, created_at
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, keyID, newToken))
}

// DeactivateAPIKey marks a key inactive. Keys are never deleted.
func (r *APIKeyRepository) DeactivateAPIKey(ctx context.Context, keyID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, keyID)
	return err
}

// scanOne scans a single api_keys row, unmarshalling the scopes JSONB column.
func (r *APIKeyRepository) scanOne(row *sql.Row) (*models.APIKey, error) {
	apiKey := &models.APIKey{}
	var scopesJSON []byte

	err := row.Scan(
		&apiKey.ID,
		&apiKey.Name,
		&apiKey.Token,
		&scopesJSON,
		&apiKey.IsActive,
		&apiKey.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scopesJSON, &apiKey.Scopes); err != nil {
		return nil, err
	}

	return apiKey, nil
}
