package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/relink/relink/internal/model"
)

// ErrAPIKeyNotFound is returned when no matching API key exists.
var ErrAPIKeyNotFound = errors.New("API key not found")

// CreateAPIKey inserts a new API key.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, owner_id, key_hash, key_prefix, role, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		key.ID,
		key.OwnerID,
		key.KeyHash,
		key.KeyPrefix,
		string(key.Role),
		key.Name,
		key.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetAPIKeysByPrefix retrieves all unrevoked API keys matching a prefix.
// Used during authentication to find candidate keys for verification.
func (s *Store) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	query := `
		SELECT id, owner_id, key_hash, key_prefix, role, name, revoked_at, created_at
		FROM api_keys
		WHERE key_prefix = $1 AND revoked_at IS NULL
	`

	rows, err := s.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get API keys by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// RevokeAPIKey marks an API key as revoked.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	query := `
		UPDATE api_keys
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`

	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	var role string
	err := row.Scan(
		&key.ID,
		&key.OwnerID,
		&key.KeyHash,
		&key.KeyPrefix,
		&role,
		&key.Name,
		&key.RevokedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	key.Role = model.Role(role)
	return &key, nil
}
