package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id::text, key_hash, name, scopes
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	createAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES ($1::uuid, $2, $3, $4)`
)

var _ auth.APIKeyRepository = (*APIKeyRepository)(nil)

// APIKeyRepository stores hashed API keys in PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("api key not found: %w", err)
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// Create stores a new active key. Re-issuing an existing hash is an error.
func (r *APIKeyRepository) Create(ctx context.Context, name, hash string, scopes []string) (*auth.APIKeyInfo, error) {
	if scopes == nil {
		scopes = []string{}
	}
	info := &auth.APIKeyInfo{
		ID:      uuid.NewString(),
		KeyHash: hash,
		Name:    name,
		Scopes:  scopes,
	}
	if _, err := r.pool.Exec(ctx, createAPIKeySQL, info.ID, hash, name, scopes); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("api key %q already exists: %w", name, err)
		}
		return nil, fmt.Errorf("creating api key %q: %w", name, err)
	}
	return info, nil
}
