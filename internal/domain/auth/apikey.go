package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeAdmin grants access to back-office routes.
const ScopeAdmin = "admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// APIKeyRepository provides lookup of API keys by their HMAC hash.
type APIKeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	Create(ctx context.Context, name, hash string, scopes []string) (*APIKeyInfo, error)
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper. Only hashes
// are stored.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// APIKeys authenticates machine clients by API key.
type APIKeys struct {
	repo   APIKeyRepository
	pepper []byte
}

// NewAPIKeys creates an API key authenticator.
func NewAPIKeys(repo APIKeyRepository, pepper []byte) *APIKeys {
	return &APIKeys{repo: repo, pepper: pepper}
}

// Authenticate resolves an API key to an identity. Keys carrying the admin
// scope authenticate as admins.
func (a *APIKeys) Authenticate(ctx context.Context, key string) (*Identity, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := HashAPIKey(a.pepper, key)

	info, err := a.repo.FindByHash(ctx, hash)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// The row must carry exactly the hash we computed.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, ErrUnauthorized
	}

	role := RoleUser
	if slices.Contains(info.Scopes, ScopeAdmin) {
		role = RoleAdmin
	}
	return &Identity{
		UserID: "apikey:" + info.ID,
		Name:   info.Name,
		Role:   role,
	}, nil
}

// Issue stores a new key and returns it with its record. The plain key is
// never persisted and cannot be recovered later.
func (a *APIKeys) Issue(ctx context.Context, name, key string, scopes []string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, errors.New("api key must not be empty")
	}
	info, err := a.repo.Create(ctx, name, HashAPIKey(a.pepper, key), scopes)
	if err != nil {
		return nil, errors.Wrap(err, "create api key")
	}
	return info, nil
}
