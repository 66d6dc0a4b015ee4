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
	createUserSQL = `INSERT INTO users (id, email, name, password_hash, role)
		VALUES ($1::uuid, $2, $3, $4, $5)
		RETURNING created_at`

	getUserByEmailSQL = `SELECT id::text, email, name, password_hash, role, created_at
		FROM users WHERE email = $1`
)

var _ auth.UserRepository = (*UserRepository)(nil)

// UserRepository implements auth.UserRepository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts u, assigning its ID and CreatedAt.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	id := uuid.NewString()
	err := r.pool.QueryRow(ctx, createUserSQL, id, u.Email, u.Name, u.PasswordHash, string(u.Role)).
		Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("creating user %q: %w", u.Email, err)
	}
	u.ID = id
	return nil
}

// FindByEmail returns the account registered under email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	rows, err := r.pool.Query(ctx, getUserByEmailSQL, email)
	if err != nil {
		return nil, fmt.Errorf("finding user %q: %w", email, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (auth.User, error) {
		var (
			u    auth.User
			role string
		)
		err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.CreatedAt)
		u.Role = auth.Role(role)
		return u, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user %q: %w", email, err)
	}
	return &u, nil
}
