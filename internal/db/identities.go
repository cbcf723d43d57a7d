package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS app_user (
	id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	provider      text NOT NULL,
	sub           text NOT NULL,
	email         text NOT NULL DEFAULT '',
	created_at    timestamptz NOT NULL DEFAULT now(),
	last_login_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (provider, sub)
)`

// ErrUserNotFound is returned when no identity matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// User is a provider identity the gateway has seen at least once.
type User struct {
	ID          string
	Provider    string
	Sub         string
	Email       string
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// Users records identities for providers that hand back identity facts
// (Google OIDC) rather than a hosted user record.
type Users struct {
	pool *pgxpool.Pool
}

func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

// Migrate creates the app_user table if it does not exist.
func (u *Users) Migrate(ctx context.Context) error {
	if _, err := u.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate app_user: %w", err)
	}
	return nil
}

// Upsert creates the identity on first login and bumps last_login_at after that.
// Returns the stable user ID.
func (u *Users) Upsert(ctx context.Context, provider, sub, email string) (string, error) {
	var id string
	err := u.pool.QueryRow(ctx,
		`INSERT INTO app_user (provider, sub, email) VALUES ($1, $2, $3)
		 ON CONFLICT (provider, sub) DO UPDATE
		   SET email = CASE WHEN excluded.email = '' THEN app_user.email ELSE excluded.email END,
		       last_login_at = now()
		 RETURNING id`, provider, sub, email).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert app_user: %w", err)
	}
	return id, nil
}

// Get loads a user by ID.
func (u *Users) Get(ctx context.Context, id string) (*User, error) {
	var usr User
	err := u.pool.QueryRow(ctx,
		`SELECT id, provider, sub, email, created_at, last_login_at
		 FROM app_user WHERE id = $1`, id).
		Scan(&usr.ID, &usr.Provider, &usr.Sub, &usr.Email, &usr.CreatedAt, &usr.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get app_user: %w", err)
	}
	return &usr, nil
}
