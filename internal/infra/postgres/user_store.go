package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikitavbv/sandbox/internal/domain/user"
	"github.com/nikitavbv/sandbox/internal/shared/idgen"
)

// UserStore is the pgx-backed user.Store implementation.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore returns a user.Store backed by pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

var _ user.Store = (*UserStore)(nil)

// EnsureSchema creates the users table if it does not exist.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure user schema: %w", err)
	}
	return nil
}

// GetOrCreateByEmail returns the existing user for email, inserting one with
// a fresh ULID if none exists yet, mirroring the original source's
// create_or_get_user_by_email: an INSERT ... ON CONFLICT DO NOTHING paired
// with a SELECT so the id of either the new or the pre-existing row comes
// back from a single round trip.
func (s *UserStore) GetOrCreateByEmail(ctx context.Context, email string) (user.User, error) {
	newID := idgen.NewULID()

	var id string
	err := s.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO users (id, email) VALUES ($1, $2)
			ON CONFLICT (email) DO NOTHING
			RETURNING id
		)
		SELECT id FROM inserted
		UNION ALL
		SELECT id FROM users WHERE email = $2
		LIMIT 1
	`, newID, email).Scan(&id)
	if err != nil {
		return user.User{}, fmt.Errorf("postgres: get or create user %s: %w", email, err)
	}

	return user.User{UserID: id, Email: email}, nil
}
