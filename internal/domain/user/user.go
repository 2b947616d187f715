// Package user defines the User record created on first OAuth login.
package user

import "context"

// User is a dispatch-plane account, identified by a ULID and a unique email
//.
type User struct {
	UserID string
	Email  string
}

// Store is the user persistence port. GetOrCreateByEmail is an
// upsert-then-read in one statement, matching the original source's
// `create_or_get_user_by_email` (INSERT ... ON CONFLICT DO NOTHING ...
// UNION ALL SELECT).
type Store interface {
	EnsureSchema(ctx context.Context) error
	GetOrCreateByEmail(ctx context.Context, email string) (User, error)
}
