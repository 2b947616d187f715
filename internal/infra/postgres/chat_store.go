package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/shared/idgen"
)

// ChatStore is the pgx-backed chat.Store implementation.
type ChatStore struct {
	pool *pgxpool.Pool
}

// NewChatStore returns a chat.Store backed by pool.
func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

var _ chat.Store = (*ChatStore)(nil)

// EnsureSchema creates the chat_messages table if it does not exist.
func (s *ChatStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure chat schema: %w", err)
	}
	return nil
}

// Append inserts the next message for taskID, computing message_index as
// max(message_index)+1 in the same statement. Two concurrent appends can
// still compute the same index; the loser hits the (task_id,
// message_index) unique constraint and the statement is re-run, so every
// append ends up with its own dense index. A prior draft of this subquery
// filtered on the not-yet-inserted message's own id and so always
// evaluated the coalesce fallback instead of the running max; the subquery
// here scopes only by task_id.
func (s *ChatStore) Append(ctx context.Context, taskID, content string, role chat.Role) (string, int, error) {
	const maxAttempts = 32
	messageID := idgen.NewULID()

	var (
		index int
		err   error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.pool.QueryRow(ctx, `
			WITH next_index AS (
				SELECT coalesce(max(message_index) + 1, 0) AS idx
				FROM chat_messages WHERE task_id = $1
			)
			INSERT INTO chat_messages (task_id, message_id, content, role, message_index)
			SELECT $1, $2, $3, $4, idx FROM next_index
			RETURNING message_index
		`, taskID, messageID, content, string(role)).Scan(&index)
		var pgErr *pgconn.PgError
		if err == nil || !errors.As(err, &pgErr) || pgErr.Code != "23505" {
			break
		}
	}
	if err != nil {
		return "", 0, fmt.Errorf("postgres: append chat message for %s: %w", taskID, err)
	}
	return messageID, index, nil
}

// List returns every message for taskID in message_index order.
func (s *ChatStore) List(ctx context.Context, taskID string) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT task_id, message_id, content, role, message_index, created_at
		FROM chat_messages WHERE task_id = $1 ORDER BY message_index ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chat messages for %s: %w", taskID, err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var (
			m    chat.Message
			role string
		)
		if err := rows.Scan(&m.TaskID, &m.MessageID, &m.Content, &role, &m.MessageIndex, &m.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				break
			}
			return nil, fmt.Errorf("postgres: scan chat message: %w", err)
		}
		m.Role = chat.Role(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
