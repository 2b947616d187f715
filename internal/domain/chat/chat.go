// Package chat defines the chat-message record for chat-style tasks.
package chat

import (
	"context"
	"errors"
	"time"
)

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a task's chat history (ChatMessage).
type Message struct {
	TaskID       string    `json:"task_id"`
	MessageID    string    `json:"message_id"`
	Content      string    `json:"content"`
	Role         Role      `json:"role"`
	MessageIndex int       `json:"message_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrUnknownRole is returned when a persisted role value isn't recognized.
var ErrUnknownRole = errors.New("chat: unknown role")

// Store is the chat-message persistence port. Appends are append-only and
// densely indexed per task: the implementation must compute the next
// message_index and insert it atomically.
type Store interface {
	EnsureSchema(ctx context.Context) error

	// Append inserts a message at max(message_index)+1 for taskID in a
	// single statement, returning the new message's ULID and the index it
	// was assigned.
	Append(ctx context.Context, taskID, content string, role Role) (messageID string, index int, err error)

	// List returns every message for taskID, ordered by message_index
	// ascending.
	List(ctx context.Context, taskID string) ([]Message, error)
}
