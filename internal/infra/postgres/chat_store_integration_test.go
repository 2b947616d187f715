//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/shared/testutil"
)

func TestChatStore_AppendOrdersByIndex(t *testing.T) {
	pool, _, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	taskStore := NewTaskStore(pool)
	chatStore := NewChatStore(pool)
	ctx := context.Background()
	require.NoError(t, taskStore.EnsureSchema(ctx))
	require.NoError(t, chatStore.EnsureSchema(ctx))
	require.NoError(t, taskStore.Create(ctx, "task-chat-1", nil, task.NewChatMessageGenerationParams()))

	_, idx0, err := chatStore.Append(ctx, "task-chat-1", "hello", chat.RoleUser)
	require.NoError(t, err)
	require.Equal(t, 0, idx0)

	_, idx1, err := chatStore.Append(ctx, "task-chat-1", "hi there", chat.RoleAssistant)
	require.NoError(t, err)
	require.Equal(t, 1, idx1)

	messages, err := chatStore.List(ctx, "task-chat-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "hello", messages[0].Content)
	require.Equal(t, "hi there", messages[1].Content)
}

func TestChatStore_ConcurrentAppendsNeverCollideOnIndex(t *testing.T) {
	pool, _, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	taskStore := NewTaskStore(pool)
	chatStore := NewChatStore(pool)
	ctx := context.Background()
	require.NoError(t, taskStore.EnsureSchema(ctx))
	require.NoError(t, chatStore.EnsureSchema(ctx))
	require.NoError(t, taskStore.Create(ctx, "task-chat-2", nil, task.NewChatMessageGenerationParams()))

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := chatStore.Append(ctx, "task-chat-2", "message", chat.RoleUser)
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	messages, err := chatStore.List(ctx, "task-chat-2")
	require.NoError(t, err)
	require.Len(t, messages, n)
	seen := make(map[int]bool, n)
	for _, m := range messages {
		require.False(t, seen[m.MessageIndex], "duplicate message_index %d", m.MessageIndex)
		seen[m.MessageIndex] = true
	}
}
