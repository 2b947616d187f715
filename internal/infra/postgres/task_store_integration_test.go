//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/shared/idgen"
	"github.com/nikitavbv/sandbox/internal/shared/testutil"
)

func TestTaskStore_CreateLeaseAndFinish(t *testing.T) {
	pool, _, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	params := task.NewImageGenerationParams("a quiet lake at dawn", 20, 1)
	require.NoError(t, store.Create(ctx, "task-1", nil, params))

	leased, ok, err := store.LeaseNext(ctx, "worker-a", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "task-1", leased.TaskID)

	_, ok, err = store.LeaseNext(ctx, "worker-b", 5*time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second lease attempt should find no unleashed pending task")

	inProgress := task.NewInProgress(0, 1, 20)
	require.NoError(t, store.SaveStatus(ctx, "task-1", inProgress))

	assetID := idgen.NewULID()
	require.NoError(t, store.CreateAsset(ctx, "task-1", assetID))

	require.NoError(t, store.SaveStatus(ctx, "task-1", task.Finished()))

	withAssets, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, withAssets.Task.Status.IsTerminal())
	require.Equal(t, []string{assetID}, withAssets.AssetIDs)

	err = store.SaveStatus(ctx, "task-1", task.Pending())
	require.ErrorIs(t, err, task.ErrAlreadyFinished)
}

func TestTaskStore_LeaseNextSweepsStaleInProgress(t *testing.T) {
	pool, _, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	require.NoError(t, store.Create(ctx, "task-2", nil, task.NewChatMessageGenerationParams()))

	_, ok, err := store.LeaseNext(ctx, "worker-a", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.SaveStatus(ctx, "task-2", task.NewInProgress(0, 0, 1)))

	_, err = pool.Exec(ctx, `UPDATE tasks SET updated_at = now() - interval '1 hour' WHERE task_id = $1`, "task-2")
	require.NoError(t, err)

	leased, ok, err := store.LeaseNext(ctx, "worker-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "stale in-progress task should be swept back to pending and re-leased")
	require.Equal(t, "task-2", leased.TaskID)
}

func TestTaskStore_Counters(t *testing.T) {
	pool, _, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	require.NoError(t, store.Create(ctx, "task-3", nil, task.NewChatMessageGenerationParams()))

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, pending, int64(1))

	_, hasAge, err := store.MaxPendingAge(ctx)
	require.NoError(t, err)
	require.True(t, hasAge)

	require.NoError(t, store.TouchWorkerLiveness(ctx, "worker-a"))
	active, err := store.ActiveWorkerCount(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.GreaterOrEqual(t, active, int64(1))
}
