// Package postgres implements the Task Store, chat-message store, and user
// store ports against PostgreSQL via jackc/pgx/v5, following the
// query/scan and error-mapping idiom of
// internal/auth/adapters/postgres_store.go (pgx.ErrNoRows → domain
// sentinel, pgconn.PgError 23505 → uniqueness conflict).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikitavbv/sandbox/internal/domain/task"
)

// TaskStore is the pgx-backed task.Store implementation.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore returns a task.Store backed by pool.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

var _ task.Store = (*TaskStore)(nil)

// EnsureSchema creates the dispatch-plane schema if it does not exist.
func (s *TaskStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Create persists a new Pending task (CreateTask).
func (s *TaskStore) Create(ctx context.Context, taskID string, userID *string, params task.Params) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("postgres: marshal params: %w", err)
	}
	statusJSON, err := json.Marshal(task.Pending())
	if err != nil {
		return fmt.Errorf("postgres: marshal status: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (task_id, user_id, params, status, is_pending)
		VALUES ($1, $2, $3, $4, true)
	`, taskID, userID, paramsJSON, statusJSON)
	if err != nil {
		return fmt.Errorf("postgres: create task %s: %w", taskID, err)
	}
	return nil
}

func (s *TaskStore) scanTask(row pgx.Row) (task.Task, error) {
	var (
		t          task.Task
		userID     *string
		paramsJSON []byte
		statusJSON []byte
	)
	if err := row.Scan(&t.TaskID, &userID, &t.CreatedAt, &paramsJSON, &statusJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, fmt.Errorf("postgres: scan task: %w", err)
	}
	t.UserID = userID
	if err := json.Unmarshal(paramsJSON, &t.Params); err != nil {
		return task.Task{}, fmt.Errorf("postgres: decode params for %s: %w", t.TaskID, err)
	}
	if err := json.Unmarshal(statusJSON, &t.Status); err != nil {
		return task.Task{}, fmt.Errorf("postgres: decode status for %s: %w", t.TaskID, err)
	}
	return t, nil
}

func (s *TaskStore) assetIDs(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT asset_id FROM task_assets WHERE task_id = $1 ORDER BY asset_id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets for %s: %w", taskID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan asset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get retrieves a task and its ordered asset ids (GetTask).
func (s *TaskStore) Get(ctx context.Context, taskID string) (task.WithAssets, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT task_id, user_id, created_at, params, status FROM tasks WHERE task_id = $1
	`, taskID)

	t, err := s.scanTask(row)
	if err != nil {
		return task.WithAssets{}, err
	}

	assetIDs, err := s.assetIDs(ctx, taskID)
	if err != nil {
		// Artifact metadata is optional: a lookup failure here
		// still returns the task, just with no assets attached.
		return task.WithAssets{Task: t}, nil
	}
	return task.WithAssets{Task: t, AssetIDs: assetIDs}, nil
}

// ListByUser returns every task owned by userID, newest first.
func (s *TaskStore) ListByUser(ctx context.Context, userID string) ([]task.WithAssets, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT task_id, user_id, created_at, params, status
		FROM tasks WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks for user %s: %w", userID, err)
	}
	defer rows.Close()

	var results []task.WithAssets
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		assetIDs, err := s.assetIDs(ctx, t.TaskID)
		if err != nil {
			assetIDs = nil
		}
		results = append(results, task.WithAssets{Task: t, AssetIDs: assetIDs})
	}
	return results, rows.Err()
}

// LeaseNext atomically claims the oldest pending task. It first sweeps
// stale in-progress/leased rows back to Pending (the stuck-task recovery
// DESIGN.md records as an open-question decision), then selects with
// FOR UPDATE SKIP LOCKED so concurrent callers never observe the same row.
func (s *TaskStore) LeaseNext(ctx context.Context, ownerID string, stallThreshold time.Duration) (task.LeasedTask, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return task.LeasedTask{}, false, fmt.Errorf("postgres: begin lease tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pendingStatusJSON, err := json.Marshal(task.Pending())
	if err != nil {
		return task.LeasedTask{}, false, fmt.Errorf("postgres: marshal pending status: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tasks
		SET status = $1, is_pending = true, lease_owner = NULL, leased_at = NULL
		WHERE (
			(status->>'kind' = 'in_progress' AND updated_at < now() - make_interval(secs => $2))
			OR (is_pending = true AND leased_at IS NOT NULL AND leased_at < now() - make_interval(secs => $2))
		)
	`, pendingStatusJSON, stallThreshold.Seconds()); err != nil {
		return task.LeasedTask{}, false, fmt.Errorf("postgres: sweep stale tasks: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT task_id, params
		FROM tasks
		WHERE is_pending = true AND leased_at IS NULL
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`)

	var (
		taskID     string
		paramsJSON []byte
	)
	if err := row.Scan(&taskID, &paramsJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.LeasedTask{}, false, nil
		}
		return task.LeasedTask{}, false, fmt.Errorf("postgres: select next task: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tasks SET lease_owner = $1, leased_at = now() WHERE task_id = $2
	`, ownerID, taskID); err != nil {
		return task.LeasedTask{}, false, fmt.Errorf("postgres: record lease for %s: %w", taskID, err)
	}

	var params task.Params
	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return task.LeasedTask{}, false, fmt.Errorf("postgres: decode params for %s: %w", taskID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return task.LeasedTask{}, false, fmt.Errorf("postgres: commit lease tx: %w", err)
	}

	return task.LeasedTask{TaskID: taskID, Params: params}, true, nil
}

// SaveStatus updates status and the is_pending mirror in one statement,
// refusing to move a Finished task back to a non-terminal state.
func (s *TaskStore) SaveStatus(ctx context.Context, taskID string, status task.Status) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("postgres: marshal status: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $1, is_pending = $2, updated_at = now(),
		    lease_owner = CASE WHEN $2 THEN lease_owner ELSE NULL END,
		    leased_at = CASE WHEN $2 THEN leased_at ELSE NULL END
		WHERE task_id = $3 AND status->>'kind' != 'finished'
	`, statusJSON, status.IsPending(), taskID)
	if err != nil {
		return fmt.Errorf("postgres: save status for %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := s.Get(ctx, taskID)
		if getErr != nil {
			return getErr
		}
		if existing.Task.Status.IsTerminal() {
			return task.ErrAlreadyFinished
		}
		return task.ErrNotFound
	}
	return nil
}

// CreateAsset inserts an asset row for taskID under assetID. Assets are
// append-only: rows are never updated or deleted once created.
func (s *TaskStore) CreateAsset(ctx context.Context, taskID, assetID string) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO task_assets (task_id, asset_id) VALUES ($1, $2)
	`, taskID, assetID); err != nil {
		return fmt.Errorf("postgres: create asset for %s: %w", taskID, err)
	}
	return nil
}

// PendingCount returns the number of Pending tasks.
func (s *TaskStore) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE is_pending = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: pending count: %w", err)
	}
	return count, nil
}

// InProgressCount returns the number of InProgress tasks.
func (s *TaskStore) InProgressCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE status->>'kind' = 'in_progress'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: in-progress count: %w", err)
	}
	return count, nil
}

// FinishedLast24h returns the number of tasks that reached Finished and
// were created within the last 24 hours.
func (s *TaskStore) FinishedLast24h(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM tasks
		WHERE status->>'kind' = 'finished' AND created_at > now() - interval '24 hours'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: finished-last-24h count: %w", err)
	}
	return count, nil
}

// MaxPendingAge returns the age of the oldest Pending task, or ok=false if
// the queue is empty.
func (s *TaskStore) MaxPendingAge(ctx context.Context) (time.Duration, bool, error) {
	var seconds *float64
	err := s.pool.QueryRow(ctx, `
		SELECT extract(epoch FROM max(now() - created_at))
		FROM tasks WHERE is_pending = true
	`).Scan(&seconds)
	if err != nil {
		return 0, false, fmt.Errorf("postgres: max pending age: %w", err)
	}
	if seconds == nil {
		return 0, false, nil
	}
	return time.Duration(*seconds * float64(time.Second)), true, nil
}

// ActiveWorkerCount returns the number of workers that pinged within the
// given window ("active worker" = pinged within 10 minutes).
func (s *TaskStore) ActiveWorkerCount(ctx context.Context, within time.Duration) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM workers WHERE now() - last_ping_at < make_interval(secs => $1)
	`, within.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: active worker count: %w", err)
	}
	return count, nil
}

// TouchWorkerLiveness upserts ownerID's last-ping timestamp.
func (s *TaskStore) TouchWorkerLiveness(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workers (owner_id, last_ping_at) VALUES ($1, now())
		ON CONFLICT (owner_id) DO UPDATE SET last_ping_at = now()
	`, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: touch worker liveness for %s: %w", ownerID, err)
	}
	return nil
}
