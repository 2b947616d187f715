package task

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a task id has no matching row.
var ErrNotFound = errors.New("task: not found")

// LeasedTask is what LeaseNext hands back to a worker: just enough to start
// execution without exposing full store internals.
type LeasedTask struct {
	TaskID string `json:"task_id"`
	Params Params `json:"params"`
}

// WithAssets bundles a Task with its ordered asset ids, the shape GetTask
// and GetAllTasks return to callers ("Does not return bytes;
// clients fetch assets from AS through the artifact endpoint").
type WithAssets struct {
	Task     Task     `json:"task"`
	AssetIDs []string `json:"asset_ids,omitempty"`
}

// Store is the Task Store port: the durable, transactional
// record of tasks plus the atomic lease protocol workers use to pull work.
type Store interface {
	// EnsureSchema creates the schema if it does not already exist.
	EnsureSchema(ctx context.Context) error

	// Create persists a new Pending task. userID is nil for anonymous
	// submissions.
	Create(ctx context.Context, taskID string, userID *string, params Params) error

	// Get retrieves a task and its asset ids. Returns ErrNotFound if the
	// task id is unknown.
	Get(ctx context.Context, taskID string) (WithAssets, error)

	// ListByUser returns every task owned by userID, newest first, each
	// with its asset ids.
	ListByUser(ctx context.Context, userID string) ([]WithAssets, error)

	// LeaseNext atomically claims the oldest pending task for a worker to
	// run. Returns ok=false when the queue is drained. Two concurrent
	// callers never observe the same task (SELECT ... FOR UPDATE SKIP
	// LOCKED). Also sweeps stale in_progress/leased rows back to Pending
	// before claiming (see DESIGN.md's open-question decision on
	// stuck-task recovery).
	LeaseNext(ctx context.Context, ownerID string, stallThreshold time.Duration) (LeasedTask, bool, error)

	// SaveStatus writes a task's status, keeping the is_pending mirror
	// column in the same statement. Returns ErrNotFound if the task id is
	// unknown, and a non-nil error if the task is already Finished
	// (Finished never transitions back).
	SaveStatus(ctx context.Context, taskID string, status Status) error

	// CreateAsset inserts an asset record for taskID under the given,
	// already-generated asset id. Callers write the bytes to the Artifact
	// Store under assetID before calling this, so the record is only ever
	// created after the object it references exists.
	CreateAsset(ctx context.Context, taskID, assetID string) error

	// PendingCount, InProgressCount, FinishedLast24h, MaxPendingAge, and
	// ActiveWorkerCount back the Metrics Aggregator.
	PendingCount(ctx context.Context) (int64, error)
	InProgressCount(ctx context.Context) (int64, error)
	FinishedLast24h(ctx context.Context) (int64, error)
	MaxPendingAge(ctx context.Context) (time.Duration, bool, error)
	ActiveWorkerCount(ctx context.Context, within time.Duration) (int64, error)

	// TouchWorkerLiveness records that ownerID issued a worker-facing RPC
	// just now (WorkerLiveness). dispatch.Service calls it from
	// LeaseNextTask only; progress, asset and message calls from a worker
	// do not refresh liveness.
	TouchWorkerLiveness(ctx context.Context, ownerID string) error
}

// ErrAlreadyFinished is returned by SaveStatus when the task has already
// reached the Finished terminal state.
var ErrAlreadyFinished = errors.New("task: already finished")

// ErrInvalidProgress is returned when a progress update is out of range
// (current_step > total_steps, or current_image out of range).
var ErrInvalidProgress = errors.New("task: invalid progress")
