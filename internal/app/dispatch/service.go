// Package dispatch implements the Dispatcher API's business logic
// (Dispatch Authority + Management API), independent of the HTTP
// transport that exposes it. Construction uses functional options
// (see Option).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/nikitavbv/sandbox/internal/auth"
	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/domain/user"
	"github.com/nikitavbv/sandbox/internal/shared/apperr"
	"github.com/nikitavbv/sandbox/internal/shared/idgen"
	"github.com/nikitavbv/sandbox/internal/shared/logging"
)

// ArtifactStore is the narrow port the service needs from the Artifact
// Store; it is satisfied by internal/infra/artifact.Store.
type ArtifactStore interface {
	Put(ctx context.Context, assetID string, data []byte) error
	Get(ctx context.Context, assetID string) ([]byte, error)
}

// Service implements every Dispatcher API operation.
type Service struct {
	tasks     task.Store
	chats     chat.Store
	users     user.Store
	artifacts ArtifactStore
	tokens    *auth.TokenManager
	oauth     *auth.OAuthExchanger
	logger    logging.Logger
}

// NewService builds a Service with the given stores and adapters.
func NewService(
	tasks task.Store,
	chats chat.Store,
	users user.Store,
	artifacts ArtifactStore,
	tokens *auth.TokenManager,
	oauth *auth.OAuthExchanger,
	opts ...Option,
) *Service {
	svc := &Service{
		tasks:     tasks,
		chats:     chats,
		users:     users,
		artifacts: artifacts,
		tokens:    tokens,
		oauth:     oauth,
		logger:    logging.Nop,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(logger) }
}

// EnsureSchema prepares the backing stores' persisted schema.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if err := s.tasks.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := s.chats.EnsureSchema(ctx); err != nil {
		return err
	}
	return s.users.EnsureSchema(ctx)
}

// CreateTask enqueues a new task owned by userID (nil for anonymous
// callers), returning its generated id (CreateTask).
func (s *Service) CreateTask(ctx context.Context, userID *string, params task.Params) (taskID string, err error) {
	ctx, span := startSpan(ctx, traceSpanCreateTask, attribute.String("dispatch.kind", string(params.Kind)))
	defer func() {
		if taskID != "" {
			span.SetAttributes(attribute.String(traceAttrTaskID, taskID))
		}
		markSpanResult(span, err)
		span.End()
	}()

	taskID, err = idgen.NewTaskID()
	if err != nil {
		return "", fmt.Errorf("dispatch: generate task id: %w", err)
	}
	if err = s.tasks.Create(ctx, taskID, userID, params); err != nil {
		return "", fmt.Errorf("dispatch: create task: %w", err)
	}
	s.logger.Info("task created", zap.String("task_id", taskID), zap.String("kind", string(params.Kind)))
	return taskID, nil
}

// GetTask returns a task and its assets (GetTask).
func (s *Service) GetTask(ctx context.Context, taskID string) (task.WithAssets, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return task.WithAssets{}, apperr.NotFound("task")
		}
		return task.WithAssets{}, apperr.Internal(err)
	}
	return t, nil
}

// ListTasks returns every task owned by userID (GetAllTasks).
func (s *Service) ListTasks(ctx context.Context, userID string) ([]task.WithAssets, error) {
	tasks, err := s.tasks.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return tasks, nil
}

// LeaseNextTask claims the oldest pending task for ownerID, sweeping stale
// in-progress/leased rows back to Pending first (LeaseNextTask).
// It also records ownerID's liveness ping ("active worker").
func (s *Service) LeaseNextTask(ctx context.Context, ownerID string, stallThreshold time.Duration) (leased task.LeasedTask, ok bool, err error) {
	ctx, span := startSpan(ctx, traceSpanLeaseNextTask, attribute.String(traceAttrOwnerID, ownerID))
	defer func() {
		if ok {
			span.SetAttributes(attribute.String(traceAttrTaskID, leased.TaskID))
		}
		markSpanResult(span, err)
		span.End()
	}()

	if err := s.tasks.TouchWorkerLiveness(ctx, ownerID); err != nil {
		s.logger.Warn("failed to record worker liveness", zap.String("owner_id", ownerID), zap.Error(err))
	}

	leased, ok, err = s.tasks.LeaseNext(ctx, ownerID, stallThreshold)
	if err != nil {
		return task.LeasedTask{}, false, apperr.Internal(err)
	}
	return leased, ok, nil
}

// ReportProgress applies a worker-reported status transition, refusing to
// resurrect an already-Finished task.
func (s *Service) ReportProgress(ctx context.Context, taskID string, status task.Status) (err error) {
	_, span := startSpan(ctx, traceSpanReportProgress,
		attribute.String(traceAttrTaskID, taskID),
		attribute.String(traceAttrStatus, string(status.Kind)),
	)
	defer func() {
		markSpanResult(span, err)
		span.End()
	}()

	if status.Kind == task.StatusInProgress {
		existing, getErr := s.tasks.Get(ctx, taskID)
		if getErr != nil {
			if errors.Is(getErr, task.ErrNotFound) {
				return apperr.NotFound("task")
			}
			return apperr.Internal(getErr)
		}
		var numberOfImages int
		if img := existing.Task.Params.ImageGeneration; img != nil {
			numberOfImages = img.NumberOfImages
		}
		if validateErr := status.Validate(numberOfImages); validateErr != nil {
			return apperr.New(apperr.KindInternal, "invalid progress", validateErr)
		}
	}

	if err = s.tasks.SaveStatus(ctx, taskID, status); err != nil {
		if errors.Is(err, task.ErrAlreadyFinished) {
			return apperr.New(apperr.KindInternal, "task already finished", err)
		}
		if errors.Is(err, task.ErrNotFound) {
			return apperr.NotFound("task")
		}
		return apperr.Internal(err)
	}
	return nil
}

// UploadAsset stores asset bytes for taskID and records the asset id on the
// task. The bytes are written to the Artifact Store before the record is
// inserted, so the record never references an object that doesn't exist
// yet; a crash between the two leaves an orphaned object, never a
// dangling reference.
func (s *Service) UploadAsset(ctx context.Context, taskID string, data []byte) (string, error) {
	assetID := idgen.NewULID()
	if err := s.artifacts.Put(ctx, assetID, data); err != nil {
		return "", apperr.Internal(err)
	}
	if err := s.tasks.CreateAsset(ctx, taskID, assetID); err != nil {
		return "", apperr.Internal(err)
	}
	return assetID, nil
}

// GetAsset returns the stored bytes for assetID.
func (s *Service) GetAsset(ctx context.Context, assetID string) ([]byte, error) {
	data, err := s.artifacts.Get(ctx, assetID)
	if err != nil {
		return nil, apperr.NotFound("asset")
	}
	return data, nil
}

// ListMessages returns a task's chat history in order.
func (s *Service) ListMessages(ctx context.Context, taskID string) ([]chat.Message, error) {
	messages, err := s.chats.List(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return messages, nil
}

// AppendMessage appends a chat message to a task's history.
func (s *Service) AppendMessage(ctx context.Context, taskID, content string, role chat.Role) (string, int, error) {
	messageID, index, err := s.chats.Append(ctx, taskID, content, role)
	if err != nil {
		return "", 0, apperr.Internal(err)
	}
	return messageID, index, nil
}

// OAuthLogin exchanges an authorization code for user identity, upserts the
// user record, and mints a signed access token (OAuthLogin).
func (s *Service) OAuthLogin(ctx context.Context, code, redirectURI string) (token string, u user.User, err error) {
	ctx, span := startSpan(ctx, traceSpanOAuthLogin)
	defer func() {
		if u.UserID != "" {
			span.SetAttributes(attribute.String("dispatch.user_id", u.UserID))
		}
		markSpanResult(span, err)
		span.End()
	}()

	info, err := s.oauth.Exchange(ctx, code, redirectURI)
	if err != nil {
		return "", user.User{}, apperr.Upstream("oauth exchange failed", err)
	}

	u, err = s.users.GetOrCreateByEmail(ctx, info.Email)
	if err != nil {
		return "", user.User{}, apperr.Internal(err)
	}

	token, err = s.tokens.Mint(u.UserID, u.Email, info.Name)
	if err != nil {
		return "", user.User{}, apperr.Internal(err)
	}

	s.logger.Info("oauth login", zap.String("user_id", u.UserID))
	return token, u, nil
}

// AuthorizationURL returns the provider authorization-code URL the UI
// should redirect browsers to before OAuthLogin.
func (s *Service) AuthorizationURL(state string) string {
	return s.oauth.AuthURL(state)
}
