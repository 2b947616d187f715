package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/shared/logging"
)

// defaultPollInterval is how often an idle worker asks for new work.
const defaultPollInterval = 2 * time.Second

// Loop is the Worker Client's single control loop ("each
// worker process runs one control loop"). It leases tasks one at a time,
// dispatches to the model appropriate for the task's params kind, and
// reports image progress through a buffered channel so slow network calls
// to the Dispatch Authority stall the model's step callback only once that
// buffer is full.
type Loop struct {
	client DispatcherClient
	image  ImageModel
	chat   ChatModel

	ownerID        string
	pollInterval   time.Duration
	stallThreshold time.Duration
	logger         logging.Logger
}

// Option configures optional Loop behavior.
type Option func(*Loop)

// WithPollInterval overrides the idle polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loop) { l.pollInterval = d }
}

// WithLogger attaches a structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loop) { l.logger = logging.OrNop(logger) }
}

// NewLoop builds a Loop that leases work as ownerID.
func NewLoop(client DispatcherClient, image ImageModel, chatModel ChatModel, ownerID string, stallThreshold time.Duration, opts ...Option) *Loop {
	l := &Loop{
		client:         client,
		image:          image,
		chat:           chatModel,
		ownerID:        ownerID,
		pollInterval:   defaultPollInterval,
		stallThreshold: stallThreshold,
		logger:         logging.Nop,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls for work until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.pollOnce(ctx)
		}
	}
}

func (l *Loop) pollOnce(ctx context.Context) {
	leased, ok, err := l.client.LeaseNextTask(ctx, l.ownerID, l.stallThreshold)
	if err != nil {
		l.logger.Warn("lease failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	l.logger.Info("task leased", zap.String("task_id", leased.TaskID), zap.String("kind", string(leased.Params.Kind)))

	switch leased.Params.Kind {
	case task.ParamsImageGeneration:
		l.runImageTask(ctx, leased)
	case task.ParamsChatMessageGen:
		l.runChatTask(ctx, leased)
	default:
		l.logger.Warn("leased task with unrecognized params kind", zap.String("task_id", leased.TaskID))
	}
}

// progressUpdate is one entry on the MPSC progress queue: the step callback
// from model inference is the producer, the reporter goroutine below is the
// sole consumer.
type progressUpdate struct {
	taskID string
	status task.Status
}

// runImageTask generates every requested image in order, streaming
// per-step progress through a 32-entry buffered channel drained by one
// reporter goroutine for the whole task. A slow ReportProgress round trip
// blocks the model's step callback only when 32 updates are already
// waiting.
func (l *Loop) runImageTask(ctx context.Context, leased task.LeasedTask) {
	params := leased.Params.ImageGeneration
	if params == nil {
		l.logger.Warn("image generation task missing params", zap.String("task_id", leased.TaskID))
		return
	}

	updates := make(chan progressUpdate, 32)
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		for u := range updates {
			if err := l.client.ReportProgress(ctx, u.taskID, u.status); err != nil {
				l.logger.Warn("report progress failed", zap.String("task_id", u.taskID), zap.Error(err))
			}
		}
	}()

	var runErr error
	for imageIndex := 0; imageIndex < params.NumberOfImages; imageIndex++ {
		idx := imageIndex
		data, err := l.image.GenerateImage(ctx, params.Prompt, params.Iterations, func(step int) {
			select {
			case updates <- progressUpdate{leased.TaskID, task.NewInProgress(idx, step, params.Iterations)}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			runErr = err
			break
		}
		if _, err := l.client.UploadAsset(ctx, leased.TaskID, data); err != nil {
			runErr = err
			break
		}
	}

	close(updates)
	<-reporterDone

	if runErr != nil {
		l.logger.Warn("image task failed", zap.String("task_id", leased.TaskID), zap.Error(runErr))
		return
	}
	if err := l.client.ReportProgress(ctx, leased.TaskID, task.Finished()); err != nil {
		l.logger.Warn("report finished failed", zap.String("task_id", leased.TaskID), zap.Error(err))
	}
}

// runChatTask generates the next assistant reply for a chat-style task and
// appends it to the task's message history.
func (l *Loop) runChatTask(ctx context.Context, leased task.LeasedTask) {
	history, err := l.client.ListMessages(ctx, leased.TaskID)
	if err != nil {
		l.logger.Warn("list messages failed", zap.String("task_id", leased.TaskID), zap.Error(err))
		return
	}

	if err := l.client.ReportProgress(ctx, leased.TaskID, task.NewInProgress(0, 0, 1)); err != nil {
		l.logger.Warn("report progress failed", zap.String("task_id", leased.TaskID), zap.Error(err))
	}

	reply, err := l.chat.GenerateReply(ctx, history)
	if err != nil {
		l.logger.Warn("chat generation failed", zap.String("task_id", leased.TaskID), zap.Error(err))
		return
	}

	if _, _, err := l.client.AppendMessage(ctx, leased.TaskID, reply, chat.RoleAssistant); err != nil {
		l.logger.Warn("append message failed", zap.String("task_id", leased.TaskID), zap.Error(err))
		return
	}

	if err := l.client.ReportProgress(ctx, leased.TaskID, task.Finished()); err != nil {
		l.logger.Warn("report finished failed", zap.String("task_id", leased.TaskID), zap.Error(err))
	}
}
