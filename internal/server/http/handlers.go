package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nikitavbv/sandbox/internal/app/dispatch"
	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/shared/apperr"
)

// Handler wires the dispatch service into gin route handlers.
type Handler struct {
	service        *dispatch.Service
	stallThreshold time.Duration
}

// NewHandler builds a Handler over service.
func NewHandler(service *dispatch.Service, stallThreshold time.Duration) *Handler {
	return &Handler{service: service, stallThreshold: stallThreshold}
}

type createTaskRequest struct {
	Kind           task.ParamsKind `json:"kind" binding:"required"`
	Prompt         string          `json:"prompt"`
	Iterations     int             `json:"iterations"`
	NumberOfImages int             `json:"number_of_images"`
}

func (req createTaskRequest) toParams() (task.Params, error) {
	switch req.Kind {
	case task.ParamsImageGeneration:
		return task.NewImageGenerationParams(req.Prompt, req.Iterations, req.NumberOfImages), nil
	case task.ParamsChatMessageGen:
		return task.NewChatMessageGenerationParams(), nil
	default:
		return task.Params{}, task.ErrUnknownKind
	}
}

// HandleCreateTask implements POST /v1/dispatch/tasks (CreateTask).
func (h *Handler) HandleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "invalid request body", err))
		return
	}
	params, err := req.toParams()
	if err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "unrecognized task kind", err))
		return
	}

	var userID *string
	if id, ok := userIDFromContext(c); ok {
		userID = &id
	}

	taskID, err := h.service.CreateTask(c.Request.Context(), userID, params)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task_id": taskID})
}

// HandleGetTask implements GET /v1/dispatch/tasks/:id (GetTask).
func (h *Handler) HandleGetTask(c *gin.Context) {
	withAssets, err := h.service.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, withAssets)
}

// HandleListTasks implements GET /v1/dispatch/tasks (GetAllTasks).
func (h *Handler) HandleListTasks(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		_ = c.Error(apperr.Unauthenticated("user token required"))
		return
	}
	tasks, err := h.service.ListTasks(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// HandleLeaseNextTask implements POST /v1/dispatch/worker/lease.
func (h *Handler) HandleLeaseNextTask(c *gin.Context) {
	var req struct {
		OwnerID string `json:"owner_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "invalid request body", err))
		return
	}

	leased, ok, err := h.service.LeaseNextTask(c.Request.Context(), req.OwnerID, h.stallThreshold)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"task": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": leased})
}

type reportProgressRequest struct {
	TaskID string      `json:"task_id" binding:"required"`
	Status task.Status `json:"status"`
}

// HandleReportProgress implements POST /v1/dispatch/worker/progress, a
// worker's status update for a task it holds the lease on.
func (h *Handler) HandleReportProgress(c *gin.Context) {
	var req reportProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "invalid request body", err))
		return
	}
	if err := h.service.ReportProgress(c.Request.Context(), req.TaskID, req.Status); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type uploadAssetRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Data   []byte `json:"data" binding:"required"`
}

// HandleUploadAsset implements POST /v1/dispatch/worker/assets.
func (h *Handler) HandleUploadAsset(c *gin.Context) {
	var req uploadAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "invalid request body", err))
		return
	}
	assetID, err := h.service.UploadAsset(c.Request.Context(), req.TaskID, req.Data)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"asset_id": assetID})
}

// HandleListMessages implements GET /v1/dispatch/tasks/:id/messages,
// returning a task's chat history in order.
func (h *Handler) HandleListMessages(c *gin.Context) {
	messages, err := h.service.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type appendMessageRequest struct {
	TaskID  string    `json:"task_id"`
	Content string    `json:"content" binding:"required"`
	Role    chat.Role `json:"role" binding:"required"`
}

// HandleWorkerAppendMessage implements POST /v1/dispatch/worker/messages
// (AppendChatMessage called by a worker).
func (h *Handler) HandleWorkerAppendMessage(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "invalid request body", err))
		return
	}
	messageID, index, err := h.service.AppendMessage(c.Request.Context(), req.TaskID, req.Content, req.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message_id": messageID, "index": index})
}

// HandleUserAppendMessage implements POST /v1/dispatch/tasks/:id/messages
// (AppendChatMessage called by an authenticated user, always
// tagged as the user role).
func (h *Handler) HandleUserAppendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "invalid request body", err))
		return
	}
	messageID, index, err := h.service.AppendMessage(c.Request.Context(), c.Param("id"), req.Content, chat.RoleUser)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message_id": messageID, "index": index})
}

type oauthExchangeRequest struct {
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirect_uri"`
}

// HandleOAuthExchange implements POST /v1/auth/oauth/exchange.
func (h *Handler) HandleOAuthExchange(c *gin.Context) {
	var req oauthExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.New(apperr.KindInternal, "invalid request body", err))
		return
	}
	token, u, err := h.service.OAuthLogin(c.Request.Context(), req.Code, req.RedirectURI)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "user_id": u.UserID, "email": u.Email})
}

// HandleOAuthCallback implements GET /v1/auth/oauth/callback, the redirect
// target a browser lands on after the provider's consent screen: a thin
// wrapper around the same exchange logic so the UI doesn't need to parse
// the query string itself.
func (h *Handler) HandleOAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		_ = c.Error(apperr.New(apperr.KindInternal, "missing code parameter", nil))
		return
	}
	token, u, err := h.service.OAuthLogin(c.Request.Context(), code, "")
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "user_id": u.UserID, "email": u.Email})
}

// HandleGetAsset implements GET /v1/storage/:asset_id.
func (h *Handler) HandleGetAsset(c *gin.Context) {
	data, err := h.service.GetAsset(c.Request.Context(), c.Param("asset_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// HandleHealth implements a liveness probe endpoint.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.Status(http.StatusOK)
}

// HandleReflection implements GET /v1/dispatch/reflection, a stand-in for
// gRPC server reflection: it lists every Dispatcher API operation and the
// concrete route that serves it.
func (h *Handler) HandleReflection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "dispatch.Dispatcher",
		"operations": []gin.H{
			{"name": "CreateTask", "method": "POST", "path": "/v1/dispatch/tasks"},
			{"name": "GetTask", "method": "GET", "path": "/v1/dispatch/tasks/:id"},
			{"name": "GetAllTasks", "method": "GET", "path": "/v1/dispatch/tasks"},
			{"name": "LeaseNextTask", "method": "POST", "path": "/v1/dispatch/worker/lease"},
			{"name": "ReportTaskProgress", "method": "POST", "path": "/v1/dispatch/worker/progress"},
			{"name": "CreateAsset", "method": "POST", "path": "/v1/dispatch/worker/assets"},
			{"name": "GetChatMessagesForTask", "method": "GET", "path": "/v1/dispatch/tasks/:id/messages"},
			{"name": "AppendChatMessage", "method": "POST", "path": "/v1/dispatch/worker/messages"},
			{"name": "AppendChatMessage", "method": "POST", "path": "/v1/dispatch/tasks/:id/messages"},
			{"name": "OAuthLogin", "method": "POST", "path": "/v1/auth/oauth/exchange"},
		},
	})
}
