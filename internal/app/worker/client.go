// Package worker implements the Worker Client (WC): the control loop that
// leases tasks from the Dispatch Authority, drives model execution, and
// reports progress back.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/domain/task"
)

// DispatcherClient is the subset of the Dispatcher API a worker process
// calls. It is satisfied both by an in-process *dispatch.Service and by
// HTTPClient below, so tests can drive Loop without a network.
type DispatcherClient interface {
	LeaseNextTask(ctx context.Context, ownerID string, stallThreshold time.Duration) (task.LeasedTask, bool, error)
	ReportProgress(ctx context.Context, taskID string, status task.Status) error
	UploadAsset(ctx context.Context, taskID string, data []byte) (string, error)
	ListMessages(ctx context.Context, taskID string) ([]chat.Message, error)
	AppendMessage(ctx context.Context, taskID, content string, role chat.Role) (string, int, error)
}

// HTTPClient calls the Dispatcher API's worker-facing routes over JSON: a
// thin hand-written HTTP client in place of a grpc-go generated stub,
// hitting the same operations.
type HTTPClient struct {
	baseURL      string
	workerToken  string
	httpClient   *http.Client
	stallThresh  time.Duration
}

// NewHTTPClient builds an HTTPClient against baseURL, authenticating every
// request with the shared worker secret (x-access-token).
func NewHTTPClient(baseURL, workerToken string, stallThreshold time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		workerToken: workerToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		stallThresh: stallThreshold,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("worker: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("worker: build request: %w", err)
	}
	req.Header.Set("x-access-token", c.workerToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worker: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("worker: %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type leaseRequest struct {
	OwnerID        string `json:"owner_id"`
	StallThreshold string `json:"stall_threshold"`
}

type leaseResponse struct {
	Task *task.LeasedTask `json:"task"`
}

// LeaseNextTask calls POST /v1/dispatch/worker/lease.
func (c *HTTPClient) LeaseNextTask(ctx context.Context, ownerID string, stallThreshold time.Duration) (task.LeasedTask, bool, error) {
	var resp leaseResponse
	err := c.do(ctx, http.MethodPost, "/v1/dispatch/worker/lease", leaseRequest{
		OwnerID:        ownerID,
		StallThreshold: stallThreshold.String(),
	}, &resp)
	if err != nil {
		return task.LeasedTask{}, false, err
	}
	if resp.Task == nil {
		return task.LeasedTask{}, false, nil
	}
	return *resp.Task, true, nil
}

type progressRequest struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// ReportProgress calls POST /v1/dispatch/worker/progress.
func (c *HTTPClient) ReportProgress(ctx context.Context, taskID string, status task.Status) error {
	return c.do(ctx, http.MethodPost, "/v1/dispatch/worker/progress", progressRequest{TaskID: taskID, Status: status}, nil)
}

type assetRequest struct {
	TaskID string `json:"task_id"`
	Data   []byte `json:"data"`
}

type assetResponse struct {
	AssetID string `json:"asset_id"`
}

// UploadAsset calls POST /v1/dispatch/worker/assets.
func (c *HTTPClient) UploadAsset(ctx context.Context, taskID string, data []byte) (string, error) {
	var resp assetResponse
	if err := c.do(ctx, http.MethodPost, "/v1/dispatch/worker/assets", assetRequest{TaskID: taskID, Data: data}, &resp); err != nil {
		return "", err
	}
	return resp.AssetID, nil
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

// ListMessages calls GET /v1/dispatch/tasks/:id/messages.
func (c *HTTPClient) ListMessages(ctx context.Context, taskID string) ([]chat.Message, error) {
	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/dispatch/tasks/"+taskID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

type appendMessageRequest struct {
	TaskID  string    `json:"task_id"`
	Content string    `json:"content"`
	Role    chat.Role `json:"role"`
}

type appendMessageResponse struct {
	MessageID string `json:"message_id"`
	Index     int    `json:"index"`
}

// AppendMessage calls POST /v1/dispatch/worker/messages.
func (c *HTTPClient) AppendMessage(ctx context.Context, taskID, content string, role chat.Role) (string, int, error) {
	var resp appendMessageResponse
	err := c.do(ctx, http.MethodPost, "/v1/dispatch/worker/messages", appendMessageRequest{
		TaskID: taskID, Content: content, Role: role,
	}, &resp)
	if err != nil {
		return "", 0, err
	}
	return resp.MessageID, resp.Index, nil
}
