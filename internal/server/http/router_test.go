package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikitavbv/sandbox/internal/app/dispatch"
	"github.com/nikitavbv/sandbox/internal/auth"
	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/domain/user"
)

type memTaskStore struct {
	tasks  map[string]task.Task
	assets map[string][]string
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]task.Task), assets: make(map[string][]string)}
}

func (m *memTaskStore) EnsureSchema(context.Context) error { return nil }
func (m *memTaskStore) Create(_ context.Context, taskID string, userID *string, params task.Params) error {
	m.tasks[taskID] = task.Task{TaskID: taskID, UserID: userID, CreatedAt: time.Now(), Params: params, Status: task.Pending()}
	return nil
}
func (m *memTaskStore) Get(_ context.Context, taskID string) (task.WithAssets, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return task.WithAssets{}, task.ErrNotFound
	}
	return task.WithAssets{Task: t, AssetIDs: m.assets[taskID]}, nil
}
func (m *memTaskStore) ListByUser(_ context.Context, userID string) ([]task.WithAssets, error) {
	var out []task.WithAssets
	for _, t := range m.tasks {
		if t.UserID != nil && *t.UserID == userID {
			out = append(out, task.WithAssets{Task: t})
		}
	}
	return out, nil
}
func (m *memTaskStore) LeaseNext(context.Context, string, time.Duration) (task.LeasedTask, bool, error) {
	for _, t := range m.tasks {
		if t.Status.IsPending() {
			return task.LeasedTask{TaskID: t.TaskID, Params: t.Params}, true, nil
		}
	}
	return task.LeasedTask{}, false, nil
}
func (m *memTaskStore) SaveStatus(_ context.Context, taskID string, status task.Status) error {
	t, ok := m.tasks[taskID]
	if !ok {
		return task.ErrNotFound
	}
	t.Status = status
	m.tasks[taskID] = t
	return nil
}
func (m *memTaskStore) CreateAsset(_ context.Context, taskID, assetID string) error {
	m.assets[taskID] = append(m.assets[taskID], assetID)
	return nil
}
func (m *memTaskStore) PendingCount(context.Context) (int64, error)    { return 0, nil }
func (m *memTaskStore) InProgressCount(context.Context) (int64, error) { return 0, nil }
func (m *memTaskStore) FinishedLast24h(context.Context) (int64, error) { return 0, nil }
func (m *memTaskStore) MaxPendingAge(context.Context) (time.Duration, bool, error) {
	return 0, false, nil
}
func (m *memTaskStore) ActiveWorkerCount(context.Context, time.Duration) (int64, error) { return 0, nil }
func (m *memTaskStore) TouchWorkerLiveness(context.Context, string) error               { return nil }

type memChatStore struct {
	messages map[string][]chat.Message
}

func newMemChatStore() *memChatStore { return &memChatStore{messages: make(map[string][]chat.Message)} }

func (m *memChatStore) EnsureSchema(context.Context) error { return nil }
func (m *memChatStore) Append(_ context.Context, taskID, content string, role chat.Role) (string, int, error) {
	index := len(m.messages[taskID])
	m.messages[taskID] = append(m.messages[taskID], chat.Message{TaskID: taskID, Content: content, Role: role, MessageIndex: index})
	return "msg", index, nil
}
func (m *memChatStore) List(_ context.Context, taskID string) ([]chat.Message, error) {
	return m.messages[taskID], nil
}

type memUserStore struct {
	byEmail map[string]user.User
}

func newMemUserStore() *memUserStore { return &memUserStore{byEmail: make(map[string]user.User)} }

func (m *memUserStore) EnsureSchema(context.Context) error { return nil }
func (m *memUserStore) GetOrCreateByEmail(_ context.Context, email string) (user.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	u := user.User{UserID: "user-" + email, Email: email}
	m.byEmail[email] = u
	return u, nil
}

type memArtifactStore struct {
	data map[string][]byte
}

func newMemArtifactStore() *memArtifactStore { return &memArtifactStore{data: make(map[string][]byte)} }

func (m *memArtifactStore) Put(_ context.Context, assetID string, data []byte) error {
	m.data[assetID] = data
	return nil
}
func (m *memArtifactStore) Get(_ context.Context, assetID string) ([]byte, error) {
	d, ok := m.data[assetID]
	if !ok {
		return nil, task.ErrNotFound
	}
	return d, nil
}

func newTestRouter(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	encodingPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	decodingPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	tokens, err := auth.NewTokenManager(encodingPEM, decodingPEM)
	require.NoError(t, err)

	oauth := auth.NewOAuthExchanger(auth.OAuthConfig{ClientID: "x", ClientSecret: "y", RedirectURL: "https://app.example.com"})
	service := dispatch.NewService(newMemTaskStore(), newMemChatStore(), newMemUserStore(), newMemArtifactStore(), tokens, oauth)

	router := NewRouter(service, tokens, RouterConfig{WorkerToken: "worker-secret", StallThreshold: time.Minute})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, server.URL
}

func TestCreateAndGetTaskOverHTTP(t *testing.T) {
	server, baseURL := newTestRouter(t)
	client := server.Client()

	body, _ := json.Marshal(map[string]interface{}{
		"kind": "image_generation", "prompt": "a fox", "iterations": 10, "number_of_images": 1,
	})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/dispatch/tasks", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("x-access-token", "worker-secret")
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.TaskID)

	getReq, err := http.NewRequest(http.MethodGet, baseURL+"/v1/dispatch/tasks/"+created.TaskID, nil)
	require.NoError(t, err)
	getReq.Header.Set("x-access-token", "worker-secret")

	getResp, err := client.Do(getReq)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestAnonymousCreateAndGetTaskOverHTTP(t *testing.T) {
	server, baseURL := newTestRouter(t)
	client := server.Client()

	body, _ := json.Marshal(map[string]interface{}{
		"kind": "image_generation", "prompt": "a fox", "iterations": 10, "number_of_images": 1,
	})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/dispatch/tasks", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.TaskID)

	getReq, err := http.NewRequest(http.MethodGet, baseURL+"/v1/dispatch/tasks/"+created.TaskID, nil)
	require.NoError(t, err)

	getResp, err := client.Do(getReq)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestMissingTokenReturnsUnauthorized(t *testing.T) {
	server, baseURL := newTestRouter(t)
	client := server.Client()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/dispatch/tasks", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReflectionEndpointListsOperations(t *testing.T) {
	server, baseURL := newTestRouter(t)
	client := server.Client()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/dispatch/reflection", nil)
	require.NoError(t, err)
	req.Header.Set("x-access-token", "worker-secret")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Operations []map[string]string `json:"operations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Operations)
}
