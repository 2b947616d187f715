package dispatch

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikitavbv/sandbox/internal/auth"
	"github.com/nikitavbv/sandbox/internal/domain/chat"
	"github.com/nikitavbv/sandbox/internal/domain/task"
	"github.com/nikitavbv/sandbox/internal/domain/user"
)

type fakeTaskStore struct {
	tasks       map[string]task.Task
	assets      map[string][]string
	leaseCalls  []string
	liveness    []string
	leaseErr    error
	saveErr     error
	alreadyDone map[string]bool
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		tasks:       make(map[string]task.Task),
		assets:      make(map[string][]string),
		alreadyDone: make(map[string]bool),
	}
}

func (f *fakeTaskStore) EnsureSchema(context.Context) error { return nil }

func (f *fakeTaskStore) Create(_ context.Context, taskID string, userID *string, params task.Params) error {
	f.tasks[taskID] = task.Task{TaskID: taskID, UserID: userID, CreatedAt: time.Now(), Params: params, Status: task.Pending()}
	return nil
}

func (f *fakeTaskStore) Get(_ context.Context, taskID string) (task.WithAssets, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return task.WithAssets{}, task.ErrNotFound
	}
	return task.WithAssets{Task: t, AssetIDs: f.assets[taskID]}, nil
}

func (f *fakeTaskStore) ListByUser(_ context.Context, userID string) ([]task.WithAssets, error) {
	var out []task.WithAssets
	for _, t := range f.tasks {
		if t.UserID != nil && *t.UserID == userID {
			out = append(out, task.WithAssets{Task: t, AssetIDs: f.assets[t.TaskID]})
		}
	}
	return out, nil
}

func (f *fakeTaskStore) LeaseNext(_ context.Context, ownerID string, _ time.Duration) (task.LeasedTask, bool, error) {
	f.leaseCalls = append(f.leaseCalls, ownerID)
	if f.leaseErr != nil {
		return task.LeasedTask{}, false, f.leaseErr
	}
	for _, t := range f.tasks {
		if t.Status.IsPending() {
			return task.LeasedTask{TaskID: t.TaskID, Params: t.Params}, true, nil
		}
	}
	return task.LeasedTask{}, false, nil
}

func (f *fakeTaskStore) SaveStatus(_ context.Context, taskID string, status task.Status) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return task.ErrNotFound
	}
	if t.Status.IsTerminal() {
		return task.ErrAlreadyFinished
	}
	t.Status = status
	f.tasks[taskID] = t
	return nil
}

func (f *fakeTaskStore) CreateAsset(_ context.Context, taskID, assetID string) error {
	f.assets[taskID] = append(f.assets[taskID], assetID)
	return nil
}

func (f *fakeTaskStore) PendingCount(context.Context) (int64, error)     { return 0, nil }
func (f *fakeTaskStore) InProgressCount(context.Context) (int64, error)  { return 0, nil }
func (f *fakeTaskStore) FinishedLast24h(context.Context) (int64, error)  { return 0, nil }
func (f *fakeTaskStore) MaxPendingAge(context.Context) (time.Duration, bool, error) {
	return 0, false, nil
}
func (f *fakeTaskStore) ActiveWorkerCount(context.Context, time.Duration) (int64, error) {
	return int64(len(f.liveness)), nil
}
func (f *fakeTaskStore) TouchWorkerLiveness(_ context.Context, ownerID string) error {
	f.liveness = append(f.liveness, ownerID)
	return nil
}

type fakeChatStore struct {
	messages map[string][]chat.Message
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{messages: make(map[string][]chat.Message)}
}

func (f *fakeChatStore) EnsureSchema(context.Context) error { return nil }

func (f *fakeChatStore) Append(_ context.Context, taskID, content string, role chat.Role) (string, int, error) {
	index := len(f.messages[taskID])
	msg := chat.Message{TaskID: taskID, MessageID: "msg", Content: content, Role: role, MessageIndex: index, CreatedAt: time.Now()}
	f.messages[taskID] = append(f.messages[taskID], msg)
	return msg.MessageID, index, nil
}

func (f *fakeChatStore) List(_ context.Context, taskID string) ([]chat.Message, error) {
	return f.messages[taskID], nil
}

type fakeUserStore struct {
	byEmail map[string]user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: make(map[string]user.User)}
}

func (f *fakeUserStore) EnsureSchema(context.Context) error { return nil }

func (f *fakeUserStore) GetOrCreateByEmail(_ context.Context, email string) (user.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	u := user.User{UserID: "user-" + email, Email: email}
	f.byEmail[email] = u
	return u, nil
}

type fakeArtifactStore struct {
	data map[string][]byte
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{data: make(map[string][]byte)}
}

func (f *fakeArtifactStore) Put(_ context.Context, assetID string, data []byte) error {
	f.data[assetID] = data
	return nil
}

func (f *fakeArtifactStore) Get(_ context.Context, assetID string) ([]byte, error) {
	data, ok := f.data[assetID]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func generateTestRSAKeyPair(t *testing.T) (encodingPEM, decodingPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	encodingPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	decodingPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return encodingPEM, decodingPEM
}

func newTestService(t *testing.T) (*Service, *fakeTaskStore, *fakeUserStore, *httptest.Server) {
	t.Helper()

	encodingPEM, decodingPEM := generateTestRSAKeyPair(t)
	tokens, err := auth.NewTokenManager(encodingPEM, decodingPEM)
	require.NoError(t, err)

	oauthServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
		case "/userinfo":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"email": "person@example.com", "name": "Person"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(oauthServer.Close)

	oauth := auth.NewOAuthExchanger(auth.OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/callback",
		TokenURL:     oauthServer.URL + "/token",
		UserInfoURL:  oauthServer.URL + "/userinfo",
	})

	taskStore := newFakeTaskStore()
	userStore := newFakeUserStore()
	svc := NewService(taskStore, newFakeChatStore(), userStore, newFakeArtifactStore(), tokens, oauth)
	return svc, taskStore, userStore, oauthServer
}

func TestCreateAndGetTask(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	taskID, err := svc.CreateTask(ctx, nil, task.NewImageGenerationParams("sunset", 10, 1))
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	got, err := svc.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.True(t, got.Task.Status.IsPending())
}

func TestGetTaskNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.GetTask(context.Background(), "missing")
	require.Error(t, err)
}

func TestReportProgressRejectsFinishedTask(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	taskID, err := svc.CreateTask(ctx, nil, task.NewChatMessageGenerationParams())
	require.NoError(t, err)
	require.NoError(t, svc.ReportProgress(ctx, taskID, task.Finished()))

	err = svc.ReportProgress(ctx, taskID, task.Pending())
	require.Error(t, err)
}

func TestUploadAndGetAsset(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	taskID, err := svc.CreateTask(ctx, nil, task.NewImageGenerationParams("prompt", 1, 1))
	require.NoError(t, err)

	assetID, err := svc.UploadAsset(ctx, taskID, []byte("pixels"))
	require.NoError(t, err)

	data, err := svc.GetAsset(ctx, assetID)
	require.NoError(t, err)
	require.Equal(t, []byte("pixels"), data)
}

func TestAppendAndListMessages(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, idx, err := svc.AppendMessage(ctx, "task-1", "hello", chat.RoleUser)
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	messages, err := svc.ListMessages(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestLeaseNextTaskTouchesLiveness(t *testing.T) {
	svc, taskStore, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, nil, task.NewChatMessageGenerationParams())
	require.NoError(t, err)

	leased, ok, err := svc.LeaseNextTask(ctx, "worker-1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, leased.TaskID)
	require.Contains(t, taskStore.liveness, "worker-1")
}

func TestOAuthLoginMintsTokenAndUpsertsUser(t *testing.T) {
	svc, _, userStore, _ := newTestService(t)
	ctx := context.Background()

	token, u, err := svc.OAuthLogin(ctx, "auth-code", "")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "person@example.com", u.Email)
	require.Contains(t, userStore.byEmail, "person@example.com")
}
