package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/CrowderSoup/taskcollab/database"
	"github.com/CrowderSoup/taskcollab/models"
)

var errServer = errors.New("Failed to update task")

// mockTaskAPI serves tasks from an in-memory "server" list unless a func
// field overrides the call.
type mockTaskAPI struct {
	mu     sync.Mutex
	server []models.Task
	calls  []string

	getTasks    func(ctx context.Context, f models.Filters) ([]models.Task, error)
	createTask  func(ctx context.Context, d models.TaskDraft) (*models.Task, error)
	updateTask  func(ctx context.Context, id string, p models.TaskPatch) (*models.Task, error)
	deleteTask  func(ctx context.Context, id string) error
	addComment  func(ctx context.Context, id, text string) (*models.Task, error)
	getTaskByID func(ctx context.Context, id string) (*models.Task, error)
}

func (m *mockTaskAPI) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockTaskAPI) callCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockTaskAPI) GetTasks(ctx context.Context, f models.Filters) ([]models.Task, error) {
	m.record("GetTasks")
	if m.getTasks != nil {
		return m.getTasks(ctx, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTasks(m.server), nil
}

func (m *mockTaskAPI) GetTask(ctx context.Context, id string) (*models.Task, error) {
	m.record("GetTask")
	if m.getTaskByID != nil {
		return m.getTaskByID(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.server {
		if t.ID == id {
			c := t.Clone()
			return &c, nil
		}
	}
	return nil, errors.New("Task not found")
}

func (m *mockTaskAPI) CreateTask(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
	m.record("CreateTask")
	return m.createTask(ctx, d)
}

func (m *mockTaskAPI) UpdateTask(ctx context.Context, id string, p models.TaskPatch) (*models.Task, error) {
	m.record("UpdateTask")
	return m.updateTask(ctx, id, p)
}

func (m *mockTaskAPI) DeleteTask(ctx context.Context, id string) error {
	m.record("DeleteTask")
	return m.deleteTask(ctx, id)
}

func (m *mockTaskAPI) AddComment(ctx context.Context, id, text string) (*models.Task, error) {
	m.record("AddComment")
	return m.addComment(ctx, id, text)
}

type mockNotificationAPI struct {
	list       []models.Notification
	markErr    error
	deleteErr  error
	markedWith []string
}

func (m *mockNotificationAPI) GetNotifications(context.Context) ([]models.Notification, error) {
	return append([]models.Notification{}, m.list...), nil
}

func (m *mockNotificationAPI) MarkNotificationsRead(_ context.Context, ids []string) error {
	m.markedWith = ids
	return m.markErr
}

func (m *mockNotificationAPI) DeleteReadNotifications(context.Context) error {
	return m.deleteErr
}

type mockUserAPI struct {
	users []models.User
	err   error
}

func (m *mockUserAPI) GetUsers(context.Context) ([]models.User, error) {
	return m.users, m.err
}

type mockAuthAPI struct {
	login    func(models.LoginRequest) (*models.AuthResponse, error)
	register func(models.RegisterRequest) (*models.AuthResponse, error)
	me       func() (*models.User, error)
}

func (m *mockAuthAPI) Login(_ context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	return m.login(req)
}

func (m *mockAuthAPI) Register(_ context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return m.register(req)
}

func (m *mockAuthAPI) Me(context.Context) (*models.User, error) {
	return m.me()
}

// memCredentials is an in-memory credential slot.
type memCredentials struct {
	token   string
	user    *models.User
	loadErr error
	cleared int
}

func (m *memCredentials) Save(token string, user *models.User) error {
	m.token = token
	m.user = user
	return nil
}

func (m *memCredentials) Load() (string, *models.User, error) {
	if m.loadErr != nil {
		return m.token, m.user, m.loadErr
	}
	if m.token == "" {
		return "", nil, database.ErrNoCredential
	}
	return m.token, m.user, nil
}

func (m *memCredentials) Clear() error {
	m.token = ""
	m.user = nil
	m.loadErr = nil
	m.cleared++
	return nil
}

// fakeSocket records handlers and lets tests emit events.
type fakeSocket struct {
	handlers map[string]func(json.RawMessage)
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{handlers: make(map[string]func(json.RawMessage))}
}

func (f *fakeSocket) On(event string, fn func(json.RawMessage)) func() {
	f.handlers[event] = fn
	return func() { delete(f.handlers, event) }
}

func (f *fakeSocket) emit(event, data string) {
	if fn, ok := f.handlers[event]; ok {
		fn(json.RawMessage(data))
	}
}
