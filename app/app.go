// Package app routes user intents to the stores and owns the cross-cutting
// presentation state: the current route, transient alerts and the fault
// barrier around the signed-in view.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CrowderSoup/taskcollab/models"
	"github.com/CrowderSoup/taskcollab/services"
	"github.com/CrowderSoup/taskcollab/store"
)

var (
	ErrNotAuthenticated = errors.New("not signed in")
	ErrTaskNotFound     = errors.New("task not found")
)

// Connector opens and tears down the push channel.
type Connector interface {
	Connect(ctx context.Context, token string) (store.PushSubscriber, error)
	Disconnect()
}

type socketConnector struct {
	m *services.SocketManager
}

// SocketConnector adapts a SocketManager to Connector.
func SocketConnector(m *services.SocketManager) Connector {
	return socketConnector{m: m}
}

func (c socketConnector) Connect(ctx context.Context, token string) (store.PushSubscriber, error) {
	s, err := c.m.Init(ctx, token)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c socketConnector) Disconnect() {
	c.m.Disconnect()
}

// Deps are the collaborators an App is built from. Push is optional.
type Deps struct {
	Bus           *services.Bus
	Session       *store.SessionStore
	Tasks         *store.TaskStore
	Users         *store.UserStore
	Notifications *store.NotificationStore
	Push          Connector
	AlertTTL      time.Duration
}

// App is the intent router of the client.
type App struct {
	bus           *services.Bus
	Session       *store.SessionStore
	Tasks         *store.TaskStore
	Users         *store.UserStore
	Notifications *store.NotificationStore
	Nav           *Navigator
	Alerts        *Alerts

	push Connector

	mu      sync.Mutex
	started bool
	unbind  func()
	unsubs  []func()
}

// New wires an App and subscribes it to the bus signals.
func New(d Deps) *App {
	a := &App{
		bus:           d.Bus,
		Session:       d.Session,
		Tasks:         d.Tasks,
		Users:         d.Users,
		Notifications: d.Notifications,
		Nav:           NewNavigator(),
		Alerts:        NewAlerts(d.AlertTTL),
		push:          d.Push,
	}
	if a.bus != nil {
		a.unsubs = append(a.unsubs,
			a.bus.Subscribe(services.SignalForbidden, func(s services.Signal) {
				a.Alerts.Show(AlertError, s.Message)
				// Signed-out routes stay put; home would only bounce to /login.
				if a.Session.IsAuthenticated() {
					a.Nav.Navigate(RouteHome)
				}
			}),
			a.bus.Subscribe(services.SignalUnauthorized, func(services.Signal) {
				a.Stop()
				a.Nav.Navigate(RouteLogin)
			}),
			a.bus.Subscribe(services.SignalFatal, func(services.Signal) {
				a.Nav.Navigate(RouteHome)
			}),
		)
	}
	return a
}

// Close releases the bus subscriptions and the push channel.
func (a *App) Close() {
	a.Stop()
	for _, off := range a.unsubs {
		off()
	}
	a.unsubs = nil
}

// Init restores the persisted session. A failed restore is not an error for
// the app: it just starts signed out.
func (a *App) Init(ctx context.Context) error {
	if err := a.Session.Restore(ctx); err != nil {
		slog.Warn("could not restore session", "err", err)
	}
	if !a.Session.IsAuthenticated() {
		a.Nav.Navigate(RouteLogin)
		return nil
	}
	a.Nav.Navigate(RouteHome)
	return a.Start(ctx)
}

// Start loads the signed-in view: tasks with the current filters, users and
// notifications, then opens the push channel and binds its events. Load
// failures are recorded on the stores and do not abort the start.
func (a *App) Start(ctx context.Context) error {
	if !a.Session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	a.Stop()

	if err := a.Tasks.Fetch(ctx, a.Tasks.Filters()); err != nil && !errors.Is(err, store.ErrSuperseded) {
		slog.Warn("initial task fetch failed", "err", err)
	}
	if err := a.Users.Fetch(ctx); err != nil {
		slog.Warn("user fetch failed", "err", err)
	}
	if err := a.Notifications.Fetch(ctx); err != nil {
		slog.Warn("notification fetch failed", "err", err)
	}
	// The token may have been rejected while loading.
	if !a.Session.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	if a.push == nil {
		return nil
	}
	sock, err := a.push.Connect(ctx, a.Session.Token())
	if err != nil {
		slog.Warn("live updates unavailable", "err", err)
		return nil
	}
	a.unbind = store.BindPush(sock, a.Tasks, a.Notifications, a.Session.UserID)
	return nil
}

// Stop unbinds push events and closes the push channel. It is safe to call
// when nothing was started.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unbind != nil {
		a.unbind()
		a.unbind = nil
	}
	if a.started && a.push != nil {
		a.push.Disconnect()
	}
	a.started = false
}

// Login signs in and loads the signed-in view.
func (a *App) Login(ctx context.Context, req models.LoginRequest) error {
	if err := a.Session.Login(ctx, req); err != nil {
		return err
	}
	a.Nav.Navigate(RouteHome)
	return a.Start(ctx)
}

// Register creates an account, signs in and loads the signed-in view.
func (a *App) Register(ctx context.Context, req models.RegisterRequest) error {
	if err := a.Session.Register(ctx, req); err != nil {
		return err
	}
	a.Nav.Navigate(RouteHome)
	return a.Start(ctx)
}

// Logout closes the push channel before the session is dropped.
func (a *App) Logout() {
	a.Stop()
	a.Session.Logout()
	a.Tasks.Reset()
	a.Users.Reset()
	a.Notifications.ClearAll()
	a.Nav.Navigate(RouteLogin)
}

func (a *App) requireUser() (*models.User, error) {
	u := a.Session.User()
	if u == nil || !a.Session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	return u, nil
}

func (a *App) update(ctx context.Context, id string, patch models.TaskPatch) error {
	if _, err := a.requireUser(); err != nil {
		return err
	}
	cur, ok := a.Tasks.Task(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return a.Tasks.Update(ctx, cur.Apply(patch, a.Users.Lookup), patch)
}

// CompleteTask sets the task's status, shown immediately.
func (a *App) CompleteTask(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return models.ErrInvalidStatus
	}
	return a.update(ctx, id, models.TaskPatch{Status: &status})
}

// EditTask applies patch optimistically.
func (a *App) EditTask(ctx context.Context, id string, patch models.TaskPatch) error {
	return a.update(ctx, id, patch)
}

// CreateTask submits draft and confirms it with a success alert.
func (a *App) CreateTask(ctx context.Context, draft models.TaskDraft) (models.Task, error) {
	if _, err := a.requireUser(); err != nil {
		return models.Task{}, err
	}
	t, err := a.Tasks.Create(ctx, draft)
	if err != nil {
		return models.Task{}, err
	}
	a.Alerts.Show(AlertSuccess, "Task created")
	return t, nil
}

// DeleteTask removes the task, shown immediately.
func (a *App) DeleteTask(ctx context.Context, id string) error {
	if _, err := a.requireUser(); err != nil {
		return err
	}
	return a.Tasks.Delete(ctx, id)
}

// AddComment posts text as the signed-in user.
func (a *App) AddComment(ctx context.Context, id, text string) error {
	u, err := a.requireUser()
	if err != nil {
		return err
	}
	return a.Tasks.AddComment(ctx, id, text, *u)
}

// SetFilters refetches tasks with f. A fetch overtaken by a newer one is not
// an error.
func (a *App) SetFilters(ctx context.Context, f models.Filters) error {
	err := a.Tasks.SetFilters(ctx, f)
	if errors.Is(err, store.ErrSuperseded) {
		return nil
	}
	return err
}

// MarkRead marks ids read. With no ids every unread notification is marked.
func (a *App) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		for _, n := range a.Notifications.Notifications() {
			if !n.Read {
				ids = append(ids, n.ID)
			}
		}
	}
	return a.Notifications.MarkRead(ctx, ids)
}

// ClearRead deletes the read notifications.
func (a *App) ClearRead(ctx context.Context) error {
	return a.Notifications.ClearRead(ctx)
}
