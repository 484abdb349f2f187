package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CrowderSoup/taskcollab/database"
	"github.com/CrowderSoup/taskcollab/models"
	"github.com/CrowderSoup/taskcollab/services"
)

// ErrNoUser is returned when the server accepts credentials but no user can
// be resolved for the issued token.
var ErrNoUser = errors.New("server returned no user for the session")

// SessionState is a step of the authentication state machine.
type SessionState string

const (
	Anonymous      SessionState = "anonymous"
	Authenticating SessionState = "authenticating"
	Authenticated  SessionState = "authenticated"
)

// AuthAPI is the subset of the transport client the session needs.
type AuthAPI interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Me(ctx context.Context) (*models.User, error)
}

// CredentialStore is the durable slot holding the token and current user.
type CredentialStore interface {
	Save(token string, user *models.User) error
	Load() (string, *models.User, error)
	Clear() error
}

// SessionStore is the authentication state machine. The token is the only
// durable credential: a session is active exactly when one is held.
type SessionStore struct {
	notifier

	api   AuthAPI
	creds CredentialStore
	now   func() time.Time

	mu    sync.RWMutex
	state SessionState
	token string
	user  *models.User
	req   requestState

	unsubscribe func()
}

// NewSessionStore builds an anonymous session. When bus is non-nil the
// session expires itself on every unauthorized signal.
func NewSessionStore(api AuthAPI, creds CredentialStore, bus *services.Bus) *SessionStore {
	s := &SessionStore{api: api, creds: creds, now: time.Now, state: Anonymous}
	if bus != nil {
		s.unsubscribe = bus.Subscribe(services.SignalUnauthorized, func(services.Signal) {
			s.Expire()
		})
	}
	return s
}

// Close detaches the session from the signal bus.
func (s *SessionStore) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Token implements services.TokenSource.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// State returns the current step of the state machine.
func (s *SessionStore) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a verified session is active.
func (s *SessionStore) IsAuthenticated() bool {
	return s.State() == Authenticated
}

// User returns a copy of the current user, or nil.
func (s *SessionStore) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UserID is "" when nobody is signed in.
func (s *SessionStore) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// Loading reports whether a session request is in flight.
func (s *SessionStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req.inflight > 0
}

// Err is the message of the last failed session request, or "".
func (s *SessionStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req.err
}

// ClearError drops the recorded error.
func (s *SessionStore) ClearError() {
	s.mu.Lock()
	s.req.err = ""
	s.mu.Unlock()
	s.changed()
}

func (s *SessionStore) begin(token string) {
	s.mu.Lock()
	s.state = Authenticating
	s.token = token
	s.req.begin()
	s.mu.Unlock()
	s.changed()
}

func (s *SessionStore) succeed(token string, user *models.User) {
	s.mu.Lock()
	s.state = Authenticated
	s.token = token
	s.user = user
	s.req.end(nil)
	s.mu.Unlock()
	s.changed()
}

func (s *SessionStore) reset(err error) {
	s.mu.Lock()
	s.state = Anonymous
	s.token = ""
	s.user = nil
	s.req.end(err)
	s.mu.Unlock()
	s.changed()
}

func (s *SessionStore) discard() {
	if err := s.creds.Clear(); err != nil {
		slog.Warn("failed to clear stored credential", "err", err)
	}
}

// Restore tries to resume the persisted session. Any failure discards the
// stored credential and leaves the session anonymous. A missing credential is
// not an error.
func (s *SessionStore) Restore(ctx context.Context) error {
	token, _, err := s.creds.Load()
	if errors.Is(err, database.ErrNoCredential) {
		return nil
	}
	if err != nil && token == "" {
		s.discard()
		return fmt.Errorf("restore session: %w", err)
	}
	if _, err := services.InspectToken(token, s.now()); err != nil {
		s.discard()
		return fmt.Errorf("restore session: %w", err)
	}

	s.begin(token)
	user, err := s.api.Me(ctx)
	if err == nil && (user == nil || user.ID == "") {
		err = ErrNoUser
	}
	if err != nil {
		s.discard()
		s.reset(err)
		return fmt.Errorf("restore session: %w", err)
	}
	if err := s.creds.Save(token, user); err != nil {
		slog.Warn("failed to persist restored session", "err", err)
	}
	s.succeed(token, user)
	slog.Info("session restored", "user", user.ID)
	return nil
}

// Login exchanges credentials for a session and persists it.
func (s *SessionStore) Login(ctx context.Context, req models.LoginRequest) error {
	s.begin("")
	resp, err := s.api.Login(ctx, req)
	return s.finish(ctx, resp, err)
}

// Register creates an account and signs it in.
func (s *SessionStore) Register(ctx context.Context, req models.RegisterRequest) error {
	s.begin("")
	resp, err := s.api.Register(ctx, req)
	return s.finish(ctx, resp, err)
}

// finish completes Login and Register. A response without a user is resolved
// through Me with the issued token; the session only becomes authenticated
// once both token and user are known.
func (s *SessionStore) finish(ctx context.Context, resp *models.AuthResponse, err error) error {
	if err != nil {
		s.reset(err)
		return err
	}
	user := resp.User
	if user == nil || user.ID == "" {
		s.mu.Lock()
		s.token = resp.Token
		s.mu.Unlock()
		user, err = s.api.Me(ctx)
		if err == nil && (user == nil || user.ID == "") {
			err = ErrNoUser
		}
		if err != nil {
			s.reset(err)
			return fmt.Errorf("resolve signed-in user: %w", err)
		}
	}
	if err := s.creds.Save(resp.Token, user); err != nil {
		slog.Warn("failed to persist session", "err", err)
	}
	s.succeed(resp.Token, user)
	return nil
}

// Logout ends the session and discards the stored credential.
func (s *SessionStore) Logout() {
	s.discard()
	s.reset(nil)
}

// Expire is Logout driven by the server rejecting the token.
func (s *SessionStore) Expire() {
	if s.State() == Anonymous && s.Token() == "" {
		s.discard()
		return
	}
	slog.Info("session expired")
	s.discard()
	s.reset(nil)
}
