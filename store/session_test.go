package store

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CrowderSoup/taskcollab/database"
	"github.com/CrowderSoup/taskcollab/models"
	"github.com/CrowderSoup/taskcollab/services"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

var ada = &models.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}

func TestSessionRestore(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	creds := &memCredentials{token: token, user: ada}
	var sentToken string
	var s *SessionStore
	api := &mockAuthAPI{me: func() (*models.User, error) {
		sentToken = s.Token()
		return ada, nil
	}}
	s = NewSessionStore(api, creds, nil)

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !s.IsAuthenticated() || s.UserID() != "u1" {
		t.Errorf("state = %s user = %q", s.State(), s.UserID())
	}
	if sentToken != token {
		t.Error("token was not available while verifying")
	}
}

func TestSessionRestoreWithoutCredential(t *testing.T) {
	s := NewSessionStore(&mockAuthAPI{}, &memCredentials{}, nil)
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if s.State() != Anonymous {
		t.Errorf("State() = %s", s.State())
	}
}

func TestSessionRestoreFailures(t *testing.T) {
	tests := []struct {
		name  string
		creds func(t *testing.T) *memCredentials
		me    func() (*models.User, error)
	}{
		{
			name:  "malformed token",
			creds: func(*testing.T) *memCredentials { return &memCredentials{token: "not-a-jwt", user: ada} },
		},
		{
			name: "expired token",
			creds: func(t *testing.T) *memCredentials {
				return &memCredentials{token: signedToken(t, time.Now().Add(-time.Hour)), user: ada}
			},
		},
		{
			name: "server rejects token",
			creds: func(t *testing.T) *memCredentials {
				return &memCredentials{token: signedToken(t, time.Now().Add(time.Hour)), user: ada}
			},
			me: func() (*models.User, error) {
				return nil, &services.APIError{StatusCode: http.StatusUnauthorized, Message: "Token is not valid"}
			},
		},
		{
			name: "unreadable store",
			creds: func(*testing.T) *memCredentials {
				return &memCredentials{loadErr: errors.New("disk gone")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := tt.creds(t)
			api := &mockAuthAPI{me: tt.me}
			if api.me == nil {
				api.me = func() (*models.User, error) {
					t.Error("Me() should not be called")
					return nil, errors.New("unexpected")
				}
			}
			s := NewSessionStore(api, creds, nil)

			if err := s.Restore(context.Background()); err == nil {
				t.Fatal("expected error")
			}
			if s.State() != Anonymous || s.Token() != "" || s.User() != nil {
				t.Errorf("state = %s token = %q", s.State(), s.Token())
			}
			if creds.cleared == 0 {
				t.Error("credential was not discarded")
			}
			if _, _, err := creds.Load(); !errors.Is(err, database.ErrNoCredential) {
				t.Errorf("Load() after failure error = %v", err)
			}
		})
	}
}

func TestSessionRestoreMalformedUserRefetches(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	creds := &memCredentials{token: token, loadErr: database.ErrMalformedCredential}
	api := &mockAuthAPI{me: func() (*models.User, error) { return ada, nil }}
	s := NewSessionStore(api, creds, nil)

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if s.UserID() != "u1" || creds.user == nil || creds.user.ID != "u1" {
		t.Errorf("user not re-persisted: %+v", creds.user)
	}
}

func TestSessionLoginAndLogout(t *testing.T) {
	creds := &memCredentials{}
	api := &mockAuthAPI{login: func(req models.LoginRequest) (*models.AuthResponse, error) {
		if req.Password != "pw" {
			return nil, &services.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid credentials"}
		}
		return &models.AuthResponse{Token: "tok", User: ada}, nil
	}}
	s := NewSessionStore(api, creds, nil)

	err := s.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "bad"})
	if err == nil || s.Err() != "Invalid credentials" || s.State() != Anonymous {
		t.Fatalf("bad login: err = %v Err() = %q state = %s", err, s.Err(), s.State())
	}

	if err := s.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !s.IsAuthenticated() || s.Token() != "tok" || creds.token != "tok" {
		t.Errorf("state = %s token = %q stored = %q", s.State(), s.Token(), creds.token)
	}
	if s.Err() != "" {
		t.Errorf("Err() = %q after successful login", s.Err())
	}

	s.Logout()
	if s.State() != Anonymous || s.Token() != "" || creds.token != "" {
		t.Errorf("after logout state = %s token = %q stored = %q", s.State(), s.Token(), creds.token)
	}
}

func TestSessionRegister(t *testing.T) {
	creds := &memCredentials{}
	api := &mockAuthAPI{register: func(req models.RegisterRequest) (*models.AuthResponse, error) {
		return &models.AuthResponse{Token: "tok", User: &models.User{ID: "u2", Name: req.Name, Email: req.Email}}, nil
	}}
	s := NewSessionStore(api, creds, nil)

	if err := s.Register(context.Background(), models.RegisterRequest{Name: "Bo", Email: "bo@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if u := s.User(); u == nil || u.Name != "Bo" {
		t.Errorf("User() = %+v", u)
	}
}

func TestSessionExpiresOnUnauthorizedSignal(t *testing.T) {
	bus := services.NewBus()
	creds := &memCredentials{}
	api := &mockAuthAPI{login: func(models.LoginRequest) (*models.AuthResponse, error) {
		return &models.AuthResponse{Token: "tok", User: ada}, nil
	}}
	s := NewSessionStore(api, creds, bus)
	defer s.Close()

	s.Login(context.Background(), models.LoginRequest{Email: "a", Password: "b"})
	bus.Publish(services.Signal{Kind: services.SignalForbidden, Message: "nope"})
	if !s.IsAuthenticated() {
		t.Fatal("forbidden signal must not end the session")
	}

	bus.Publish(services.Signal{Kind: services.SignalUnauthorized})
	if s.State() != Anonymous || creds.token != "" {
		t.Errorf("state = %s stored = %q", s.State(), creds.token)
	}
}

func TestSessionLoginWithoutUserResolvesThroughMe(t *testing.T) {
	creds := &memCredentials{}
	var meToken string
	var s *SessionStore
	api := &mockAuthAPI{
		login: func(models.LoginRequest) (*models.AuthResponse, error) {
			return &models.AuthResponse{Token: "tok"}, nil
		},
		me: func() (*models.User, error) {
			meToken = s.Token()
			return ada, nil
		},
	}
	s = NewSessionStore(api, creds, nil)

	if err := s.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if meToken != "tok" {
		t.Errorf("Me() saw token %q, want the issued one", meToken)
	}
	if u := s.User(); !s.IsAuthenticated() || u == nil || u.ID != "u1" {
		t.Errorf("state = %s user = %+v", s.State(), u)
	}
	if creds.user == nil || creds.user.ID != "u1" {
		t.Errorf("stored user = %+v", creds.user)
	}
}

func TestSessionLoginWithoutResolvableUserFails(t *testing.T) {
	tests := []struct {
		name string
		me   func() (*models.User, error)
		want error
	}{
		{
			name: "me fails",
			me: func() (*models.User, error) {
				return nil, &services.APIError{StatusCode: http.StatusInternalServerError, Message: "Failed to fetch current user"}
			},
		},
		{
			name: "me returns no user",
			me:   func() (*models.User, error) { return &models.User{}, nil },
			want: ErrNoUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := &memCredentials{}
			api := &mockAuthAPI{
				login: func(models.LoginRequest) (*models.AuthResponse, error) {
					return &models.AuthResponse{Token: "tok"}, nil
				},
				me: tt.me,
			}
			s := NewSessionStore(api, creds, nil)

			err := s.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "pw"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if s.State() != Anonymous || s.Token() != "" || s.User() != nil {
				t.Errorf("state = %s token = %q user = %+v", s.State(), s.Token(), s.User())
			}
			if creds.token != "" {
				t.Errorf("stored token = %q", creds.token)
			}
			if s.Err() == "" {
				t.Error("Err() is empty")
			}
		})
	}
}
