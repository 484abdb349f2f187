package store

import (
	"context"
	"sync"

	"github.com/CrowderSoup/taskcollab/models"
)

// UserAPI is the subset of the transport client the user store needs.
type UserAPI interface {
	GetUsers(ctx context.Context) ([]models.User, error)
}

// UserStore is read-mostly reference data, fetched once per session.
type UserStore struct {
	notifier

	api UserAPI

	mu    sync.RWMutex
	users []models.User
	req   requestState
}

// NewUserStore creates an empty user store.
func NewUserStore(api UserAPI) *UserStore {
	return &UserStore{api: api, users: []models.User{}}
}

// Fetch replaces the user list with the server's.
func (s *UserStore) Fetch(ctx context.Context) error {
	s.mu.Lock()
	s.req.begin()
	s.mu.Unlock()

	users, err := s.api.GetUsers(ctx)

	s.mu.Lock()
	s.req.end(err)
	if err == nil {
		s.users = append([]models.User{}, users...)
	}
	s.mu.Unlock()
	s.changed()
	return err
}

// Users returns a copy of the user list.
func (s *UserStore) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User{}, s.users...)
}

// Lookup returns a copy of the user with id.
func (s *UserStore) Lookup(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// Err is the message of the last failed fetch, or "".
func (s *UserStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req.err
}

// Reset forgets every user, e.g. on logout.
func (s *UserStore) Reset() {
	s.mu.Lock()
	s.users = []models.User{}
	s.req = requestState{}
	s.mu.Unlock()
	s.changed()
}
