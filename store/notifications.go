package store

import (
	"context"
	"sync"

	"github.com/CrowderSoup/taskcollab/models"
)

// NotificationAPI is the subset of the transport client the inbox needs.
type NotificationAPI interface {
	GetNotifications(ctx context.Context) ([]models.Notification, error)
	MarkNotificationsRead(ctx context.Context, ids []string) error
	DeleteReadNotifications(ctx context.Context) error
}

// NotificationStore holds the inbox. Notifications are never authored
// locally, so every mutation waits for the server.
type NotificationStore struct {
	notifier

	api NotificationAPI

	mu            sync.RWMutex
	notifications []models.Notification
	req           requestState
}

// NewNotificationStore creates an empty inbox.
func NewNotificationStore(api NotificationAPI) *NotificationStore {
	return &NotificationStore{api: api, notifications: []models.Notification{}}
}

// Notifications returns a copy of the inbox in server order.
func (s *NotificationStore) Notifications() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// UnreadCount counts the entries not yet read.
func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, x := range s.notifications {
		if !x.Read {
			n++
		}
	}
	return n
}

// Loading reports whether a fetch is in flight.
func (s *NotificationStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req.inflight > 0
}

// Err is the message of the last failed request, or "".
func (s *NotificationStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req.err
}

// Fetch replaces the whole inbox.
func (s *NotificationStore) Fetch(ctx context.Context) error {
	s.mu.Lock()
	s.req.begin()
	s.mu.Unlock()
	s.changed()

	list, err := s.api.GetNotifications(ctx)

	s.mu.Lock()
	s.req.end(err)
	if err == nil {
		s.notifications = append([]models.Notification{}, list...)
	}
	s.mu.Unlock()
	s.changed()
	return err
}

// MarkRead marks ids read on the server, then flips the flag of the matching
// entries. Unknown ids are ignored.
func (s *NotificationStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.api.MarkNotificationsRead(ctx, ids); err != nil {
		s.fail(err)
		return err
	}
	s.applyRead(ids)
	return nil
}

func (s *NotificationStore) applyRead(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	for i := range s.notifications {
		if _, ok := set[s.notifications[i].ID]; ok {
			s.notifications[i].Read = true
		}
	}
	s.mu.Unlock()
	s.changed()
}

// ClearRead deletes read notifications on the server, then drops every read
// entry locally, keeping the order of the rest.
func (s *NotificationStore) ClearRead(ctx context.Context) error {
	if err := s.api.DeleteReadNotifications(ctx); err != nil {
		s.fail(err)
		return err
	}
	s.applyClearRead()
	return nil
}

func (s *NotificationStore) applyClearRead() {
	s.mu.Lock()
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if !n.Read {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	s.mu.Unlock()
	s.changed()
}

// Add puts a pushed notification at the front. A notification already held
// is replaced in place.
func (s *NotificationStore) Add(n models.Notification) {
	s.mu.Lock()
	replaced := false
	for i := range s.notifications {
		if n.ID != "" && s.notifications[i].ID == n.ID {
			s.notifications[i] = n
			replaced = true
			break
		}
	}
	if !replaced {
		s.notifications = append([]models.Notification{n}, s.notifications...)
	}
	s.mu.Unlock()
	s.changed()
}

// ClearAll empties the local inbox, e.g. on logout.
func (s *NotificationStore) ClearAll() {
	s.mu.Lock()
	s.notifications = []models.Notification{}
	s.req = requestState{}
	s.mu.Unlock()
	s.changed()
}

func (s *NotificationStore) fail(err error) {
	s.mu.Lock()
	s.req.err = err.Error()
	s.mu.Unlock()
	s.changed()
}
