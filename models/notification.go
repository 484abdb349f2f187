package models

import (
	"encoding/json"
	"time"
)

// NotificationType is the kind of event a notification reports.
type NotificationType string

const (
	NotificationTaskAssign NotificationType = "task:assign"
	NotificationCommentNew NotificationType = "comment:new"
	NotificationTaskUpdate NotificationType = "task:update"
	NotificationOther      NotificationType = "other"
)

// UnmarshalJSON maps any type the client does not know to NotificationOther.
func (t *NotificationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch NotificationType(s) {
	case NotificationTaskAssign, NotificationCommentNew, NotificationTaskUpdate:
		*t = NotificationType(s)
	default:
		*t = NotificationOther
	}
	return nil
}

// Notification is one inbox entry.
type Notification struct {
	ID        string           `json:"_id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	TaskID    string           `json:"taskId,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}
