package store

import (
	"encoding/json"
	"log/slog"

	"github.com/CrowderSoup/taskcollab/models"
)

// Push channel event names.
const (
	EventTaskUpdate      = "task:update"
	EventTaskAssign      = "task:assign"
	EventCommentNew      = "comment:new"
	EventTaskDelete      = "task:delete"
	EventNotificationNew = "notification:new"
)

// PushSubscriber is satisfied by *services.Socket.
type PushSubscriber interface {
	On(event string, fn func(json.RawMessage)) func()
}

type assignEvent struct {
	AssigneeID string      `json:"assigneeId"`
	Task       models.Task `json:"task"`
}

type commentEvent struct {
	Task models.Task `json:"task"`
}

// BindPush merges push events into the stores. Pushed snapshots go through
// the same OptimisticUpdate/OptimisticDelete rules as local edits. viewer
// returns the signed-in user's id. The returned func removes every handler.
func BindPush(sock PushSubscriber, tasks *TaskStore, notifications *NotificationStore, viewer func() string) func() {
	offs := []func(){
		sock.On(EventTaskUpdate, func(data json.RawMessage) {
			var t models.Task
			if err := json.Unmarshal(data, &t); err != nil {
				slog.Warn("bad push payload", "event", EventTaskUpdate, "err", err)
				return
			}
			tasks.OptimisticUpdate(t)
		}),
		sock.On(EventTaskAssign, func(data json.RawMessage) {
			var ev assignEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Warn("bad push payload", "event", EventTaskAssign, "err", err)
				return
			}
			me := viewer()
			if me == "" {
				return
			}
			if ev.AssigneeID == me || ev.Task.AssignedTo(me) {
				tasks.OptimisticUpdate(ev.Task)
			}
		}),
		sock.On(EventCommentNew, func(data json.RawMessage) {
			var ev commentEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Warn("bad push payload", "event", EventCommentNew, "err", err)
				return
			}
			tasks.OptimisticUpdate(ev.Task)
		}),
		sock.On(EventTaskDelete, func(data json.RawMessage) {
			id, ok := deletedID(data)
			if !ok {
				slog.Warn("bad push payload", "event", EventTaskDelete)
				return
			}
			tasks.OptimisticDelete(id)
		}),
	}
	if notifications != nil {
		offs = append(offs, sock.On(EventNotificationNew, func(data json.RawMessage) {
			var n models.Notification
			if err := json.Unmarshal(data, &n); err != nil {
				slog.Warn("bad push payload", "event", EventNotificationNew, "err", err)
				return
			}
			notifications.Add(n)
		}))
	}

	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// deletedID accepts a bare id string or an object carrying _id or taskId.
func deletedID(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, id != ""
	}
	var obj struct {
		ID     string `json:"_id"`
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	if obj.ID != "" {
		return obj.ID, true
	}
	return obj.TaskID, obj.TaskID != ""
}
