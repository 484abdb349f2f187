package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/taskcollab/app"
	"github.com/CrowderSoup/taskcollab/models"
)

// DataHandler maps task, user and notification endpoints onto app intents.
type DataHandler struct {
	app      *app.App
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewDataHandler creates a new data handler instance.
func NewDataHandler(a *app.App, hub *Hub, checkOrigin func(r *http.Request) bool) *DataHandler {
	return &DataHandler{
		app: a,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// GetState returns the whole view.
func (h *DataHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.View())
}

// ListTasks returns the loaded tasks.
func (h *DataHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Tasks.Tasks())
}

// GetTask loads one task from the server.
func (h *DataHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.app.Tasks.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *DataHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var draft models.TaskDraft
	if !decode(w, r, &draft) {
		return
	}
	task, err := h.app.CreateTask(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask applies a partial edit to a task.
func (h *DataHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch models.TaskPatch
	if !decode(w, r, &patch) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.app.EditTask(r.Context(), id, patch); err != nil {
		writeError(w, err)
		return
	}
	h.writeTask(w, id)
}

// CompleteTask sets the completion state of a task.
func (h *DataHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.Status `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.app.CompleteTask(r.Context(), id, body.Status); err != nil {
		writeError(w, err)
		return
	}
	h.writeTask(w, id)
}

func (h *DataHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteTask(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddComment posts a comment as the signed-in user.
func (h *DataHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &body) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.app.AddComment(r.Context(), id, body.Text); err != nil {
		writeError(w, err)
		return
	}
	h.writeTask(w, id)
}

func (h *DataHandler) writeTask(w http.ResponseWriter, id string) {
	task, ok := h.app.Tasks.Task(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// SetFilters replaces the active filters and returns the refetched tasks.
func (h *DataHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var f models.Filters
	if !decode(w, r, &f) {
		return
	}
	if err := h.app.SetFilters(r.Context(), f); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Tasks.Tasks())
}

func (h *DataHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Users.Users())
}

func (h *DataHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": h.app.Notifications.Notifications(),
		"unreadCount":   h.app.Notifications.UnreadCount(),
	})
}

// MarkRead marks the listed notifications read, or all of them when the
// body is empty.
func (h *DataHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"notificationIds"`
	}
	if r.ContentLength != 0 && !decode(w, r, &body) {
		return
	}
	if err := h.app.MarkRead(r.Context(), body.IDs); err != nil {
		writeError(w, err)
		return
	}
	h.ListNotifications(w, r)
}

// ClearRead deletes read notifications.
func (h *DataHandler) ClearRead(w http.ResponseWriter, r *http.Request) {
	if err := h.app.ClearRead(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.ListNotifications(w, r)
}

// DismissAlert hides the current alert.
func (h *DataHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.app.Alerts.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

// HandleWebSocket upgrades the connection and registers the tab with the hub.
func (h *DataHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("error upgrading to websocket", "err", err)
		return
	}

	client := NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	// Start every tab from the full view.
	h.hub.reply(client, Message{Type: "state", Data: h.app.View()})
}
