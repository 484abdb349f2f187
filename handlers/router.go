package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/CrowderSoup/taskcollab/app"
)

// NewRouter builds the bridge's HTTP surface under /api. Browser requests are
// only served for the listed origins; "*" is never honoured.
func NewRouter(a *app.App, hub *Hub, allowedOrigins []string) http.Handler {
	allowed := originSet(allowedOrigins)
	c := cors.New(cors.Options{
		AllowOriginFunc:  allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	m := NewMiddleware(a)
	authHandler := NewAuthHandler(a)
	dataHandler := NewDataHandler(a, hub, func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed(origin)
	})

	r := mux.NewRouter()
	r.Use(Logging, m.Recover, CheckOrigin(allowed))

	api := r.PathPrefix("/api").Subrouter()

	// Session routes
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", authHandler.Session).Methods(http.MethodGet)
	api.HandleFunc("/state", dataHandler.GetState).Methods(http.MethodGet)
	api.HandleFunc("/alert", dataHandler.DismissAlert).Methods(http.MethodDelete)

	// WebSocket route for live view updates
	api.HandleFunc("/ws", dataHandler.HandleWebSocket)

	// Signed-in routes
	p := api.NewRoute().Subrouter()
	p.Use(m.RequireSession)
	p.HandleFunc("/tasks", dataHandler.ListTasks).Methods(http.MethodGet)
	p.HandleFunc("/tasks", dataHandler.CreateTask).Methods(http.MethodPost)
	p.HandleFunc("/tasks/{id}", dataHandler.GetTask).Methods(http.MethodGet)
	p.HandleFunc("/tasks/{id}", dataHandler.UpdateTask).Methods(http.MethodPut)
	p.HandleFunc("/tasks/{id}", dataHandler.DeleteTask).Methods(http.MethodDelete)
	p.HandleFunc("/tasks/{id}/complete", dataHandler.CompleteTask).Methods(http.MethodPost)
	p.HandleFunc("/tasks/{id}/comments", dataHandler.AddComment).Methods(http.MethodPost)
	p.HandleFunc("/filters", dataHandler.SetFilters).Methods(http.MethodPut)
	p.HandleFunc("/users", dataHandler.ListUsers).Methods(http.MethodGet)
	p.HandleFunc("/notifications", dataHandler.ListNotifications).Methods(http.MethodGet)
	p.HandleFunc("/notifications/read", dataHandler.MarkRead).Methods(http.MethodPut)
	p.HandleFunc("/notifications/read", dataHandler.ClearRead).Methods(http.MethodDelete)

	return c.Handler(r)
}

// originSet matches origins against an explicit list, ignoring case and a
// trailing slash. Wildcard entries are dropped.
func originSet(origins []string) func(origin string) bool {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if strings.Contains(o, "*") {
			slog.Warn("ignoring wildcard origin", "origin", o)
			continue
		}
		set[normalizeOrigin(o)] = struct{}{}
	}
	return func(origin string) bool {
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

// Bridge forwards every view change to the hub and returns the func that
// stops forwarding.
func Bridge(a *app.App, hub *Hub) func() {
	return a.Watch(func(c app.Change) {
		hub.Broadcast(Message{Type: string(c), Data: payload(a, c)})
	})
}

func payload(a *app.App, c app.Change) any {
	switch c {
	case app.ChangeTasks:
		return map[string]any{
			"tasks":   a.Tasks.Tasks(),
			"filters": a.Tasks.Filters(),
			"loading": a.Tasks.Loading(),
			"error":   a.Tasks.Err(),
		}
	case app.ChangeUsers:
		return a.Users.Users()
	case app.ChangeNotifications:
		return map[string]any{
			"notifications": a.Notifications.Notifications(),
			"unreadCount":   a.Notifications.UnreadCount(),
		}
	case app.ChangeRoute:
		return a.Nav.Route()
	case app.ChangeAlert:
		if alert, ok := a.Alerts.Current(); ok {
			return alert
		}
		return nil
	case app.ChangeSession:
		return map[string]any{
			"state": a.Session.State(),
			"user":  a.Session.User(),
			"error": a.Session.Err(),
		}
	}
	return nil
}
