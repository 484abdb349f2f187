package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/taskcollab/app"
	"github.com/CrowderSoup/taskcollab/database"
	"github.com/CrowderSoup/taskcollab/models"
	"github.com/CrowderSoup/taskcollab/services"
	"github.com/CrowderSoup/taskcollab/store"
)

// upstream fakes the remote task API.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	tasks := []models.Task{{ID: "t1", Title: "Write report", Priority: models.PriorityHigh, Status: models.StatusPending}}
	r := mux.NewRouter()
	r.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.AuthResponse{Token: "tok", User: &models.User{ID: "u1", Name: "Ada"}})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		writeJSON(w, http.StatusOK, tasks)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		var patch models.TaskPatch
		json.NewDecoder(r.Body).Decode(&patch)
		next := tasks[0].Apply(patch, nil)
		tasks[0] = next
		writeJSON(w, http.StatusOK, next)
	}).Methods(http.MethodPut)
	r.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.User{{ID: "u1", Name: "Ada"}})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.Notification{})
	}).Methods(http.MethodGet)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

const uiOrigin = "http://localhost:3000"

type bridge struct {
	app *app.App
	hub *Hub
	srv *httptest.Server
}

func newBridge(t *testing.T) *bridge {
	t.Helper()
	up := upstream(t)

	db, err := database.InitDB(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := services.NewBus()
	var session *store.SessionStore
	client, err := services.NewClient(up.URL+"/api", 2*time.Second, services.TokenFunc(func() string {
		return session.Token()
	}), bus)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	session = store.NewSessionStore(client, database.NewCredentialStore(db), bus)

	a := app.New(app.Deps{
		Bus:           bus,
		Session:       session,
		Tasks:         store.NewTaskStore(client),
		Users:         store.NewUserStore(client),
		Notifications: store.NewNotificationStore(client),
	})
	t.Cleanup(a.Close)

	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	stop := Bridge(a, hub)
	t.Cleanup(stop)

	srv := httptest.NewServer(NewRouter(a, hub, []string{uiOrigin}))
	t.Cleanup(srv.Close)
	return &bridge{app: a, hub: hub, srv: srv}
}

func (b *bridge) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, b.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *bridge) fromOrigin(t *testing.T, method, path, origin string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, b.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Origin", origin)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestForeignOriginGetsNothing(t *testing.T) {
	b := newBridge(t)
	resp := b.do(t, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"secret"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	const foreign = "https://evil.example"

	preflight := b.fromOrigin(t, http.MethodOptions, "/api/tasks/t1", foreign, http.Header{
		"Access-Control-Request-Method": {http.MethodDelete},
	})
	if got := preflight.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("preflight Access-Control-Allow-Origin = %q", got)
	}
	if got := preflight.Header.Get("Access-Control-Allow-Methods"); got != "" {
		t.Errorf("preflight Access-Control-Allow-Methods = %q", got)
	}

	state := b.fromOrigin(t, http.MethodGet, "/api/state", foreign, nil)
	if state.StatusCode != http.StatusForbidden {
		t.Errorf("state status = %d, want 403", state.StatusCode)
	}
	if got := state.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("state Access-Control-Allow-Origin = %q", got)
	}
	var body map[string]any
	json.NewDecoder(state.Body).Decode(&body)
	if _, leaked := body["user"]; leaked {
		t.Errorf("signed-in view leaked: %v", body)
	}

	del := b.fromOrigin(t, http.MethodDelete, "/api/tasks/t1", foreign, nil)
	if del.StatusCode != http.StatusForbidden {
		t.Errorf("delete status = %d, want 403", del.StatusCode)
	}
	if _, ok := b.app.Tasks.Task("t1"); !ok {
		t.Error("task deleted on behalf of a foreign origin")
	}

	wsURL := "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/api/ws"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {foreign}})
	if err == nil {
		conn.Close()
		t.Fatal("websocket upgrade accepted for a foreign origin")
	}
	if wsResp == nil || wsResp.StatusCode != http.StatusForbidden {
		t.Errorf("websocket handshake response = %v, want 403", wsResp)
	}
}

func TestListedOriginIsGranted(t *testing.T) {
	b := newBridge(t)

	resp := b.fromOrigin(t, http.MethodGet, "/api/state", uiOrigin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("state status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != uiOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, uiOrigin)
	}

	wsURL := "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {uiOrigin}})
	if err != nil {
		t.Fatalf("dial from listed origin: %v", err)
	}
	conn.Close()
}

func TestWildcardOriginIsNeverHonoured(t *testing.T) {
	allowed := originSet([]string{"*", "HTTP://LOCALHOST:3000/"})
	if allowed("https://evil.example") {
		t.Error("wildcard entry allowed a foreign origin")
	}
	if !allowed("http://localhost:3000") {
		t.Error("listed origin refused")
	}
}

func TestSignedInRoutesRequireSession(t *testing.T) {
	b := newBridge(t)
	resp := b.do(t, http.MethodGet, "/api/tasks", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	resp = b.do(t, http.MethodGet, "/api/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("state status = %d", resp.StatusCode)
	}
}

func TestLoginThenTaskIntents(t *testing.T) {
	b := newBridge(t)

	resp := b.do(t, http.MethodPost, "/api/auth/login", `{"email":"not-an-email","password":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad email status = %d", resp.StatusCode)
	}

	resp = b.do(t, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"secret"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	resp = b.do(t, http.MethodGet, "/api/tasks", "")
	var tasks []models.Task
	json.NewDecoder(resp.Body).Decode(&tasks)
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("tasks = %+v", tasks)
	}

	resp = b.do(t, http.MethodPost, "/api/tasks/t1/complete", `{"status":"completed"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d", resp.StatusCode)
	}
	var task models.Task
	json.NewDecoder(resp.Body).Decode(&task)
	if task.Status != models.StatusCompleted {
		t.Errorf("status = %q", task.Status)
	}

	resp = b.do(t, http.MethodPut, "/api/tasks/t1", `{"title":"  "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank title status = %d", resp.StatusCode)
	}
	resp = b.do(t, http.MethodPost, "/api/tasks/nope/complete", `{"status":"completed"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task status = %d", resp.StatusCode)
	}
	resp = b.do(t, http.MethodPut, "/api/tasks/t1", `{`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}

	resp = b.do(t, http.MethodPost, "/api/auth/logout", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("logout status = %d", resp.StatusCode)
	}
	if b.app.Session.IsAuthenticated() {
		t.Error("still signed in after logout")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	b := newBridge(t)
	b.app.Nav.Navigate("/tasks/t1")

	h := NewMiddleware(b.app).Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("render failed")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if b.app.Nav.Route() != app.RouteHome {
		t.Errorf("route = %q", b.app.Nav.Route())
	}
}

func TestWebSocketReceivesViewChanges(t *testing.T) {
	b := newBridge(t)

	wsURL := "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	seen := map[string]bool{}
	read := func(want string) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for !seen[want] {
			conn.SetReadDeadline(deadline)
			_, raw, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("waiting for %q: %v", want, err)
			}
			for _, frame := range bytes.Split(raw, []byte("\n")) {
				var msg struct {
					Type string `json:"type"`
				}
				if json.Unmarshal(frame, &msg) == nil {
					seen[msg.Type] = true
				}
			}
		}
	}

	read("state")
	b.app.Alerts.Show(app.AlertError, "You are not authorized to perform this action")
	read(string(app.ChangeAlert))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{app.ErrNotAuthenticated, http.StatusUnauthorized},
		{models.ErrInvalidStatus, http.StatusBadRequest},
		{store.ErrEmptyComment, http.StatusBadRequest},
		{&services.APIError{StatusCode: http.StatusForbidden}, http.StatusForbidden},
		{&services.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "Title too long"}, http.StatusUnprocessableEntity},
		{&services.APIError{StatusCode: 0, Message: "Failed to fetch tasks"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
