package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"

	"github.com/CrowderSoup/taskcollab/app"
	"github.com/CrowderSoup/taskcollab/models"
	"github.com/CrowderSoup/taskcollab/services"
	"github.com/CrowderSoup/taskcollab/store"
)

// Logging logs every request with its status and duration.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.Info("handled", "method", r.Method, "url", r.URL.Path, "status", m.Code, "duration", m.Duration, "bytes", m.Written)
	})
}

// CheckOrigin refuses browser requests whose Origin is not allowed. Requests
// without an Origin header come from non-browser clients and pass.
func CheckOrigin(allowed func(origin string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && !allowed(origin) {
				slog.Warn("refused cross-origin request", "origin", origin, "url", r.URL.Path)
				writeJSON(w, http.StatusForbidden, map[string]string{"message": "origin not allowed"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Middleware holds the app-aware middlewares.
type Middleware struct {
	app *app.App
}

// NewMiddleware creates the middlewares for a.
func NewMiddleware(a *app.App) *Middleware {
	return &Middleware{app: a}
}

// Recover runs the handler behind the app's fault barrier. A panic becomes a
// 500 and sends the UI back to the default route.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := m.app.Guard(func() error {
			next.ServeHTTP(w, r)
			return nil
		})
		var fault *app.FaultError
		if errors.As(err, &fault) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Something went wrong"})
		}
	})
}

// RequireSession rejects requests while nobody is signed in.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.app.Session.IsAuthenticated() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not signed in"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "err", err)
	}
}

// statusFor maps an intent error onto the bridge's status codes.
func statusFor(err error) int {
	var apiErr *services.APIError
	switch {
	case errors.Is(err, app.ErrNotAuthenticated), errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, app.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTitleRequired),
		errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, store.ErrEmptyComment),
		errors.Is(err, store.ErrMissingID):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"message": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request format"})
		return false
	}
	return true
}
