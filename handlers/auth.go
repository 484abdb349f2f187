package handlers

import (
	"net/http"
	"strings"

	"github.com/CrowderSoup/taskcollab/app"
	"github.com/CrowderSoup/taskcollab/models"
)

// AuthHandler exposes the session intents.
type AuthHandler struct {
	app *app.App
}

// NewAuthHandler creates a new auth handler instance.
func NewAuthHandler(a *app.App) *AuthHandler {
	return &AuthHandler{app: a}
}

// Login signs in with email and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid email address"})
		return
	}
	if err := h.app.Login(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Session.User())
}

// Register creates an account and signs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || !strings.Contains(req.Email, "@") || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Name, email and password are required"})
		return
	}
	if err := h.app.Register(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.app.Session.User())
}

// Logout ends the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.app.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// Session reports who is signed in, if anyone.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state": h.app.Session.State(),
		"user":  h.app.Session.User(),
		"route": h.app.Nav.Route(),
	})
}
