package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/session"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users    auth.UserStore
	sessions *session.Manager
}

func NewAuthHandlers(users auth.UserStore, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{users: users, sessions: sessions}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User    *session.User `json:"user"`
	Message string        `json:"message,omitempty"`
}

// Login signs the user in. The guest cart is carried over into the
// authenticated session.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := auth.Authenticate(r.Context(), h.users, req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("[API] Login failed: %v", err)
		respondError(w, "login failed", http.StatusInternalServerError)
		return
	}

	sess := session.FromContext(r.Context())
	sess.User = &session.User{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		CountryCode: u.CountryCode,
	}
	if err := h.sessions.Write(w, sess); err != nil {
		log.Printf("[API] Failed to write session: %v", err)
		respondError(w, "login failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{User: sess.User, Message: "Login successful"})
}

// Logout drops the whole session, cart included
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logout successful",
	})
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if !sess.IsAuthenticated() {
		respondError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, AuthResponse{User: sess.User})
}
