package session

import (
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	CookieName = "session"
	DefaultTTL = 7 * 24 * time.Hour
)

// Manager reads and writes the session cookie
type Manager struct {
	codec  *Codec
	secure bool
}

func NewManager(codec *Codec, secure bool) *Manager {
	return &Manager{codec: codec, secure: secure}
}

// extractToken reads the session token from the cookie, falling back to a
// Bearer header for API clients
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// Read decodes the request's session. A missing, expired or tampered token
// yields an empty guest session.
func (m *Manager) Read(r *http.Request) Session {
	token := extractToken(r)
	if token == "" {
		return Session{}
	}
	s, err := m.codec.Decode(token)
	if err != nil {
		log.Printf("[Session] Discarding session token: %v", err)
		return Session{}
	}
	return s
}

// Write signs s and sets it on the response. Callers must write before the
// response body is committed.
func (m *Manager) Write(w http.ResponseWriter, s Session) error {
	token, expiresAt, err := m.codec.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(m.codec.TTL().Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
