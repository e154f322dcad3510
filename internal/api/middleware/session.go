package middleware

import (
	"net/http"

	"github.com/example/ec-storefront/internal/session"
)

// Session decodes the session cookie once per request and stores it in the
// request context. Invalid tokens degrade to an empty guest session.
func Session(m *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := m.Read(r)
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), sess)))
		})
	}
}
