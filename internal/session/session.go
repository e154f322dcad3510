package session

import (
	"context"

	"github.com/example/ec-storefront/internal/cart"
)

// User is the signed-in identity carried in the session token
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	CountryCode string `json:"country_code,omitempty"`
}

// StoredCart is the minimal cart form kept client-side: ids and quantities only
type StoredCart struct {
	Items []cart.Line `json:"items"`
}

// Session is the per-request state decoded from the session cookie. It is
// passed explicitly to the operations that need it.
type Session struct {
	User *User      `json:"user,omitempty"`
	Cart StoredCart `json:"cart"`
}

func (s Session) IsAuthenticated() bool {
	return s.User != nil
}

// UserID returns the signed-in user id, or nil for guests
func (s Session) UserID() *int64 {
	if s.User == nil {
		return nil
	}
	id := s.User.ID
	return &id
}

// HasRole reports whether the signed-in user has one of roles
func (s Session) HasRole(roles ...string) bool {
	if s.User == nil {
		return false
	}
	for _, r := range roles {
		if s.User.Role == r {
			return true
		}
	}
	return false
}

// WithCart returns a copy of s holding the minimal form of c
func (s Session) WithCart(c cart.Cart) Session {
	s.Cart = StoredCart{Items: c.Lines()}
	return s
}

type contextKey string

const sessionContextKey contextKey = "session"

// NewContext returns a context carrying s
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext returns the session stored in ctx, or an empty guest session
func FromContext(ctx context.Context) Session {
	s, _ := ctx.Value(sessionContextKey).(Session)
	return s
}
