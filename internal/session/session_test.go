package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/cart"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, DefaultTTL)
	require.NoError(t, err)
	return c
}

func testSession() Session {
	return Session{
		User: &User{ID: 42, Email: "ada@example.com", FirstName: "Ada", Role: "customer", CountryCode: "GB"},
		Cart: StoredCart{Items: []cart.Line{{ItemID: "book-a", Quantity: 2}}},
	}
}

// ============================================
// Codec Tests
// ============================================

func TestNewCodec_WeakSecret(t *testing.T) {
	_, err := NewCodec("short", DefaultTTL)
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	token, expiresAt, err := c.Encode(testSession())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), expiresAt, time.Minute)

	s, err := c.Decode(token)

	require.NoError(t, err)
	assert.Equal(t, testSession(), s)
}

func TestCodec_Expired(t *testing.T) {
	c := newTestCodec(t)
	c.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	token, _, err := c.Encode(testSession())
	require.NoError(t, err)

	c.now = time.Now
	_, err = c.Decode(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCodec_Invalid(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewCodec("another-secret-key-that-is-long-enough", DefaultTTL)
	require.NoError(t, err)
	foreign, _, err := other.Encode(testSession())
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

// ============================================
// Manager Tests
// ============================================

func TestManager_WriteThenRead(t *testing.T) {
	m := NewManager(newTestCodec(t), false)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Write(rec, testSession()))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])

	assert.Equal(t, testSession(), m.Read(req))
}

func TestManager_ReadBearerHeader(t *testing.T) {
	c := newTestCodec(t)
	m := NewManager(c, false)
	token, _, err := c.Encode(testSession())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	assert.Equal(t, int64(42), *m.Read(req).UserID())
}

func TestManager_TamperedCookieFallsBackToGuest(t *testing.T) {
	m := NewManager(newTestCodec(t), false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "tampered"})

	s := m.Read(req)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Cart.Items)
}

func TestManager_Clear(t *testing.T) {
	m := NewManager(newTestCodec(t), false)
	rec := httptest.NewRecorder()

	m.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestSession_Helpers(t *testing.T) {
	var guest Session
	assert.Nil(t, guest.UserID())
	assert.False(t, guest.HasRole("admin"))

	s := testSession()
	assert.True(t, s.HasRole("admin", "customer"))

	c, err := cart.Apply(cart.Cart{}, cart.Update("missing", 1))
	require.NoError(t, err)
	assert.Empty(t, s.WithCart(c).Cart.Items)
	assert.Len(t, s.Cart.Items, 1, "WithCart must not modify the receiver")
}
