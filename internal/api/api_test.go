package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/example/ec-storefront/internal/order"
	"github.com/example/ec-storefront/internal/payment"
	paymentmocks "github.com/example/ec-storefront/internal/payment/mocks"
	"github.com/example/ec-storefront/internal/ratelimit"
	"github.com/example/ec-storefront/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Fixtures
// ============================================

const testSecret = "test-secret-key-with-at-least-32-chars"

type fixture struct {
	catalog  *mocks.MockCatalog
	orders   *mocks.MockOrderStore
	users    *mocks.MockUserStore
	gateway  *paymentmocks.MockGateway
	sessions *session.Manager
	router   http.Handler
}

func newFixture(t *testing.T, checkoutLimit int) *fixture {
	t.Helper()
	codec, err := session.NewCodec(testSecret, time.Hour)
	require.NoError(t, err)
	limiter, err := ratelimit.NewMemoryLimiter(checkoutLimit, time.Minute, 100)
	require.NoError(t, err)

	f := &fixture{
		catalog: mocks.NewMockCatalog(
			catalog.Item{ID: "book-a", Kind: catalog.KindBook, Name: "Dune",
				UnitPrice: decimal.RequireFromString("30.00"), DiscountPercent: decimal.Zero, StockQuantity: 5},
			catalog.Item{ID: "prod-b", Kind: catalog.KindProduct, Name: "Bookmark",
				UnitPrice: decimal.RequireFromString("10.00"), DiscountPercent: decimal.Zero, StockQuantity: 5},
		),
		orders:   mocks.NewMockOrderStore(),
		users:    mocks.NewMockUserStore(),
		gateway:  paymentmocks.NewMockGateway(),
		sessions: session.NewManager(codec, false),
	}

	svc := checkout.NewService(f.catalog, f.gateway, f.orders)
	f.router = NewRouter(RouterConfig{
		Handlers:         NewHandlers(f.catalog, f.orders, f.sessions),
		AuthHandlers:     NewAuthHandlers(f.users, f.sessions),
		CheckoutHandlers: NewCheckoutHandlers(svc),
		Sessions:         f.sessions,
		CheckoutLimiter:  limiter,
	})
	return f
}

// client carries the session cookie between requests
type client struct {
	t       *testing.T
	f       *fixture
	cookies map[string]*http.Cookie
}

func (f *fixture) client(t *testing.T) *client {
	return &client{t: t, f: f, cookies: make(map[string]*http.Cookie)}
}

// signIn installs a session cookie for u without going through login
func (c *client) signIn(u session.User) *client {
	rec := httptest.NewRecorder()
	require.NoError(c.t, c.f.sessions.Write(rec, session.Session{User: &u}))
	c.keep(rec.Result().Cookies())
	return c
}

func (c *client) keep(cookies []*http.Cookie) {
	for _, ck := range cookies {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
}

func (c *client) do(method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.f.router.ServeHTTP(rec, req)
	c.keep(rec.Result().Cookies())
	return rec
}

func (c *client) json(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return c.do(method, path, "application/json", r)
}

func (c *client) form(path string, values url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
}

func shippingForm() url.Values {
	return url.Values{
		"guest_email":           {"guest@example.com"},
		"shipping_first_name":   {"Ada"},
		"shipping_last_name":    {"Lovelace"},
		"shipping_address":      {"1 Main St"},
		"shipping_city":         {"Springfield"},
		"shipping_country_code": {"US"},
		"shipping_phone_number": {"+1 415 555 2671"},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, rec)["error"]
}

// fillCart adds 1x book-a (30.00) and 1x prod-b (10.00)
func (c *client) fillCart() {
	c.t.Helper()
	require.Equal(c.t, http.StatusOK, c.json(http.MethodPost, "/cart/items", `{"item_id":"book-a","quantity":1}`).Code)
	require.Equal(c.t, http.StatusOK, c.json(http.MethodPost, "/cart/items", `{"item_id":"prod-b","quantity":1}`).Code)
}

// ============================================
// Health / Cart Tests
// ============================================

func TestHealth(t *testing.T) {
	f := newFixture(t, 30)
	rec := f.client(t).json(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCart_Lifecycle(t *testing.T) {
	f := newFixture(t, 30)
	c := f.client(t)

	rec := c.json(http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartResponse](t, rec).Lines)

	c.fillCart()
	rec = c.json(http.MethodPut, "/cart/items/book-a", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cart := decode[CartResponse](t, c.json(http.MethodGet, "/cart", ""))
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, 4, cart.TotalQuantity)
	assert.True(t, decimal.RequireFromString("100").Equal(cart.Totals.Total), cart.Totals.Total.String())

	rec = c.json(http.MethodDelete, "/cart/items/prod-b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[CartResponse](t, rec).Lines, 1)

	rec = c.json(http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartResponse](t, c.json(http.MethodGet, "/cart", "")).Lines)
}

func TestCart_DropsDeletedItems(t *testing.T) {
	f := newFixture(t, 30)
	c := f.client(t)
	c.fillCart()

	f.catalog.Delete("prod-b")

	cart := decode[CartResponse](t, c.json(http.MethodGet, "/cart", ""))
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "book-a", cart.Lines[0].ItemID)
}

func TestCart_AddErrors(t *testing.T) {
	f := newFixture(t, 30)
	c := f.client(t)

	assert.Equal(t, http.StatusNotFound, c.json(http.MethodPost, "/cart/items", `{"item_id":"nope","quantity":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, c.json(http.MethodPost, "/cart/items", `{"item_id":"book-a","quantity":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, c.json(http.MethodPost, "/cart/items", `{"quantity":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, c.json(http.MethodPost, "/cart/items", `not json`).Code)
}

// ============================================
// Checkout Tests
// ============================================

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture(t, 30)
	c := f.client(t)
	c.fillCart()

	rec := c.form("/checkout/create-order", shippingForm())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[CreateOrderResponse](t, rec)
	assert.Equal(t, "PAY-001", res.ID)
	assert.Equal(t, "CREATED", res.Status)
	assert.NotEmpty(t, res.OrderID)
	assert.True(t, decimal.RequireFromString("40").Equal(res.Totals.Total))

	require.Len(t, f.gateway.CreateCalls, 1)
	assert.True(t, decimal.RequireFromString("40.00").Equal(f.gateway.CreateCalls[0].Total))

	o, err := f.orders.FindByProviderRef(t.Context(), "PAY-001")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	require.NotNil(t, o.GuestEmail)
	assert.Equal(t, "guest@example.com", *o.GuestEmail)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		fill    bool
		modify  func(url.Values)
		message string
	}{
		{"empty cart", false, func(url.Values) {}, "Cart is empty. Please add items to your cart before checkout."},
		{"guest without email", true, func(v url.Values) { v.Del("guest_email") }, "Guest email is required if user is not logged in"},
		{"missing city", true, func(v url.Values) { v.Del("shipping_city") }, "shipping_city is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 30)
			c := f.client(t)
			if tt.fill {
				c.fillCart()
			}
			form := shippingForm()
			tt.modify(form)

			rec := c.form("/checkout/create-order", form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
			assert.Empty(t, f.gateway.CreateCalls)
			assert.Equal(t, 0, f.orders.Count())
		})
	}
}

func TestCreateOrder_GatewayFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rejected", &payment.ProviderError{StatusCode: 422, Message: "Unprocessable Entity", Description: "bad payer"}, http.StatusBadRequest},
		{"provider outage", &payment.ProviderError{StatusCode: 503, Message: "Service Unavailable"}, http.StatusBadGateway},
		{"breaker open", fmt.Errorf("%w: circuit open", payment.ErrGatewayUnavailable), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 30)
			f.gateway.CreateErr = tt.err
			c := f.client(t)
			c.fillCart()

			rec := c.form("/checkout/create-order", shippingForm())
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, 0, f.orders.Count())
		})
	}
}

func TestCreateOrder_PersistenceFailure(t *testing.T) {
	f := newFixture(t, 30)
	f.orders.CreateErr = fmt.Errorf("connection reset")
	c := f.client(t)
	c.fillCart()

	rec := c.form("/checkout/create-order", shippingForm())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateOrder_RateLimited(t *testing.T) {
	f := newFixture(t, 2)
	c := f.client(t)

	for i := 0; i < 2; i++ {
		rec := c.form("/checkout/create-order", shippingForm())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := c.form("/checkout/create-order", shippingForm())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCreateOrder_RateLimitIgnoresSpoofedHeaders(t *testing.T) {
	f := newFixture(t, 1)

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkout/create-order", strings.NewReader(shippingForm().Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		req.RemoteAddr = "192.0.2.10:4000"
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.2"))
}

func placeOrder(t *testing.T, f *fixture) string {
	t.Helper()
	c := f.client(t)
	c.fillCart()
	rec := c.form("/checkout/create-order", shippingForm())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[CreateOrderResponse](t, rec).ID
}

func TestCaptureOrder_Success(t *testing.T) {
	f := newFixture(t, 30)
	ref := placeOrder(t, f)

	rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", fmt.Sprintf(`{"orderID":%q}`, ref))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[CaptureOrderResponse](t, rec)
	require.NotNil(t, res.Order)
	assert.Equal(t, order.StatusProcessing, res.Order.Status)
	assert.Equal(t, payment.OutcomeSuccess, res.Outcome.Kind)

	// a second capture is answered from the local order
	rec = f.client(t).json(http.MethodPost, "/checkout/capture-order", fmt.Sprintf(`{"orderID":%q}`, ref))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CaptureOrderResponse](t, rec).AlreadyCaptured)
	assert.Len(t, f.gateway.CaptureCalls, 1)
}

func TestCaptureOrder_Declined(t *testing.T) {
	f := newFixture(t, 30)
	ref := placeOrder(t, f)
	f.gateway.Decline(ref)

	rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", fmt.Sprintf(`{"orderID":%q}`, ref))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	res := decode[CaptureOrderResponse](t, rec)
	assert.Equal(t, payment.OutcomeDeclined, res.Outcome.Kind)
	assert.Contains(t, res.Error, "(dbg-decline)")

	o, err := f.orders.FindByProviderRef(t.Context(), ref)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestCaptureOrder_ProviderErrorOutcome(t *testing.T) {
	f := newFixture(t, 30)
	ref := placeOrder(t, f)
	f.gateway.CaptureOutcomes[ref] = payment.CaptureOutcome{
		Kind: payment.OutcomeError, ProviderOrderID: ref, Issue: "ORDER_NOT_APPROVED", DebugID: "dbg-1",
	}

	rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", fmt.Sprintf(`{"orderID":%q}`, ref))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "ORDER_NOT_APPROVED (dbg-1)", decode[CaptureOrderResponse](t, rec).Error)
}

func TestCaptureOrder_Failures(t *testing.T) {
	t.Run("no local order", func(t *testing.T) {
		f := newFixture(t, 30)
		rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", `{"orderID":"PAY-999"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("gateway unreachable", func(t *testing.T) {
		f := newFixture(t, 30)
		ref := placeOrder(t, f)
		f.gateway.CaptureErr = fmt.Errorf("%w: circuit open", payment.ErrGatewayUnavailable)
		rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", fmt.Sprintf(`{"orderID":%q}`, ref))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("cancelled order", func(t *testing.T) {
		f := newFixture(t, 30)
		ref := placeOrder(t, f)
		o, err := f.orders.FindByProviderRef(t.Context(), ref)
		require.NoError(t, err)
		_, err = f.orders.UpdateStatus(t.Context(), o.ID, order.StatusCancelled)
		require.NoError(t, err)

		rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", fmt.Sprintf(`{"orderID":%q}`, ref))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, f.gateway.CaptureCalls)
	})

	t.Run("missing id", func(t *testing.T) {
		f := newFixture(t, 30)
		rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		f := newFixture(t, 30)
		rec := f.client(t).json(http.MethodPost, "/checkout/capture-order", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// ============================================
// Session Tests
// ============================================

func TestLogin(t *testing.T) {
	f := newFixture(t, 30)
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	f.users = mocks.NewMockUserStore(&auth.User{
		ID: 7, Email: "ada@example.com", PasswordHash: hash, Role: auth.RoleCustomer, CountryCode: "GB",
	})
	f.router = NewRouter(RouterConfig{
		Handlers:         NewHandlers(f.catalog, f.orders, f.sessions),
		AuthHandlers:     NewAuthHandlers(f.users, f.sessions),
		CheckoutHandlers: NewCheckoutHandlers(checkout.NewService(f.catalog, f.gateway, f.orders)),
		Sessions:         f.sessions,
		CheckoutLimiter:  allowAll{},
	})

	c := f.client(t)
	c.fillCart()

	rec := c.json(http.MethodPost, "/session/login", `{"email":"ada@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.json(http.MethodPost, "/session/login", `{"email":"ADA@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	me := decode[AuthResponse](t, c.json(http.MethodGet, "/session/me", ""))
	require.NotNil(t, me.User)
	assert.Equal(t, int64(7), me.User.ID)
	assert.Equal(t, "GB", me.User.CountryCode)

	// the guest cart survives login
	assert.Len(t, decode[CartResponse](t, c.json(http.MethodGet, "/cart", "")).Lines, 2)

	rec = c.json(http.MethodPost, "/session/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, c.json(http.MethodGet, "/session/me", "").Code)
}

type allowAll struct{}

func (allowAll) Allow(_ context.Context, _ string) (ratelimit.Result, error) {
	return ratelimit.Result{Limit: 1, Remaining: 1}, nil
}

// ============================================
// Order Tests
// ============================================

func seedOrder(t *testing.T, f *fixture, userID int64, status order.Status) *order.Order {
	t.Helper()
	o, err := order.New(order.NewOrderParams{
		ProviderRef: fmt.Sprintf("PAY-U%d-%s", userID, status),
		UserID:      &userID,
		TotalPrice:  decimal.RequireFromString("30"),
		Lines: []order.Line{{ItemID: "book-a", Quantity: 1,
			UnitPrice: decimal.RequireFromString("30"), Subtotal: decimal.RequireFromString("30")}},
	}, time.Now())
	require.NoError(t, err)
	o.Status = status
	f.orders.Put(o)
	return o
}

func TestOrders_Access(t *testing.T) {
	f := newFixture(t, 30)
	mine := seedOrder(t, f, 1, order.StatusPending)
	theirs := seedOrder(t, f, 2, order.StatusPending)

	assert.Equal(t, http.StatusUnauthorized, f.client(t).json(http.MethodGet, "/orders", "").Code)

	c := f.client(t).signIn(session.User{ID: 1, Role: auth.RoleCustomer})
	rec := c.json(http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]order.Order](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	assert.Equal(t, http.StatusOK, c.json(http.MethodGet, "/orders/"+mine.ID, "").Code)
	assert.Equal(t, http.StatusForbidden, c.json(http.MethodGet, "/orders/"+theirs.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, c.json(http.MethodGet, "/orders/missing", "").Code)

	admin := f.client(t).signIn(session.User{ID: 99, Role: auth.RoleAdmin})
	assert.Equal(t, http.StatusOK, admin.json(http.MethodGet, "/orders/"+theirs.ID, "").Code)
}

func TestAdminUpdateStatus(t *testing.T) {
	f := newFixture(t, 30)
	processing := seedOrder(t, f, 1, order.StatusProcessing)
	completed := seedOrder(t, f, 1, order.StatusCompleted)
	pending := seedOrder(t, f, 1, order.StatusPending)

	customer := f.client(t).signIn(session.User{ID: 1, Role: auth.RoleCustomer})
	rec := customer.json(http.MethodPatch, "/admin/orders/"+processing.ID+"/status", `{"status":"completed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := f.client(t).signIn(session.User{ID: 99, Role: auth.RoleAdmin})

	rec = admin.json(http.MethodPatch, "/admin/orders/"+processing.ID+"/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, order.StatusCompleted, decode[order.Order](t, rec).Status)

	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"pending is not settable", processing.ID, `{"status":"pending"}`, http.StatusBadRequest},
		{"unknown status", processing.ID, `{"status":"shipped"}`, http.StatusBadRequest},
		{"terminal order", completed.ID, `{"status":"cancelled"}`, http.StatusConflict},
		{"unpaid order cannot be marked processing", pending.ID, `{"status":"processing"}`, http.StatusConflict},
		{"unpaid order can be cancelled", pending.ID, `{"status":"cancelled"}`, http.StatusOK},
		{"missing order", "missing", `{"status":"cancelled"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := admin.json(http.MethodPatch, "/admin/orders/"+tt.id+"/status", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
