package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/example/ec-storefront/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Fixtures
// ============================================

type fakeMailer struct {
	sent []email.Confirmation
	err  error
}

func (f *fakeMailer) SendPaymentConfirmation(c email.Confirmation) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, c)
	return nil
}

type fixture struct {
	mailer  *fakeMailer
	orders  *mocks.MockOrderStore
	users   *mocks.MockUserStore
	catalog *mocks.MockCatalog
	handler *Handler
}

func newFixture() *fixture {
	f := &fixture{
		mailer: &fakeMailer{},
		orders: mocks.NewMockOrderStore(),
		users: mocks.NewMockUserStore(&auth.User{
			ID: 7, Email: "member@example.com", Role: auth.RoleCustomer,
		}),
		catalog: mocks.NewMockCatalog(catalog.Item{
			ID: "book-1", Kind: catalog.KindBook, Name: "The Go Programming Language",
			UnitPrice: decimal.RequireFromString("40"),
		}),
	}
	f.handler = NewHandler(f.mailer, f.orders, f.users, f.catalog)
	return f
}

func paidOrder(t *testing.T, userID *int64, guest string) *order.Order {
	t.Helper()
	o, err := order.New(order.NewOrderParams{
		ProviderRef: "PAY-001",
		UserID:      userID,
		GuestEmail:  guest,
		TotalPrice:  decimal.RequireFromString("55"),
		Shipping: order.ShippingInfo{
			FirstName: "Ada", LastName: "Lovelace", Address: "1 Main St", City: "Springfield", CountryCode: "US",
		},
		Lines: []order.Line{
			{ItemID: "book-1", Quantity: 1, UnitPrice: decimal.RequireFromString("40"), Subtotal: decimal.RequireFromString("40")},
			{ItemID: "gone-1", Quantity: 3, UnitPrice: decimal.RequireFromString("5"), Subtotal: decimal.RequireFromString("15")},
		},
	}, time.Now())
	require.NoError(t, err)
	o.Status = order.StatusProcessing
	return o
}

func paidMessage(t *testing.T, o *order.Order) []byte {
	t.Helper()
	e, err := order.PaidEvent(o, time.Now())
	require.NoError(t, err)
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return data
}

// ============================================
// HandleEvent Tests
// ============================================

func TestHandleEvent_GuestOrder(t *testing.T) {
	f := newFixture()
	o := paidOrder(t, nil, "guest@example.com")
	f.orders.Put(o)

	err := f.handler.HandleEvent(context.Background(), []byte(o.ID), paidMessage(t, o))
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	c := f.mailer.sent[0]
	assert.Equal(t, "guest@example.com", c.Recipient)
	assert.Equal(t, o.ID, c.OrderID)
	assert.Equal(t, "PAY-001", c.ProviderRef)
	assert.True(t, decimal.RequireFromString("55").Equal(c.Total))
	assert.Equal(t, "Ada Lovelace, 1 Main St, Springfield, US", c.ShipTo)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "The Go Programming Language", c.Items[0].Name)
	assert.Equal(t, "", c.Items[1].Name)
	assert.Equal(t, 3, c.Items[1].Quantity)
}

func TestHandleEvent_MemberOrder(t *testing.T) {
	f := newFixture()
	uid := int64(7)
	o := paidOrder(t, &uid, "")
	f.orders.Put(o)

	require.NoError(t, f.handler.HandleEvent(context.Background(), nil, paidMessage(t, o)))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "member@example.com", f.mailer.sent[0].Recipient)
}

func TestHandleEvent_UnknownUserIsSkipped(t *testing.T) {
	f := newFixture()
	uid := int64(99)
	o := paidOrder(t, &uid, "")
	f.orders.Put(o)

	require.NoError(t, f.handler.HandleEvent(context.Background(), nil, paidMessage(t, o)))
	assert.Empty(t, f.mailer.sent)
}

func TestHandleEvent_UnknownOrderIsSkipped(t *testing.T) {
	f := newFixture()
	o := paidOrder(t, nil, "guest@example.com")

	require.NoError(t, f.handler.HandleEvent(context.Background(), nil, paidMessage(t, o)))
	assert.Empty(t, f.mailer.sent)
}

func TestHandleEvent_IgnoresOtherEvents(t *testing.T) {
	f := newFixture()
	o := paidOrder(t, nil, "guest@example.com")
	f.orders.Put(o)

	e, err := order.PlacedEvent(o)
	require.NoError(t, err)
	data, err := json.Marshal(e)
	require.NoError(t, err)

	require.NoError(t, f.handler.HandleEvent(context.Background(), nil, data))
	assert.Empty(t, f.mailer.sent)
}

func TestHandleEvent_MailerError(t *testing.T) {
	f := newFixture()
	f.mailer.err = errors.New("smtp down")
	o := paidOrder(t, nil, "guest@example.com")
	f.orders.Put(o)

	err := f.handler.HandleEvent(context.Background(), nil, paidMessage(t, o))
	assert.Error(t, err)
}

func TestHandleEvent_CatalogErrorStillSends(t *testing.T) {
	f := newFixture()
	f.catalog.Err = errors.New("db down")
	o := paidOrder(t, nil, "guest@example.com")
	f.orders.Put(o)

	require.NoError(t, f.handler.HandleEvent(context.Background(), nil, paidMessage(t, o)))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "", f.mailer.sent[0].Items[0].Name)
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	f := newFixture()
	assert.Error(t, f.handler.HandleEvent(context.Background(), nil, []byte("{not json")))
}
