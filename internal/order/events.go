package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderPaid          = "OrderPaid"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderPlaced struct {
	OrderID     string          `json:"order_id"`
	ProviderRef string          `json:"provider_ref"`
	UserID      *int64          `json:"user_id,omitempty"`
	GuestEmail  *string         `json:"guest_email,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Lines       []Line          `json:"lines"`
	PlacedAt    time.Time       `json:"placed_at"`
}

type OrderPaid struct {
	OrderID     string    `json:"order_id"`
	ProviderRef string    `json:"provider_ref"`
	PaidAt      time.Time `json:"paid_at"`
}

type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// Event is an outbox record written in the same transaction as the order
// change it describes.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEvent marshals data into an outbox event for the given order.
func NewEvent(orderID, eventType string, data any, now time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   orderID,
		AggregateType: AggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     now,
	}, nil
}

// PlacedEvent builds the OrderPlaced event for a new order.
func PlacedEvent(o *Order) (Event, error) {
	return NewEvent(o.ID, EventOrderPlaced, OrderPlaced{
		OrderID:     o.ID,
		ProviderRef: o.Reference(),
		UserID:      o.UserID,
		GuestEmail:  o.GuestEmail,
		Total:       o.TotalPrice,
		Lines:       o.Lines,
		PlacedAt:    o.CreatedAt,
	}, o.CreatedAt)
}

// PaidEvent builds the OrderPaid event emitted after a successful capture.
func PaidEvent(o *Order, now time.Time) (Event, error) {
	return NewEvent(o.ID, EventOrderPaid, OrderPaid{
		OrderID:     o.ID,
		ProviderRef: o.Reference(),
		PaidAt:      now,
	}, now)
}

// StatusChangedEvent builds the event for an administrative transition.
func StatusChangedEvent(orderID string, from, to Status, now time.Time) (Event, error) {
	return NewEvent(orderID, EventOrderStatusChanged, OrderStatusChanged{
		OrderID:   orderID,
		From:      from,
		To:        to,
		ChangedAt: now,
	}, now)
}
