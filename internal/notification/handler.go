package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/order"
	"github.com/example/ec-storefront/internal/payment"
)

// Mailer sends the payment confirmation
type Mailer interface {
	SendPaymentConfirmation(c email.Confirmation) error
}

// Handler processes order events for sending notifications
type Handler struct {
	mailer  Mailer
	orders  order.Store
	users   auth.UserStore
	catalog catalog.Store
}

func NewHandler(mailer Mailer, orders order.Store, users auth.UserStore, cat catalog.Store) *Handler {
	return &Handler{
		mailer:  mailer,
		orders:  orders,
		users:   users,
		catalog: cat,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event order.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	// Only payment confirmations are mailed
	if event.EventType == order.EventOrderPaid {
		return h.handleOrderPaid(ctx, event)
	}
	return nil
}

func (h *Handler) handleOrderPaid(ctx context.Context, event order.Event) error {
	var e order.OrderPaid
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPaid event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPaid event for order %s", e.OrderID)

	o, err := h.orders.FindByID(ctx, e.OrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		log.Printf("[Notifier] Order not found: %s", e.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", e.OrderID, err)
	}

	recipient, err := h.recipient(ctx, o)
	if err != nil {
		return err
	}
	if recipient == "" {
		log.Printf("[Notifier] No recipient for order %s", o.ID)
		return nil
	}

	c := email.Confirmation{
		OrderID:     o.ID,
		ProviderRef: o.Reference(),
		Recipient:   recipient,
		Total:       o.TotalPrice,
		Currency:    payment.CurrencyUSD,
		Items:       h.items(ctx, o),
		ShipTo:      shipTo(o.Shipping),
	}
	if err := h.mailer.SendPaymentConfirmation(c); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", recipient, err)
		return err
	}

	log.Printf("[Notifier] Payment confirmation sent to %s for order %s", recipient, o.ID)
	return nil
}

func (h *Handler) recipient(ctx context.Context, o *order.Order) (string, error) {
	if o.GuestEmail != nil {
		return *o.GuestEmail, nil
	}
	if o.UserID == nil {
		return "", nil
	}
	u, err := h.users.FindByID(ctx, *o.UserID)
	if errors.Is(err, auth.ErrUserNotFound) {
		log.Printf("[Notifier] User not found: %d", *o.UserID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user %d: %w", *o.UserID, err)
	}
	return u.Email, nil
}

// items resolves display names. Items deleted from the catalog since the
// order was placed fall back to their id.
func (h *Handler) items(ctx context.Context, o *order.Order) []email.OrderItem {
	ids := make([]string, len(o.Lines))
	for i, l := range o.Lines {
		ids[i] = l.ItemID
	}

	names := make(map[string]string, len(ids))
	found, err := h.catalog.FindAllByIDs(ctx, ids)
	if err != nil {
		log.Printf("[Notifier] Failed to load item names for order %s: %v", o.ID, err)
	}
	for _, it := range found {
		names[it.ID] = it.Name
	}

	out := make([]email.OrderItem, len(o.Lines))
	for i, l := range o.Lines {
		out[i] = email.OrderItem{
			ItemID:    l.ItemID,
			Name:      names[l.ItemID],
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		}
	}
	return out
}

func shipTo(s order.ShippingInfo) string {
	parts := []string{
		strings.TrimSpace(s.FirstName + " " + s.LastName),
		s.Address,
		s.City,
		s.CountryCode,
	}
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
