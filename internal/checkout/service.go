package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/order"
	"github.com/example/ec-storefront/internal/payment"
	"github.com/example/ec-storefront/internal/pricing"
	"github.com/example/ec-storefront/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/example/ec-storefront/internal/checkout"

// Service runs the two-phase checkout: create a provider order from the
// server-priced cart, record it locally, then capture.
type Service struct {
	catalog catalog.Store
	gateway payment.Gateway
	orders  order.Store
	now     func() time.Time
	tracer  trace.Tracer
}

func NewService(cat catalog.Store, gw payment.Gateway, orders order.Store) *Service {
	return &Service{
		catalog: cat,
		gateway: gw,
		orders:  orders,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
}

// CreateResult is returned once the provider order exists and the local
// order is recorded
type CreateResult struct {
	Provider *payment.CreatedOrder
	Order    *order.Order
	Totals   pricing.Totals
}

func purchaserEmail(sess session.Session, in ShippingInput) string {
	if sess.User != nil {
		return sess.User.Email
	}
	return in.GuestEmail
}

func defaultRegion(sess session.Session, in ShippingInput) string {
	if sess.User != nil && sess.User.CountryCode != "" {
		return strings.ToUpper(sess.User.CountryCode)
	}
	if in.CountryCode != "" {
		return in.CountryCode
	}
	return fallbackRegion
}

func invalidPricing(err error) bool {
	return errors.Is(err, pricing.ErrInvalidDiscount) ||
		errors.Is(err, pricing.ErrInvalidPrice) ||
		errors.Is(err, pricing.ErrInvalidQuantity)
}

// AttrStage is the span attribute carrying the checkout stage reached
const AttrStage = "checkout.stage"

func setStage(span trace.Span, st Stage) {
	span.SetAttributes(attribute.String(AttrStage, string(st)))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CreateOrder prices the session cart against the live catalog, creates the
// provider order and records a pending local order. Nothing is written
// locally when the provider call fails.
func (s *Service) CreateOrder(ctx context.Context, sess session.Session, in ShippingInput) (*CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateOrder")
	defer span.End()
	setStage(span, StageDraft)

	if sess.User == nil && strings.TrimSpace(in.GuestEmail) == "" {
		return nil, fail(span, &ValidationError{Field: "guest_email", Message: msgGuestEmailRequired})
	}

	region := defaultRegion(sess, in)
	if err := in.Validate(region); err != nil {
		return nil, fail(span, err)
	}

	c, err := cart.Read(ctx, s.catalog, sess.Cart.Items)
	if err != nil {
		return nil, fail(span, err)
	}
	if c.IsEmpty() {
		return nil, fail(span, &ValidationError{Field: "cart", Message: msgCartEmpty})
	}

	quotes, totals, err := c.Quote()
	if invalidPricing(err) {
		return nil, fail(span, &ValidationError{Field: "cart", Message: fmt.Sprintf("Cart cannot be priced: %v", err)})
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("failed to price cart: %w", err))
	}
	if !totals.Total.IsPositive() {
		return nil, fail(span, &ValidationError{Field: "cart", Message: msgTotalNotPositive})
	}
	span.SetAttributes(
		attribute.Int("cart.lines", len(quotes)),
		attribute.String("cart.total", totals.Total.StringFixed(2)),
	)

	req := payment.CreateOrderRequest{
		Currency: payment.CurrencyUSD,
		Total:    totals.Total,
		Payer: payment.Payer{
			GivenName:     in.FirstName,
			Surname:       in.LastName,
			Email:         purchaserEmail(sess, in),
			PhoneNational: NormalizePhone(in.PhoneNumber, region),
			AddressLine1:  in.Address,
			City:          in.City,
			CountryCode:   in.CountryCode,
		},
	}
	for _, q := range quotes {
		req.Items = append(req.Items, payment.LineItem{
			Name:       payment.TruncateName(q.Name),
			UnitAmount: q.UnitPrice,
			Quantity:   q.Quantity,
		})
	}

	created, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		log.Printf("[Checkout] Provider order creation failed: %v", err)
		setStage(span, StageRejected)
		return nil, fail(span, &PaymentGatewayError{Stage: StageDraft, Description: err.Error(), Err: err})
	}
	span.SetAttributes(attribute.String("provider.order_id", created.ID))
	setStage(span, StageProviderOrderCreated)

	lines := make([]order.Line, 0, len(quotes))
	for _, q := range quotes {
		lines = append(lines, order.Line{
			ItemID:    q.ItemID,
			Quantity:  q.Quantity,
			UnitPrice: q.UnitPrice,
			Subtotal:  q.Subtotal,
		})
	}

	var guestEmail string
	if sess.User == nil {
		guestEmail = in.GuestEmail
	}
	o, err := order.New(order.NewOrderParams{
		ProviderRef: created.ID,
		UserID:      sess.UserID(),
		GuestEmail:  guestEmail,
		TotalPrice:  totals.Total,
		Shipping:    in.Shipping(),
		Lines:       lines,
	}, s.now())
	if err == nil {
		err = s.orders.Create(ctx, o)
	}
	if err != nil {
		log.Printf("[Checkout] CRITICAL: provider order %s created but local order not recorded: %v", created.ID, err)
		return nil, fail(span, &PersistenceError{ProviderOrderID: created.ID, Err: err})
	}

	log.Printf("[Checkout] Order %s recorded for provider order %s (total %s %s)",
		o.ID, created.ID, totals.Total.StringFixed(2), payment.CurrencyUSD)
	return &CreateResult{Provider: created, Order: o, Totals: totals}, nil
}

// CaptureResult is the outcome of a capture request. Order is set only when
// the provider reported success.
type CaptureResult struct {
	Order           *order.Order           `json:"order,omitempty"`
	Outcome         payment.CaptureOutcome `json:"outcome"`
	AlreadyCaptured bool                   `json:"already_captured,omitempty"`
}

// CaptureOrder captures an approved provider order and moves the local order
// from pending to processing. Declines and provider errors are returned as an
// outcome and leave the local order untouched.
func (s *Service) CaptureOrder(ctx context.Context, providerOrderID string) (*CaptureResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CaptureOrder",
		trace.WithAttributes(attribute.String("provider.order_id", providerOrderID)))
	defer span.End()

	if strings.TrimSpace(providerOrderID) == "" {
		return nil, fail(span, &ValidationError{Field: "orderID", Message: "orderID is required"})
	}

	// a repeated capture of a paid order is answered locally
	if existing, err := s.orders.FindByProviderRef(ctx, providerOrderID); err == nil {
		switch existing.Status {
		case order.StatusProcessing, order.StatusCompleted:
			setStage(span, StagePaid)
			return &CaptureResult{
				Order: existing,
				Outcome: payment.CaptureOutcome{
					Kind:            payment.OutcomeSuccess,
					ProviderOrderID: providerOrderID,
				},
				AlreadyCaptured: true,
			}, nil
		case order.StatusCancelled:
			return nil, fail(span, &OrderCancelledError{ProviderOrderID: providerOrderID})
		}
	}

	setStage(span, StageCaptureRequested)
	outcome, err := s.gateway.CaptureOrder(ctx, providerOrderID)
	if err != nil {
		log.Printf("[Checkout] Capture request for provider order %s failed: %v", providerOrderID, err)
		return nil, fail(span, &PaymentGatewayError{Stage: StageCaptureRequested, Description: err.Error(), Err: err})
	}
	span.SetAttributes(attribute.String("capture.outcome", string(outcome.Kind)))

	if !outcome.Succeeded() {
		log.Printf("[Checkout] Capture of provider order %s not completed: %s %s", providerOrderID, outcome.Kind, outcome.Message())
		setStage(span, StageRejected)
		return &CaptureResult{Outcome: outcome}, nil
	}

	o, changed, err := s.orders.MarkProcessing(ctx, providerOrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		log.Printf("[Checkout] CRITICAL: provider order %s captured but no local order exists", providerOrderID)
		return nil, fail(span, &DataIntegrityFault{ProviderOrderID: providerOrderID})
	}
	if err != nil {
		log.Printf("[Checkout] CRITICAL: provider order %s captured but status update failed: %v", providerOrderID, err)
		return nil, fail(span, &PersistenceError{ProviderOrderID: providerOrderID, Err: err})
	}

	if !changed && o.Status == order.StatusCancelled {
		log.Printf("[Checkout] CRITICAL: provider order %s captured but local order %s was cancelled", providerOrderID, o.ID)
		return nil, fail(span, &OrderCancelledError{ProviderOrderID: providerOrderID})
	}
	setStage(span, StagePaid)
	if changed {
		log.Printf("[Checkout] Order %s paid (provider order %s)", o.ID, providerOrderID)
	}
	return &CaptureResult{Order: o, Outcome: outcome, AlreadyCaptured: !changed}, nil
}
