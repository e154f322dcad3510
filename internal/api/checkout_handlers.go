package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/order"
	"github.com/example/ec-storefront/internal/payment"
	"github.com/example/ec-storefront/internal/pricing"
	"github.com/example/ec-storefront/internal/session"
)

const maxFormBytes = 64 << 10

// CheckoutHandlers serves the two checkout steps
type CheckoutHandlers struct {
	checkout *checkout.Service
}

func NewCheckoutHandlers(svc *checkout.Service) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: svc}
}

// CreateOrderResponse is the provider order plus the local record
type CreateOrderResponse struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Links   []payment.Link `json:"links,omitempty"`
	OrderID string         `json:"order_id"`
	Totals  pricing.Totals `json:"totals"`
}

func (h *CheckoutHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		respondError(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	sess := session.FromContext(r.Context())
	res, err := h.checkout.CreateOrder(r.Context(), sess, checkout.ParseShippingForm(r.PostForm))
	if err != nil {
		status, msg := checkoutErrorStatus(err)
		respondError(w, msg, status)
		return
	}

	respondJSON(w, http.StatusOK, CreateOrderResponse{
		ID:      res.Provider.ID,
		Status:  res.Provider.Status,
		Links:   res.Provider.Links,
		OrderID: res.Order.ID,
		Totals:  res.Totals,
	})
}

// CaptureOrderResponse reports the capture outcome
type CaptureOrderResponse struct {
	Order           *order.Order           `json:"order,omitempty"`
	Outcome         payment.CaptureOutcome `json:"outcome"`
	AlreadyCaptured bool                   `json:"already_captured,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

func (h *CheckoutHandlers) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.checkout.CaptureOrder(r.Context(), req.OrderID)
	if err != nil {
		status, msg := checkoutErrorStatus(err)
		respondError(w, msg, status)
		return
	}

	body := CaptureOrderResponse{Order: res.Order, Outcome: res.Outcome, AlreadyCaptured: res.AlreadyCaptured}
	switch res.Outcome.Kind {
	case payment.OutcomeSuccess:
		respondJSON(w, http.StatusOK, body)
	case payment.OutcomeDeclined:
		body.Error = res.Outcome.Message()
		respondJSON(w, http.StatusPaymentRequired, body)
	default:
		body.Error = res.Outcome.Message()
		respondJSON(w, http.StatusBadGateway, body)
	}
}

// checkoutErrorStatus maps checkout failures to a status code and a message
// safe to show the buyer
func checkoutErrorStatus(err error) (int, string) {
	var verr *checkout.ValidationError
	var gerr *checkout.PaymentGatewayError
	var fault *checkout.DataIntegrityFault
	var perr *checkout.PersistenceError
	var cancelled *checkout.OrderCancelledError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &gerr):
		if providerOutage(gerr) {
			return http.StatusBadGateway, "Payment provider is unavailable. Please try again later."
		}
		return http.StatusBadRequest, gerr.Description
	case errors.As(err, &cancelled):
		return http.StatusConflict, "This order was cancelled and can no longer be paid."
	case errors.As(err, &fault):
		log.Printf("[API] %v", fault)
		return http.StatusInternalServerError, "Payment was captured but the order could not be found. Please contact support."
	case errors.As(err, &perr):
		log.Printf("[API] %v", perr)
		return http.StatusInternalServerError, "Your order could not be saved. Please contact support."
	}
	log.Printf("[API] Checkout failed: %v", err)
	return http.StatusInternalServerError, "internal server error"
}

// providerOutage separates provider or network failures from a provider
// rejecting the request
func providerOutage(err error) bool {
	if errors.Is(err, payment.ErrGatewayUnavailable) {
		return true
	}
	var perr *payment.ProviderError
	if errors.As(err, &perr) {
		return perr.Temporary()
	}
	return true
}
