package checkout

import (
	"fmt"

	"github.com/example/ec-storefront/internal/order"
)

// Stage is a step of the two-phase checkout protocol. A checkout starts at
// DRAFT, reaches PROVIDER_ORDER_CREATED once the provider order exists, then
// CAPTURE_REQUESTED and finally PAID. Provider failures and declines end at
// REJECTED.
type Stage string

const (
	StageDraft                Stage = "DRAFT"
	StageRejected             Stage = "REJECTED"
	StageProviderOrderCreated Stage = "PROVIDER_ORDER_CREATED"
	StageCaptureRequested     Stage = "CAPTURE_REQUESTED"
	StagePaid                 Stage = "PAID"
)

const (
	msgGuestEmailRequired = "Guest email is required if user is not logged in"
	msgCartEmpty          = "Cart is empty. Please add items to your cart before checkout."
	msgTotalNotPositive   = "Cart total must be greater than zero."
)

// ValidationError rejects a checkout before any provider call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PaymentGatewayError wraps a provider failure at the given stage
type PaymentGatewayError struct {
	Stage       Stage
	Description string
	Err         error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway error during %s: %s", e.Stage, e.Description)
}

func (e *PaymentGatewayError) Unwrap() error { return e.Err }

// PersistenceError means the provider order exists but the local order could
// not be recorded. ProviderOrderID is needed for manual reconciliation.
type PersistenceError struct {
	ProviderOrderID string
	Err             error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to record order for provider order %s: %v", e.ProviderOrderID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DataIntegrityFault means the provider captured funds for an order that has
// no local record
type DataIntegrityFault struct {
	ProviderOrderID string
}

func (e *DataIntegrityFault) Error() string {
	return fmt.Sprintf("no local order for captured provider order %s", e.ProviderOrderID)
}

// OrderCancelledError rejects a capture for an order cancelled locally
type OrderCancelledError struct {
	ProviderOrderID string
}

func (e *OrderCancelledError) Error() string {
	return fmt.Sprintf("order for provider order %s is cancelled", e.ProviderOrderID)
}

func (e *OrderCancelledError) Unwrap() error { return order.ErrOrderCancelled }
