package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CurrencyUSD = "USD"

	// MaxItemNameLength is the provider's limit on line item names
	MaxItemNameLength = 127

	// IssueInstrumentDeclined marks a capture the buyer can retry with a
	// different funding source
	IssueInstrumentDeclined = "INSTRUMENT_DECLINED"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Gateway is the external payment processor
type Gateway interface {
	// CreateOrder registers a provider order for the buyer to approve
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error)
	// CaptureOrder captures an approved order. Provider-reported failures
	// are returned as a classified outcome; the error is reserved for
	// failures to reach the provider at all.
	CaptureOrder(ctx context.Context, providerOrderID string) (CaptureOutcome, error)
}

type LineItem struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int
}

type Payer struct {
	GivenName     string
	Surname       string
	Email         string
	PhoneNational string
	AddressLine1  string
	City          string
	CountryCode   string
}

type CreateOrderRequest struct {
	Currency string
	Total    decimal.Decimal
	Items    []LineItem
	Payer    Payer
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// CreatedOrder is the provider's creation payload, returned to the client
// so it can drive buyer approval
type CreatedOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links,omitempty"`
}

// ApproveURL returns the buyer approval link, if any
func (o *CreatedOrder) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeDeclined OutcomeKind = "declined"
	OutcomeError    OutcomeKind = "error"
)

// CaptureOutcome is the classified result of a capture attempt
type CaptureOutcome struct {
	Kind            OutcomeKind `json:"kind"`
	ProviderOrderID string      `json:"provider_order_id"`
	Status          string      `json:"status,omitempty"`
	Issue           string      `json:"issue,omitempty"`
	Description     string      `json:"description,omitempty"`
	DebugID         string      `json:"debug_id,omitempty"`
	// StatusCode is the provider's HTTP status for a failed capture
	StatusCode int `json:"-"`
}

func (o CaptureOutcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// providerFault reports an error outcome caused by the provider itself (5xx)
func (o CaptureOutcome) providerFault() bool {
	return o.Kind == OutcomeError && o.StatusCode >= 500
}

// Message renders a provider error as "description (debug_id)"
func (o CaptureOutcome) Message() string {
	msg := o.Description
	if msg == "" {
		msg = o.Issue
	}
	if o.DebugID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, o.DebugID)
	}
	return msg
}

// ProviderError is a non-success response from the payment provider
type ProviderError struct {
	StatusCode  int
	Name        string
	Message     string
	Issue       string
	Description string
	DebugID     string
}

func (e *ProviderError) Error() string {
	detail := e.Description
	if detail == "" {
		detail = e.Issue
	}
	if detail == "" {
		return e.Message
	}
	return e.Message + ": " + detail
}

// Temporary reports whether the provider itself failed, as opposed to
// rejecting the request
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// OutcomeFromError classifies a provider error raised during capture
func OutcomeFromError(providerOrderID string, perr *ProviderError) CaptureOutcome {
	kind := OutcomeError
	if perr.Issue == IssueInstrumentDeclined {
		kind = OutcomeDeclined
	}
	return CaptureOutcome{
		Kind:            kind,
		ProviderOrderID: providerOrderID,
		Issue:           perr.Issue,
		Description:     perr.Description,
		DebugID:         perr.DebugID,
		StatusCode:      perr.StatusCode,
	}
}

// TruncateName cuts s to MaxItemNameLength runes
func TruncateName(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= MaxItemNameLength {
		return s
	}
	return string(r[:MaxItemNameLength])
}
