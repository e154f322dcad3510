package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyOrder         = errors.New("order must have at least one line")
	ErrMissingPurchaser   = errors.New("order requires a user id or a guest email")
	ErrInvalidStatus      = errors.New("invalid order status transition")
	ErrUnknownStatus      = errors.New("unknown order status")
	ErrOrderCancelled     = errors.New("order is already cancelled")
	ErrOrderCompleted     = errors.New("order is already completed")
	ErrDuplicateReference = errors.New("provider reference already recorded")
	ErrCaptureRequired    = errors.New("order moves to processing only when its payment is captured")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

// AdminStatuses are the statuses an administrator may set by hand.
var AdminStatuses = []Status{StatusProcessing, StatusCompleted, StatusCancelled}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	switch from {
	case StatusCancelled:
		return ErrOrderCancelled
	case StatusCompleted:
		return ErrOrderCompleted
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, from, to)
}

// ValidateAdminTransition checks a transition requested by an administrator.
// Processing is reserved for MarkProcessing after a confirmed capture.
func ValidateAdminTransition(from, to Status) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	if to == StatusProcessing {
		return ErrCaptureRequired
	}
	return nil
}

// ShippingInfo is embedded in every order.
type ShippingInfo struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
}

// Line is a purchased item with its price frozen at order creation.
type Line struct {
	OrderID   string          `json:"order_id"`
	ItemID    string          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID          string          `json:"id"`
	ProviderRef *string         `json:"provider_ref"`
	UserID      *int64          `json:"user_id"`
	GuestEmail  *string         `json:"guest_email"`
	Status      Status          `json:"status"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Shipping    ShippingInfo    `json:"shipping"`
	Lines       []Line          `json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewOrderParams carries everything needed to record a freshly created
// provider order locally.
type NewOrderParams struct {
	ProviderRef string
	UserID      *int64
	GuestEmail  string
	TotalPrice  decimal.Decimal
	Shipping    ShippingInfo
	Lines       []Line
}

// New builds a pending order. A user id takes precedence over a guest email.
func New(p NewOrderParams, now time.Time) (*Order, error) {
	if len(p.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	if p.UserID == nil && p.GuestEmail == "" {
		return nil, ErrMissingPurchaser
	}

	o := &Order{
		ID:         uuid.New().String(),
		UserID:     p.UserID,
		Status:     StatusPending,
		TotalPrice: p.TotalPrice,
		Shipping:   p.Shipping,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if p.ProviderRef != "" {
		ref := p.ProviderRef
		o.ProviderRef = &ref
	}
	if p.UserID == nil {
		email := p.GuestEmail
		o.GuestEmail = &email
	}

	o.Lines = make([]Line, len(p.Lines))
	for i, l := range p.Lines {
		l.OrderID = o.ID
		o.Lines[i] = l
	}
	return o, nil
}

// IsOwnedBy reports whether the order belongs to the given user.
func (o *Order) IsOwnedBy(userID int64) bool {
	return o.UserID != nil && *o.UserID == userID
}

// Reference returns the provider reference or an empty string.
func (o *Order) Reference() string {
	if o.ProviderRef == nil {
		return ""
	}
	return *o.ProviderRef
}
