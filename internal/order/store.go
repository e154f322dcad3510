package order

import (
	"context"
	"time"
)

// Store persists orders. Implementations must write an order, its lines and
// its OrderPlaced event atomically, and must make MarkProcessing a
// conditional pending -> processing update.
type Store interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByProviderRef(ctx context.Context, ref string) (*Order, error)
	// MarkProcessing moves the order recorded under ref from pending to
	// processing. It reports false without error when the order exists but
	// is no longer pending, and ErrOrderNotFound when nothing matches.
	MarkProcessing(ctx context.Context, ref string) (*Order, bool, error)
	// UpdateStatus applies an administrative transition. It never moves an
	// order into processing; see ValidateAdminTransition.
	UpdateStatus(ctx context.Context, id string, to Status) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	// ListStalePending returns orders still pending that were created before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*Order, error)
}
