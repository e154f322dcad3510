package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrItemNotFound = errors.New("catalog item not found")

// Kind distinguishes the two families of purchasable items. Both share one
// table and one pricing path.
type Kind string

const (
	KindBook    Kind = "book"
	KindProduct Kind = "product"
)

// Item is a purchasable entity as seen by checkout. Read-only.
type Item struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	Name            string          `json:"name"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StockQuantity   int             `json:"stock_quantity"`
}

// Store is the read-only catalog lookup consumed by the cart and checkout.
type Store interface {
	// FindByID returns ErrItemNotFound when the id does not resolve.
	FindByID(ctx context.Context, id string) (*Item, error)
	// FindAllByIDs returns the items that exist; unknown ids are skipped.
	FindAllByIDs(ctx context.Context, ids []string) ([]Item, error)
}
