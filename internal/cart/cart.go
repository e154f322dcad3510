package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/pricing"
)

var (
	ErrInvalidItem     = errors.New("item_id is required")
	ErrUnknownAction   = errors.New("unknown cart action")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Line is the minimal persisted form of a cart entry. Only these two fields
// ever reach session storage.
type Line struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Entry is a Line resolved against the live catalog.
type Entry struct {
	Line
	Item catalog.Item `json:"item"`
}

// Cart is a rehydrated cart. Entries are unique by item id.
type Cart struct {
	Entries []Entry `json:"entries"`
}

// IsEmpty reports whether the cart has no entries.
func (c Cart) IsEmpty() bool {
	return len(c.Entries) == 0
}

// Lines returns the minimal form of the cart, dropping non-positive quantities.
func (c Cart) Lines() []Line {
	lines := make([]Line, 0, len(c.Entries))
	for _, e := range c.Entries {
		if e.Quantity > 0 {
			lines = append(lines, e.Line)
		}
	}
	return lines
}

// TotalQuantity is the number of units across all entries.
func (c Cart) TotalQuantity() int {
	var n int
	for _, e := range c.Entries {
		n += e.Quantity
	}
	return n
}

// Quote prices the cart against the catalog data it was rehydrated with.
func (c Cart) Quote() ([]pricing.LineQuote, pricing.Totals, error) {
	inputs := make([]pricing.LineInput, 0, len(c.Entries))
	for _, e := range c.Entries {
		inputs = append(inputs, pricing.LineInput{Item: e.Item, Quantity: e.Quantity})
	}
	return pricing.QuoteCart(inputs)
}

func (c Cart) indexOf(itemID string) int {
	for i, e := range c.Entries {
		if e.ItemID == itemID {
			return i
		}
	}
	return -1
}

// Read rehydrates stored lines against the catalog in a single lookup. Lines
// whose item no longer exists are dropped silently, as are non-positive
// quantities. Duplicate item ids are merged.
func Read(ctx context.Context, store catalog.Store, stored []Line) (Cart, error) {
	if len(stored) == 0 {
		return Cart{}, nil
	}

	ids := make([]string, 0, len(stored))
	for _, l := range stored {
		ids = append(ids, l.ItemID)
	}

	items, err := store.FindAllByIDs(ctx, ids)
	if err != nil {
		return Cart{}, fmt.Errorf("failed to resolve cart items: %w", err)
	}

	byID := make(map[string]catalog.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	var c Cart
	for _, l := range stored {
		if l.Quantity <= 0 {
			continue
		}
		it, ok := byID[l.ItemID]
		if !ok {
			continue
		}
		if i := c.indexOf(l.ItemID); i >= 0 {
			c.Entries[i].Quantity += l.Quantity
			continue
		}
		c.Entries = append(c.Entries, Entry{Line: l, Item: it})
	}
	return c, nil
}
