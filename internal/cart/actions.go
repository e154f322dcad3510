package cart

import (
	"github.com/example/ec-storefront/internal/catalog"
)

type ActionType string

const (
	ActionAdd    ActionType = "add"
	ActionUpdate ActionType = "update"
	ActionRemove ActionType = "remove"
	ActionClear  ActionType = "clear"
)

// Action is a single cart mutation. Item is required for add when the line
// is not yet in the cart. Updating a line that is not in the cart is a no-op.
type Action struct {
	Type     ActionType
	ItemID   string
	Item     *catalog.Item
	Quantity int
}

func Add(item catalog.Item, quantity int) Action {
	return Action{Type: ActionAdd, ItemID: item.ID, Item: &item, Quantity: quantity}
}

func Update(itemID string, quantity int) Action {
	return Action{Type: ActionUpdate, ItemID: itemID, Quantity: quantity}
}

func Remove(itemID string) Action {
	return Action{Type: ActionRemove, ItemID: itemID}
}

func Clear() Action {
	return Action{Type: ActionClear}
}

// Apply returns a new cart with the action applied. The input cart is not
// modified. Persisting the result is the caller's job.
func Apply(c Cart, a Action) (Cart, error) {
	if a.Type == ActionClear {
		return Cart{}, nil
	}
	if a.ItemID == "" {
		return c, ErrInvalidItem
	}

	next := Cart{Entries: make([]Entry, len(c.Entries))}
	copy(next.Entries, c.Entries)
	i := next.indexOf(a.ItemID)

	switch a.Type {
	case ActionAdd:
		if a.Quantity <= 0 {
			return c, ErrInvalidQuantity
		}
		if i >= 0 {
			next.Entries[i].Quantity += a.Quantity
			if a.Item != nil {
				next.Entries[i].Item = *a.Item
			}
			return next, nil
		}
		if a.Item == nil {
			return c, ErrInvalidItem
		}
		next.Entries = append(next.Entries, Entry{
			Line: Line{ItemID: a.ItemID, Quantity: a.Quantity},
			Item: *a.Item,
		})
		return next, nil

	case ActionUpdate:
		if a.Quantity <= 0 {
			return removeAt(next, i), nil
		}
		if i < 0 {
			return c, nil
		}
		next.Entries[i].Quantity = a.Quantity
		return next, nil

	case ActionRemove:
		return removeAt(next, i), nil
	}

	return c, ErrUnknownAction
}

func removeAt(c Cart, i int) Cart {
	if i < 0 {
		return c
	}
	c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
	return c
}
