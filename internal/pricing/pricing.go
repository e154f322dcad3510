package pricing

import (
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/catalog"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrInvalidDiscount = errors.New("discount percent must be between 0 and 100")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
)

// CurrencyPlaces is the number of decimal places used for every amount.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// LineInput is one catalog item with the quantity requested for it.
type LineInput struct {
	Item     catalog.Item
	Quantity int
}

// LineQuote is the priced form of a LineInput.
type LineQuote struct {
	ItemID            string          `json:"item_id"`
	Name              string          `json:"name"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	OriginalUnitPrice decimal.Decimal `json:"original_unit_price"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	OriginalSubtotal  decimal.Decimal `json:"original_subtotal"`
}

// Totals aggregates a set of line quotes.
type Totals struct {
	Total         decimal.Decimal `json:"total"`
	OriginalTotal decimal.Decimal `json:"original_total"`
	Savings       decimal.Decimal `json:"savings"`
}

func validateItem(item catalog.Item) error {
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: item %s", ErrInvalidPrice, item.ID)
	}
	if item.DiscountPercent.IsNegative() || item.DiscountPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: item %s has %s", ErrInvalidDiscount, item.ID, item.DiscountPercent)
	}
	return nil
}

// EffectiveUnitPrice applies the item's discount and rounds half-up to cents.
func EffectiveUnitPrice(item catalog.Item) (decimal.Decimal, error) {
	if err := validateItem(item); err != nil {
		return decimal.Zero, err
	}
	discounted := item.UnitPrice.Mul(hundred.Sub(item.DiscountPercent)).Div(hundred)
	return discounted.Round(CurrencyPlaces), nil
}

// LineSubtotal prices quantity units of item. The subtotal is derived from
// the rounded unit price so that unit*quantity summed by the payment
// provider always matches the cart total to the cent.
func LineSubtotal(item catalog.Item, quantity int) (decimal.Decimal, error) {
	if quantity < 0 {
		return decimal.Zero, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	unit, err := EffectiveUnitPrice(item)
	if err != nil {
		return decimal.Zero, err
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity))).Round(CurrencyPlaces), nil
}

// QuoteLine prices a single line, including its undiscounted figures.
func QuoteLine(item catalog.Item, quantity int) (LineQuote, error) {
	subtotal, err := LineSubtotal(item, quantity)
	if err != nil {
		return LineQuote{}, err
	}
	unit, _ := EffectiveUnitPrice(item)
	original := item.UnitPrice.Round(CurrencyPlaces)
	return LineQuote{
		ItemID:            item.ID,
		Name:              item.Name,
		Quantity:          quantity,
		UnitPrice:         unit,
		OriginalUnitPrice: original,
		Subtotal:          subtotal,
		OriginalSubtotal:  original.Mul(decimal.NewFromInt(int64(quantity))).Round(CurrencyPlaces),
	}, nil
}

// CartTotal sums quotes. Savings is the difference between the undiscounted
// and discounted totals.
func CartTotal(lines []LineQuote) Totals {
	total := decimal.Zero
	original := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
		original = original.Add(l.OriginalSubtotal)
	}
	return Totals{
		Total:         total,
		OriginalTotal: original,
		Savings:       original.Sub(total),
	}
}

// QuoteCart prices every input and returns the quotes in input order along
// with their totals.
func QuoteCart(inputs []LineInput) ([]LineQuote, Totals, error) {
	quotes := make([]LineQuote, 0, len(inputs))
	for _, in := range inputs {
		q, err := QuoteLine(in.Item, in.Quantity)
		if err != nil {
			return nil, Totals{}, err
		}
		quotes = append(quotes, q)
	}
	return quotes, CartTotal(quotes), nil
}
