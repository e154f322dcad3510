package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Confirmation is everything shown in a payment confirmation email
type Confirmation struct {
	OrderID     string
	ProviderRef string
	Recipient   string
	Total       decimal.Decimal
	Currency    string
	Items       []OrderItem
	ShipTo      string
}

func (c Confirmation) shortID() string {
	if len(c.OrderID) > 8 {
		return c.OrderID[:8]
	}
	return c.OrderID
}

// Subject is the email subject line
func (c Confirmation) Subject() string {
	return fmt.Sprintf("Payment received for order %s", c.shortID())
}

// BuildConfirmationBody builds the HTML body for the payment confirmation email
func BuildConfirmationBody(c Confirmation) string {
	var itemsHTML strings.Builder
	for _, item := range c.Items {
		name := item.Name
		if name == "" {
			name = item.ItemID
		}
		itemsHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			html.EscapeString(name),
			item.Quantity,
			formatMoney(item.UnitPrice, c.Currency),
			formatMoney(item.Subtotal, c.Currency),
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2d6a4f; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">We have received your payment and are preparing your order.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
			<p style="margin: 5px 0 0 0; font-size: 12px; color: #666;">Payment reference %s</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #2d6a4f; padding-bottom: 10px;">Order summary</h2>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left;">Item</th>
					<th style="padding: 12px; text-align: center;">Qty</th>
					<th style="padding: 12px; text-align: right;">Price</th>
					<th style="padding: 12px; text-align: right;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
			<tfoot>
				<tr>
					<td colspan="3" style="padding: 15px 12px; text-align: right; font-weight: bold;">Total</td>
					<td style="padding: 15px 12px; text-align: right; font-weight: bold; font-size: 18px;">%s</td>
				</tr>
			</tfoot>
		</table>

		<h2 style="font-size: 18px; border-bottom: 2px solid #2d6a4f; padding-bottom: 10px;">Shipping to</h2>
		<p>%s</p>
	</div>
</body>
</html>`,
		html.EscapeString(c.OrderID),
		html.EscapeString(c.ProviderRef),
		itemsHTML.String(),
		formatMoney(c.Total, c.Currency),
		html.EscapeString(c.ShipTo),
	)
}

// formatMoney renders an amount with two decimals and thousands separators
func formatMoney(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, ch := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteRune(',')
		}
		b.WriteRune(ch)
	}
	out := b.String() + "." + frac
	sign := ""
	if neg {
		sign = "-"
	}
	if currency == "USD" {
		return sign + "$" + out
	}
	return sign + out + " " + currency
}
