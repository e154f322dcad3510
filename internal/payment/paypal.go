package payment

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/plutov/paypal/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	ModeSandbox = "sandbox"
	ModeLive    = "live"
)

// PayPalGateway talks to the PayPal Orders v2 API
type PayPalGateway struct {
	client *paypal.Client
}

// NewPayPalGateway creates a gateway for the given mode (sandbox or live)
func NewPayPalGateway(clientID, secret, mode string) (*PayPalGateway, error) {
	base := paypal.APIBaseSandBox
	if mode == ModeLive {
		base = paypal.APIBaseLive
	}
	return newPayPalGateway(clientID, secret, base)
}

func newPayPalGateway(clientID, secret, base string) (*PayPalGateway, error) {
	client, err := paypal.NewClient(clientID, secret, base)
	if err != nil {
		return nil, err
	}
	client.SetHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)})

	return &PayPalGateway{client: client}, nil
}

// payerSource is payment_source.paypal of an Orders v2 create request. The
// SDK's PaymentSourcePaypal only models the experience context, so the payer
// fields are declared here.
type payerSource struct {
	EmailAddress string                                `json:"email_address,omitempty"`
	Name         *paypal.CreateOrderPayerName          `json:"name,omitempty"`
	Phone        *paypal.PhoneWithType                 `json:"phone,omitempty"`
	Address      *paypal.ShippingDetailAddressPortable `json:"address,omitempty"`
}

type paymentSource struct {
	Paypal *payerSource `json:"paypal"`
}

type createOrderPayload struct {
	Intent        string                       `json:"intent"`
	PurchaseUnits []paypal.PurchaseUnitRequest `json:"purchase_units"`
	PaymentSource *paymentSource               `json:"payment_source,omitempty"`
}

func buildPayerSource(p Payer) *paymentSource {
	src := &payerSource{
		EmailAddress: p.Email,
		Name: &paypal.CreateOrderPayerName{
			GivenName: p.GivenName,
			Surname:   p.Surname,
		},
		Address: &paypal.ShippingDetailAddressPortable{
			AddressLine1: p.AddressLine1,
			AdminArea2:   p.City,
			CountryCode:  p.CountryCode,
		},
	}
	if p.PhoneNational != "" {
		src.Phone = &paypal.PhoneWithType{
			PhoneType:   "MOBILE",
			PhoneNumber: &paypal.PhoneWithTypeNumber{NationalNumber: p.PhoneNational},
		}
	}
	return &paymentSource{Paypal: src}
}

func money(currency, value string) *paypal.Money {
	return &paypal.Money{Currency: currency, Value: value}
}

func (g *PayPalGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	currency := req.Currency
	if currency == "" {
		currency = CurrencyUSD
	}
	total := req.Total.StringFixed(2)

	items := make([]paypal.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, paypal.Item{
			Name:       TruncateName(it.Name),
			UnitAmount: money(currency, it.UnitAmount.StringFixed(2)),
			Quantity:   strconv.Itoa(it.Quantity),
		})
	}

	units := []paypal.PurchaseUnitRequest{{
		Amount: &paypal.PurchaseUnitAmount{
			Currency: currency,
			Value:    total,
			Breakdown: &paypal.PurchaseUnitAmountBreakdown{
				ItemTotal: money(currency, total),
			},
		},
		Items: items,
	}}

	payload := createOrderPayload{
		Intent:        paypal.OrderIntentCapture,
		PurchaseUnits: units,
		PaymentSource: buildPayerSource(req.Payer),
	}
	httpReq, err := g.client.NewRequest(ctx, http.MethodPost, g.client.APIBase+"/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}
	order := &paypal.Order{}
	if err := g.client.SendWithAuth(httpReq, order); err != nil {
		return nil, providerError(err)
	}

	created := &CreatedOrder{ID: order.ID, Status: order.Status}
	for _, l := range order.Links {
		created.Links = append(created.Links, Link{Href: l.Href, Rel: l.Rel, Method: l.Method})
	}
	log.Printf("[PayPal] Created order %s (%s) for %s %s", created.ID, created.Status, total, currency)
	return created, nil
}

func (g *PayPalGateway) CaptureOrder(ctx context.Context, providerOrderID string) (CaptureOutcome, error) {
	resp, err := g.client.CaptureOrder(ctx, providerOrderID, paypal.CaptureOrderRequest{})
	if err != nil {
		var perr *ProviderError
		if errors.As(providerError(err), &perr) && perr.StatusCode != 0 {
			log.Printf("[PayPal] Capture of %s failed with status %d: %v (debug_id=%s)", providerOrderID, perr.StatusCode, perr, perr.DebugID)
			return OutcomeFromError(providerOrderID, perr), nil
		}
		return CaptureOutcome{}, err
	}

	log.Printf("[PayPal] Captured order %s (%s)", resp.ID, resp.Status)
	return CaptureOutcome{
		Kind:            OutcomeSuccess,
		ProviderOrderID: resp.ID,
		Status:          resp.Status,
	}, nil
}

// providerError converts an SDK error response into a *ProviderError. Other
// errors (transport, token fetch) are returned unchanged.
func providerError(err error) error {
	var er *paypal.ErrorResponse
	if !errors.As(err, &er) {
		return err
	}

	perr := &ProviderError{
		Name:    er.Name,
		Message: er.Message,
		DebugID: er.DebugID,
	}
	if er.Response != nil {
		perr.StatusCode = er.Response.StatusCode
	}
	if len(er.Details) > 0 {
		perr.Issue = er.Details[0].Issue
		perr.Description = er.Details[0].Description
	}
	return perr
}
