package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/ec-storefront/internal/payment"
)

// MockGateway is a scripted payment.Gateway for testing
type MockGateway struct {
	mu      sync.Mutex
	counter int

	// Error injection
	CreateErr  error
	CaptureErr error

	// CaptureOutcomes overrides the outcome per provider order id;
	// unlisted ids capture successfully
	CaptureOutcomes map[string]payment.CaptureOutcome

	// For tracking calls in tests
	CreateCalls  []payment.CreateOrderRequest
	CaptureCalls []string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{CaptureOutcomes: make(map[string]payment.CaptureOutcome)}
}

func (m *MockGateway) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.CreatedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, req)
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.counter++
	id := fmt.Sprintf("PAY-%03d", m.counter)
	return &payment.CreatedOrder{
		ID:     id,
		Status: "CREATED",
		Links: []payment.Link{
			{Href: "https://www.sandbox.paypal.com/checkoutnow?token=" + id, Rel: "approve", Method: "GET"},
		},
	}, nil
}

func (m *MockGateway) CaptureOrder(ctx context.Context, providerOrderID string) (payment.CaptureOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls = append(m.CaptureCalls, providerOrderID)
	if m.CaptureErr != nil {
		return payment.CaptureOutcome{}, m.CaptureErr
	}
	if out, ok := m.CaptureOutcomes[providerOrderID]; ok {
		return out, nil
	}
	return payment.CaptureOutcome{
		Kind:            payment.OutcomeSuccess,
		ProviderOrderID: providerOrderID,
		Status:          "COMPLETED",
	}, nil
}

// Decline scripts a recoverable decline for providerOrderID
func (m *MockGateway) Decline(providerOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CaptureOutcomes[providerOrderID] = payment.CaptureOutcome{
		Kind:            payment.OutcomeDeclined,
		ProviderOrderID: providerOrderID,
		Issue:           payment.IssueInstrumentDeclined,
		Description:     "The instrument presented was either declined by the processor or bank.",
		DebugID:         "dbg-decline",
	}
}
