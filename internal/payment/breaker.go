package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker around the gateway
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request
	OpenTimeout time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// BreakerGateway wraps a Gateway with a circuit breaker. Only provider
// outages and 5xx capture outcomes count as failures. Rejected requests (4xx)
// and declines leave the breaker closed.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker[any]
}

func NewBreakerGateway(next Gateway, st BreakerSettings) *BreakerGateway {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var perr *ProviderError
			if errors.As(err, &perr) {
				return !perr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Payment] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &BreakerGateway{next: next, breaker: cb}
}

// errCaptureFault marks a 5xx capture outcome so the breaker counts it as a
// failure while the caller still receives the outcome
var errCaptureFault = errors.New("provider failed during capture")

func unavailable(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return err
}

func (b *BreakerGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.next.CreateOrder(ctx, req)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return res.(*CreatedOrder), nil
}

func (b *BreakerGateway) CaptureOrder(ctx context.Context, providerOrderID string) (CaptureOutcome, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		out, err := b.next.CaptureOrder(ctx, providerOrderID)
		if err == nil && out.providerFault() {
			return out, errCaptureFault
		}
		return out, err
	})
	if errors.Is(err, errCaptureFault) {
		return res.(CaptureOutcome), nil
	}
	if err != nil {
		return CaptureOutcome{}, unavailable(err)
	}
	return res.(CaptureOutcome), nil
}

// State reports the breaker state, for health checks
func (b *BreakerGateway) State() string {
	return b.breaker.State().String()
}
