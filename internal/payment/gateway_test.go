package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Classification Tests
// ============================================

func TestProviderError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{"description wins", &ProviderError{Message: "Request is not well-formed", Issue: "INVALID_PARAMETER_VALUE", Description: "Value is invalid."}, "Request is not well-formed: Value is invalid."},
		{"issue fallback", &ProviderError{Message: "Unprocessable", Issue: "AMOUNT_MISMATCH"}, "Unprocessable: AMOUNT_MISMATCH"},
		{"message only", &ProviderError{Message: "Internal error"}, "Internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestOutcomeFromError(t *testing.T) {
	declined := OutcomeFromError("PAY-1", &ProviderError{StatusCode: 422, Issue: IssueInstrumentDeclined, Description: "declined", DebugID: "abc"})
	assert.Equal(t, OutcomeDeclined, declined.Kind)

	failed := OutcomeFromError("PAY-1", &ProviderError{StatusCode: 422, Issue: "ORDER_NOT_APPROVED", Description: "Payer has not approved", DebugID: "abc"})
	assert.Equal(t, OutcomeError, failed.Kind)
	assert.Equal(t, "Payer has not approved (abc)", failed.Message())
	assert.False(t, failed.Succeeded())
}

func TestProviderErrorFromSDK(t *testing.T) {
	sdkErr := &paypal.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
		Name:     "UNPROCESSABLE_ENTITY",
		Message:  "The requested action could not be performed",
		DebugID:  "f00",
		Details: []paypal.ErrorResponseDetail{
			{Issue: IssueInstrumentDeclined, Description: "The instrument presented was declined."},
		},
	}

	var perr *ProviderError
	require.True(t, errors.As(providerError(sdkErr), &perr))
	assert.Equal(t, 422, perr.StatusCode)
	assert.Equal(t, IssueInstrumentDeclined, perr.Issue)
	assert.Equal(t, "f00", perr.DebugID)
	assert.False(t, perr.Temporary())

	plain := errors.New("dial tcp: timeout")
	assert.Equal(t, plain, providerError(plain))
}

func TestTruncateName(t *testing.T) {
	long := strings.Repeat("é", 200)

	got := TruncateName(long)

	assert.Equal(t, MaxItemNameLength, len([]rune(got)))
	assert.Equal(t, "Short", TruncateName("  Short "))
}

func TestCreatedOrder_ApproveURL(t *testing.T) {
	o := &CreatedOrder{Links: []Link{{Href: "self", Rel: "self"}, {Href: "https://approve", Rel: "approve"}}}
	assert.Equal(t, "https://approve", o.ApproveURL())
}

// ============================================
// Breaker Tests
// ============================================

type flakyGateway struct {
	createErr error
	calls     int
}

func (f *flakyGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	f.calls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &CreatedOrder{ID: "PAY-1", Status: "CREATED"}, nil
}

func (f *flakyGateway) CaptureOrder(ctx context.Context, id string) (CaptureOutcome, error) {
	f.calls++
	return CaptureOutcome{Kind: OutcomeDeclined, ProviderOrderID: id}, nil
}

func TestBreakerGateway_OpensOnProviderOutage(t *testing.T) {
	next := &flakyGateway{createErr: &ProviderError{StatusCode: 503, Message: "Service Unavailable"}}
	gw := NewBreakerGateway(next, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{})
		require.Error(t, err)
	}

	_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{})

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, 2, next.calls, "open breaker must not reach the provider")
}

func TestBreakerGateway_IgnoresRejections(t *testing.T) {
	next := &flakyGateway{createErr: &ProviderError{StatusCode: 422, Message: "Unprocessable"}}
	gw := NewBreakerGateway(next, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{})
		var perr *ProviderError
		require.ErrorAs(t, err, &perr)
	}
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, "closed", gw.State())

	out, err := gw.CaptureOrder(context.Background(), "PAY-9")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, out.Kind)
}
