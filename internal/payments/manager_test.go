package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/techmart/storefront-api/internal/domain"
)

type fakeProvider struct {
	txn   Transaction
	err   error
	key   string
	delay time.Duration
	last  TransactionRequest
}

func (f *fakeProvider) CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error) {
	f.last = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Transaction{}, ctx.Err()
		}
	}
	return f.txn, f.err
}

func (f *fakeProvider) ClientKey() string { return f.key }

func TestManagerCreatesTransactionWithDefaultProvider(t *testing.T) {
	provider := &fakeProvider{txn: Transaction{Reference: "pi_123"}, key: "pk_test"}
	mgr, err := NewManager(map[string]Provider{"Stripe": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	result := mgr.CreateTransaction(context.Background(), PaymentContext{Method: domain.PaymentMethodCardGateway}, TransactionRequest{OrderID: "ord_1", Amount: 19999, Currency: "INR"})
	if !result.Created() {
		t.Fatalf("expected created outcome, got %v (%v)", result.Outcome, result.Cause)
	}
	if result.Reference != "pi_123" || result.ClientKey != "pk_test" || result.Provider != "stripe" {
		t.Fatalf("unexpected result %+v", result)
	}
	if provider.last.Amount != 19999 {
		t.Fatalf("expected amount forwarded, got %d", provider.last.Amount)
	}
}

func TestManagerReportsProviderUnavailable(t *testing.T) {
	cases := []struct {
		name      string
		providers map[string]Provider
		cause     error
	}{
		{
			name:      "no provider registered",
			providers: nil,
			cause:     ErrUnsupportedProvider,
		},
		{
			name:      "provider error",
			providers: map[string]Provider{"stripe": &fakeProvider{err: errors.New("connection reset")}},
		},
		{
			name:      "empty reference",
			providers: map[string]Provider{"stripe": &fakeProvider{}},
		},
		{
			name:      "timeout",
			providers: map[string]Provider{"stripe": &fakeProvider{txn: Transaction{Reference: "late"}, delay: time.Second}},
			cause:     context.DeadlineExceeded,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var events []string
			mgr, err := NewManager(tc.providers,
				WithCallTimeout(20*time.Millisecond),
				WithManagerLogger(func(_ context.Context, event string, _ map[string]any) { events = append(events, event) }),
			)
			if err != nil {
				t.Fatalf("NewManager: %v", err)
			}
			result := mgr.CreateTransaction(context.Background(), PaymentContext{}, TransactionRequest{OrderID: "ord_1"})
			if result.Outcome != OutcomeProviderUnavailable {
				t.Fatalf("expected provider unavailable, got %v", result.Outcome)
			}
			if result.Cause == nil {
				t.Fatalf("expected cause to be set")
			}
			if tc.cause != nil && !errors.Is(result.Cause, tc.cause) {
				t.Fatalf("expected cause %v, got %v", tc.cause, result.Cause)
			}
		})
	}
}

func TestManagerMethodRoutes(t *testing.T) {
	stripe := &fakeProvider{txn: Transaction{Reference: "pi_1"}}
	upi := &fakeProvider{txn: Transaction{Reference: "upi_1"}}
	mgr, err := NewManager(map[string]Provider{"stripe": stripe, "upi": upi},
		WithMethodRoute(domain.PaymentMethodUPIQR, "UPI"),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	result := mgr.CreateTransaction(context.Background(), PaymentContext{Method: domain.PaymentMethodUPIQR}, TransactionRequest{})
	if result.Reference != "upi_1" {
		t.Fatalf("expected upi route, got %+v", result)
	}
}

func TestNewManagerRejectsNilProvider(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"stripe": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}
