package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/services"
)

type stubVerifier struct{}

// VerifyToken treats the raw token as the role name.
func (stubVerifier) VerifyToken(_ context.Context, raw string) (*auth.Identity, error) {
	switch raw {
	case "admin-token":
		return &auth.Identity{Subject: "root", Roles: []string{auth.RoleAdmin}}, nil
	case "customer-token":
		return &auth.Identity{Subject: "asha@example.com", Email: "asha@example.com", Roles: []string{auth.RoleCustomer}}, nil
	case "expired-token":
		return nil, auth.ErrTokenExpired
	default:
		return nil, auth.ErrTokenInvalid
	}
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(stubVerifier{})
}

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	listCustomer func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
	updateFn     func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, id string) (services.Order, error) {
	return s.getFn(ctx, id)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) ListCustomerOrders(ctx context.Context, ref string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	return s.listCustomer(ctx, ref, pager)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	return s.updateFn(ctx, cmd)
}

type stubPaymentService struct {
	initiateFn  func(context.Context, string) (services.TransactionInitiation, error)
	verifyFn    func(context.Context, services.VerifyPaymentCommand) (services.Order, error)
	codFn       func(context.Context, string) (services.Order, error)
	eventFn     func(context.Context, services.ProviderEventCommand) (services.Order, error)
	reconcileFn func(context.Context, int) (services.ReconciliationSummary, error)
	upiFn       func(context.Context, string) (services.UPIPaymentIntent, error)
}

func (s *stubPaymentService) InitiateTransaction(ctx context.Context, id string) (services.TransactionInitiation, error) {
	return s.initiateFn(ctx, id)
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	return s.verifyFn(ctx, cmd)
}

func (s *stubPaymentService) ConfirmCashOnDelivery(ctx context.Context, id string) (services.Order, error) {
	return s.codFn(ctx, id)
}

func (s *stubPaymentService) ApplyProviderEvent(ctx context.Context, cmd services.ProviderEventCommand) (services.Order, error) {
	return s.eventFn(ctx, cmd)
}

func (s *stubPaymentService) ReconcilePlaceholders(ctx context.Context, limit int) (services.ReconciliationSummary, error) {
	return s.reconcileFn(ctx, limit)
}

func (s *stubPaymentService) UPIIntent(ctx context.Context, id string) (services.UPIPaymentIntent, error) {
	return s.upiFn(ctx, id)
}

func sampleOrder() services.Order {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return services.Order{
		ID:              "ord_01TEST",
		CustomerName:    "Asha Rao",
		CustomerEmail:   "asha@example.com",
		CustomerPhone:   "+91-9876543210",
		CustomerAddress: "12 MG Road, Bengaluru",
		Items: []domain.LineItem{
			{ProductRef: "prd_1", Name: "Kettle", Quantity: 2, UnitPrice: decimal.RequireFromString("100")},
			{ProductRef: "prd_2", Name: "Mug", Quantity: 1, UnitPrice: decimal.RequireFromString("50")},
		},
		TotalAmount:   decimal.RequireFromString("250"),
		Currency:      "INR",
		PaymentMethod: domain.PaymentMethodCardGateway,
		PaymentStatus: domain.PaymentStatusPending,
		Status:        domain.OrderStatusPlaced,
		Version:       1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func doRequest(t *testing.T, h http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
