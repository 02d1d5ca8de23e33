package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/services"
)

func newPaymentRouter(payments services.PaymentService, opts ...PaymentHandlersOption) http.Handler {
	return NewRouter(WithPaymentRoutes(NewPaymentHandlers(testAuthenticator(), payments, opts...).Routes))
}

func TestCreateProviderOrderResponse(t *testing.T) {
	var gotID string
	svc := &stubPaymentService{
		initiateFn: func(_ context.Context, id string) (services.TransactionInitiation, error) {
			gotID = id
			return services.TransactionInitiation{
				Order:           sampleOrder(),
				ProviderOrderID: "pi_123",
				Amount:          25000,
				Currency:        "INR",
				ClientKey:       "pk_test",
				ClientSecret:    "pi_123_secret",
			}, nil
		},
	}
	router := newPaymentRouter(svc)

	for _, path := range []string{"/api/payments/create-provider-order?order_id=ord_01TEST", "/api/payments/create-razorpay-order?order_id=ord_01TEST"} {
		rec := doRequest(t, router, http.MethodPost, path, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "pi_123", body["provider_order_id"])
		assert.Equal(t, float64(25000), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "pk_test", body["key"])
		assert.Equal(t, false, body["placeholder"])
		assert.Equal(t, "ord_01TEST", gotID)
	}
}

func TestCreateProviderOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing id", services.ErrOrderIDRequired, http.StatusBadRequest, "bad_request"},
		{"unknown", services.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"paid", fmt.Errorf("%w: payment already settled", services.ErrOrderInvalidState), http.StatusConflict, "invalid_state"},
		{"race", services.ErrOrderConflict, http.StatusConflict, "conflict"},
		{"not configured", services.ErrPaymentNotConfigured, http.StatusServiceUnavailable, "service_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPaymentService{
				initiateFn: func(context.Context, string) (services.TransactionInitiation, error) {
					return services.TransactionInitiation{}, tc.err
				},
			}
			rec := doRequest(t, newPaymentRouter(svc), http.MethodPost, "/api/payments/create-provider-order", nil, nil)
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestVerifyPaymentAcceptsLegacyFieldNames(t *testing.T) {
	var got services.VerifyPaymentCommand
	svc := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			got = cmd
			order := sampleOrder()
			order.PaymentStatus = domain.PaymentStatusPaid
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}
	router := newPaymentRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/api/payments/verify-payment?order_id=ord_01TEST", map[string]string{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_abc",
		"razorpay_signature":  "deadbeef",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, services.VerifyPaymentCommand{
		OrderID:           "ord_01TEST",
		ProviderOrderID:   "order_abc",
		ProviderPaymentID: "pay_abc",
		Signature:         "deadbeef",
	}, got)
	body := decodeBody(t, rec)
	assert.Equal(t, "paid", body["payment_status"])
	assert.Equal(t, "confirmed", body["order_status"])
}

func TestVerifyPaymentAcceptsProviderSignature(t *testing.T) {
	var got services.VerifyPaymentCommand
	called := false
	svc := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			called = true
			got = cmd
			order := sampleOrder()
			order.PaymentStatus = domain.PaymentStatusPaid
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}

	rec := doRequest(t, newPaymentRouter(svc), http.MethodPost, "/api/payments/verify-payment", map[string]string{
		"order_id":            "ord_01TEST",
		"provider_order_id":   "order_abc",
		"provider_payment_id": "pay_abc",
		"provider_signature":  "deadbeef",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, called)
	assert.Equal(t, services.VerifyPaymentCommand{
		OrderID:           "ord_01TEST",
		ProviderOrderID:   "order_abc",
		ProviderPaymentID: "pay_abc",
		Signature:         "deadbeef",
	}, got)
}

func TestVerifyPaymentSignatureMismatch(t *testing.T) {
	svc := &stubPaymentService{
		verifyFn: func(context.Context, services.VerifyPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrSignatureMismatch
		},
	}
	rec := doRequest(t, newPaymentRouter(svc), http.MethodPost, "/api/payments/verify-payment", map[string]string{
		"order_id":            "ord_01TEST",
		"provider_order_id":   "order_abc",
		"provider_payment_id": "pay_abc",
		"signature":           "bad",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "signature_mismatch", decodeBody(t, rec)["error"])
}

func TestCODConfirmationEnvelope(t *testing.T) {
	svc := &stubPaymentService{
		codFn: func(context.Context, string) (services.Order, error) {
			order := sampleOrder()
			order.PaymentMethod = domain.PaymentMethodCashOnDelivery
			order.PaymentStatus = domain.PaymentStatusCODConfirmed
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}

	rec := doRequest(t, newPaymentRouter(svc), http.MethodPost, "/api/payments/cod-confirmation?order_id=ord_01TEST", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "cod_confirmed", order["payment_status"])
}

func TestCODConfirmationCanRequireAdmin(t *testing.T) {
	svc := &stubPaymentService{
		codFn: func(context.Context, string) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	router := newPaymentRouter(svc, WithCODRequiresAdmin(true))

	rec := doRequest(t, router, http.MethodPost, "/api/payments/cod-confirmation?order_id=ord_01TEST", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/payments/cod-confirmation?order_id=ord_01TEST", nil, bearer("customer-token"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/payments/cod-confirmation?order_id=ord_01TEST", nil, bearer("admin-token"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUPIIntentResponse(t *testing.T) {
	svc := &stubPaymentService{
		upiFn: func(_ context.Context, id string) (services.UPIPaymentIntent, error) {
			return services.UPIPaymentIntent{
				OrderID:  id,
				URI:      "upi://pay?pa=shop@upi&am=250.00",
				Amount:   decimal.RequireFromString("250"),
				Currency: "INR",
			}, nil
		},
	}
	rec := doRequest(t, newPaymentRouter(svc), http.MethodGet, "/api/payments/upi-qr?order_id=ord_01TEST", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ord_01TEST", body["order_id"])
	assert.Equal(t, "250.00", body["amount"])
	assert.Equal(t, "upi://pay?pa=shop@upi&am=250.00", body["upi_uri"])
}

func TestUPIIntentAmountUsesCurrencyScale(t *testing.T) {
	svc := &stubPaymentService{
		upiFn: func(_ context.Context, id string) (services.UPIPaymentIntent, error) {
			return services.UPIPaymentIntent{
				OrderID:  id,
				URI:      "upi://pay?pa=shop@upi&am=1500",
				Amount:   decimal.RequireFromString("1500"),
				Currency: "JPY",
			}, nil
		},
	}
	rec := doRequest(t, newPaymentRouter(svc), http.MethodGet, "/api/payments/upi-qr?order_id=ord_01TEST", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1500", decodeBody(t, rec)["amount"])
}
