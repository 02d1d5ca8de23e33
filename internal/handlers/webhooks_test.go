package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/services"
)

func TestPaymentWebhookRequiresValidSignature(t *testing.T) {
	var got services.ProviderEventCommand
	svc := &stubPaymentService{
		eventFn: func(_ context.Context, cmd services.ProviderEventCommand) (services.Order, error) {
			got = cmd
			order := sampleOrder()
			order.PaymentStatus = domain.PaymentStatusPaid
			return order, nil
		},
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	validator := auth.NewHMACValidator(
		auth.StaticSecrets{"payments": "webhook-secret"},
		auth.NewInMemoryNonceStore(),
		auth.WithHMACClock(func() time.Time { return now }),
	)
	router := NewRouter(
		WithWebhookRoutes(NewPaymentWebhookHandlers(svc).Routes),
		WithWebhookMiddlewares(validator.RequireHMAC("payments")),
	)

	body := []byte(`{"order_id":"ord_01TEST","provider_order_id":"pi_1","provider_payment_id":"ch_1","status":"succeeded"}`)
	send := func(signature, nonce string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", signature)
		req.Header.Set("X-Signature-Timestamp", strconv.FormatInt(now.Unix(), 10))
		req.Header.Set("X-Signature-Nonce", nonce)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := send("bogus", "n-1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts := strconv.FormatInt(now.Unix(), 10)
	signature := auth.SignRequest("webhook-secret", http.MethodPost, "/api/webhooks/payments", body, ts, "n-2")
	rec = send(signature, "n-2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "succeeded", got.Status)
	assert.Equal(t, "pi_1", got.ProviderOrderID)

	rec = send(signature, "n-2")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "replayed nonce must be rejected")
}

func TestInternalReconcile(t *testing.T) {
	var gotLimit int
	svc := &stubPaymentService{
		reconcileFn: func(_ context.Context, limit int) (services.ReconciliationSummary, error) {
			gotLimit = limit
			return services.ReconciliationSummary{Scanned: 3, Reconciled: 1, StillPending: 1, Failed: 1}, nil
		},
	}
	router := NewRouter(WithInternalRoutes(NewInternalJobHandlers(svc).Routes))

	rec := doRequest(t, router, http.MethodPost, "/api/internal/payments/reconcile?limit=25", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, gotLimit)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["scanned"])
	assert.Equal(t, float64(1), body["still_pending"])

	rec = doRequest(t, router, http.MethodPost, "/api/internal/payments/reconcile?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
