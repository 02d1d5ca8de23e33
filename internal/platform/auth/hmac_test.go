package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordingMetrics struct {
	mu      sync.Mutex
	reasons []string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, _ string, _ bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append(m.reasons, reason)
}

func (m *recordingMetrics) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reasons) == 0 {
		return ""
	}
	return m.reasons[len(m.reasons)-1]
}

func signedWebhookRequest(secret string, now time.Time, nonce string, body []byte) *http.Request {
	const path = "/api/webhooks/payments"
	timestamp := now.UTC().Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(defaultSignatureHeader, SignRequest(secret, http.MethodPost, path, body, timestamp, nonce))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, nonce)
	return req
}

func TestRequireHMAC(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	body := []byte(`{"order_id":"ord_1","status":"succeeded"}`)

	newValidator := func(metrics MetricsRecorder) *HMACValidator {
		return NewHMACValidator(StaticSecrets{"payments": "webhook-secret"}, NewInMemoryNonceStore(),
			WithHMACClock(func() time.Time { return now }),
			WithHMACMetrics(metrics),
		)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		if buf.String() != string(body) {
			t.Fatalf("expected body to be restored, got %q", buf.String())
		}
		w.WriteHeader(http.StatusAccepted)
	})

	t.Run("valid signature", func(t *testing.T) {
		metrics := &recordingMetrics{}
		rr := httptest.NewRecorder()
		newValidator(metrics).RequireHMAC("payments")(ok).ServeHTTP(rr, signedWebhookRequest("webhook-secret", now, "n-1", body))
		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
		}
		if metrics.last() != "ok" {
			t.Fatalf("expected ok metric, got %q", metrics.last())
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		metrics := &recordingMetrics{}
		rr := httptest.NewRecorder()
		newValidator(metrics).RequireHMAC("payments")(ok).ServeHTTP(rr, signedWebhookRequest("other", now, "n-2", body))
		if rr.Code != http.StatusUnauthorized || metrics.last() != "signature_mismatch" {
			t.Fatalf("expected signature mismatch, got %d %q", rr.Code, metrics.last())
		}
	})

	t.Run("clock skew", func(t *testing.T) {
		metrics := &recordingMetrics{}
		rr := httptest.NewRecorder()
		req := signedWebhookRequest("webhook-secret", now.Add(-10*time.Minute), "n-3", body)
		newValidator(metrics).RequireHMAC("payments")(ok).ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized || metrics.last() != "timestamp_skew" {
			t.Fatalf("expected skew rejection, got %d %q", rr.Code, metrics.last())
		}
	})

	t.Run("replayed nonce", func(t *testing.T) {
		metrics := &recordingMetrics{}
		validator := newValidator(metrics)
		first := httptest.NewRecorder()
		validator.RequireHMAC("payments")(ok).ServeHTTP(first, signedWebhookRequest("webhook-secret", now, "n-4", body))
		second := httptest.NewRecorder()
		validator.RequireHMAC("payments")(ok).ServeHTTP(second, signedWebhookRequest("webhook-secret", now, "n-4", body))
		if first.Code != http.StatusAccepted || second.Code != http.StatusUnauthorized {
			t.Fatalf("expected replay rejection, got %d then %d", first.Code, second.Code)
		}
		if metrics.last() != "nonce_replay" {
			t.Fatalf("expected nonce_replay metric, got %q", metrics.last())
		}
	})

	t.Run("missing headers", func(t *testing.T) {
		metrics := &recordingMetrics{}
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", bytes.NewReader(body))
		newValidator(metrics).RequireHMAC("payments")(ok).ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized || metrics.last() != "headers_missing" {
			t.Fatalf("expected missing headers rejection, got %d %q", rr.Code, metrics.last())
		}
	})

	t.Run("unknown secret", func(t *testing.T) {
		metrics := &recordingMetrics{}
		rr := httptest.NewRecorder()
		newValidator(metrics).RequireHMAC("refunds")(ok).ServeHTTP(rr, signedWebhookRequest("webhook-secret", now, "n-5", body))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
	})
}

func TestInMemoryNonceStoreExpires(t *testing.T) {
	store := NewInMemoryNonceStore()
	current := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return current }

	stored, err := store.UseNonce(context.Background(), "payments", "abc", current.Add(time.Minute))
	if err != nil || !stored {
		t.Fatalf("expected first use to store, got %v %v", stored, err)
	}
	if stored, _ := store.UseNonce(context.Background(), "payments", "abc", current.Add(time.Minute)); stored {
		t.Fatalf("expected replay to be rejected")
	}

	current = current.Add(2 * time.Minute)
	if stored, _ := store.UseNonce(context.Background(), "payments", "abc", current.Add(time.Minute)); !stored {
		t.Fatalf("expected nonce to be reusable after expiry")
	}
}
