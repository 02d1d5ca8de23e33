package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedTime = time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC)

func newHandler(store Store, calls *int, status int) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"ord_1"}`))
	})
	return Middleware(store, WithClock(func() time.Time { return fixedTime }))(next)
}

func post(handler http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusCreated)

	post(handler, "", `{"a":1}`)
	post(handler, "", `{"a":1}`)

	if calls != 2 {
		t.Fatalf("expected both requests to reach handler, got %d", calls)
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusCreated)

	first := post(handler, "order-1", `{"a":1}`)
	second := post(handler, "order-1", `{"a":1}`)

	if calls != 1 {
		t.Fatalf("expected single handler call, got %d", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay header")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies, got %q and %q", first.Body.String(), second.Body.String())
	}
}

func TestMiddlewareRejectsDifferentBodyForSameKey(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusCreated)

	post(handler, "order-1", `{"a":1}`)
	rr := post(handler, "order-1", `{"a":2}`)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "conflict" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
	if calls != 1 {
		t.Fatalf("handler must not run for mismatched body, got %d calls", calls)
	}
}

func TestMiddlewareDoesNotCacheServerErrors(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusInternalServerError)

	post(handler, "order-1", `{"a":1}`)
	post(handler, "order-1", `{"a":1}`)

	if calls != 2 {
		t.Fatalf("expected retry after server error, got %d calls", calls)
	}
}

func TestMiddlewareRejectsOversizedBody(t *testing.T) {
	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	handler := Middleware(NewMemoryStore(), WithMaxBodyBytes(16), WithClock(func() time.Time { return fixedTime }))(next)

	rr := post(handler, "order-1", `{"note":"this body is well past sixteen bytes"}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "payload_too_large" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
	if calls != 0 {
		t.Fatalf("handler must not run for oversized body, got %d calls", calls)
	}

	if rr := post(handler, "order-1", `{"a":1}`); rr.Code != http.StatusCreated {
		t.Fatalf("expected key to stay usable after rejection, got %d", rr.Code)
	}
}

func TestMemoryStoreExpiredRecordIsReservedAgain(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "k", "fp1", fixedTime, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.SaveResponse(ctx, "k", "fp1", Response{Status: http.StatusOK}, fixedTime, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := store.Reserve(ctx, "k", "fp2", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected new reservation after expiry, got %v", res.State)
	}
}
