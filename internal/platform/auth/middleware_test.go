package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *TokenManager) {
	t.Helper()
	manager, err := NewTokenManager("middleware-secret", "storefront-api", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return NewAuthenticator(manager), manager
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireAuth(t *testing.T) {
	authn, manager := newTestAuthenticator(t)
	customer, _ := manager.Issue("asha@example.com", RoleCustomer, "asha@example.com")
	admin, _ := manager.Issue("root", RoleAdmin, "")

	expiredManager, _ := NewTokenManager("middleware-secret", "storefront-api", time.Minute,
		WithTokenClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	expired, _ := expiredManager.Issue("root", RoleAdmin, "")

	cases := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{name: "missing header", header: "", wantCode: http.StatusUnauthorized, wantErr: "unauthorized"},
		{name: "malformed header", header: "Token abc", wantCode: http.StatusUnauthorized, wantErr: "unauthorized"},
		{name: "garbage token", header: "Bearer not-a-jwt", wantCode: http.StatusUnauthorized, wantErr: "unauthorized"},
		{name: "expired token", header: "Bearer " + expired.Token, wantCode: http.StatusUnauthorized, wantErr: "token_expired"},
		{name: "wrong role", header: "Bearer " + customer.Token, wantCode: http.StatusForbidden, wantErr: "forbidden"},
		{name: "admin", header: "bearer " + admin.Token, wantCode: http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := IdentityFromContext(r.Context())
				if !ok || identity.Subject != "root" {
					t.Fatalf("expected admin identity in context, got %+v", identity)
				}
				w.WriteHeader(http.StatusNoContent)
			})).ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, rr.Code)
			}
			if tc.wantErr != "" {
				if got := decodeErrorCode(t, rr); got != tc.wantErr {
					t.Fatalf("expected error %s, got %s", tc.wantErr, got)
				}
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	authn, manager := newTestAuthenticator(t)
	customer, _ := manager.Issue("asha@example.com", RoleCustomer, "asha@example.com")

	var seen *Identity
	handler := authn.OptionalAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated || seen != nil {
		t.Fatalf("expected anonymous pass-through, got %d %+v", rr.Code, seen)
	}

	req = httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+customer.Token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated || seen == nil || seen.Subject != "asha@example.com" {
		t.Fatalf("expected identity to be attached, got %d %+v", rr.Code, seen)
	}

	seen = nil
	req = httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Authorization", "Bearer tampered")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized || seen != nil {
		t.Fatalf("expected invalid token to be rejected, got %d", rr.Code)
	}
}

func TestIdentityFromContextMissing(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity")
	}
	var nilIdentity *Identity
	if nilIdentity.HasRole(RoleAdmin) {
		t.Fatalf("nil identity must not have roles")
	}
}
