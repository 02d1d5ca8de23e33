package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &oidcFixture{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "scheduler-key", Algorithm: "RS256", Use: "sig"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *oidcFixture) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "scheduler-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCacheCachesKeys(t *testing.T) {
	f := newOIDCFixture(t)
	cache := NewJWKSCache(f.server.URL, WithJWKSClock(func() time.Time { return time.Unix(1_000_000, 0) }))

	for i := 0; i < 3; i++ {
		key, err := cache.Key(context.Background(), "scheduler-key")
		if err != nil {
			t.Fatalf("Key: %v", err)
		}
		if _, ok := key.(*rsa.PublicKey); !ok {
			t.Fatalf("expected *rsa.PublicKey, got %T", key)
		}
	}
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected a single JWKS fetch, got %d", got)
	}
}

func TestRequireOIDC(t *testing.T) {
	f := newOIDCFixture(t)
	validator := NewOIDCValidator(NewJWKSCache(f.server.URL))
	const audience = "https://storefront.example.com/internal"
	issuers := []string{"https://accounts.google.com"}

	valid := jwt.MapClaims{
		"iss":   "https://accounts.google.com",
		"aud":   audience,
		"sub":   "1234",
		"email": "scheduler@techmart.iam.gserviceaccount.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	clone := func(overrides jwt.MapClaims) jwt.MapClaims {
		out := jwt.MapClaims{}
		for k, v := range valid {
			out[k] = v
		}
		for k, v := range overrides {
			out[k] = v
		}
		return out
	}

	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   int
	}{
		{name: "valid", claims: valid, want: http.StatusNoContent},
		{name: "audience mismatch", claims: clone(jwt.MapClaims{"aud": "https://elsewhere"}), want: http.StatusUnauthorized},
		{name: "issuer mismatch", claims: clone(jwt.MapClaims{"iss": "https://evil.example.com"}), want: http.StatusUnauthorized},
		{name: "expired", claims: clone(jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}), want: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", nil)
			req.Header.Set("Authorization", "Bearer "+f.token(t, tc.claims))
			rr := httptest.NewRecorder()
			validator.RequireOIDC(audience, issuers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Email == "" {
					t.Fatalf("expected service identity")
				}
				w.WriteHeader(http.StatusNoContent)
			})).ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRequireOIDCJWKSUnavailable(t *testing.T) {
	f := newOIDCFixture(t)
	token := f.token(t, jwt.MapClaims{"aud": "aud", "iss": "https://accounts.google.com", "exp": time.Now().Add(time.Hour).Unix()})

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	validator := NewOIDCValidator(NewJWKSCache(down.URL))
	req := httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	validator.RequireOIDC("aud", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
