package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	manager, err := NewTokenManager("signing-secret", "storefront-api", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	issued, err := manager.Issue("asha@example.com", "Customer", "asha@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.ExpiresAt.IsZero() {
		t.Fatalf("expected expiry to be set")
	}

	identity, err := manager.VerifyToken(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if identity.Subject != "asha@example.com" {
		t.Fatalf("unexpected subject %q", identity.Subject)
	}
	if !identity.HasRole(RoleCustomer) || identity.HasRole(RoleAdmin) {
		t.Fatalf("unexpected roles %v", identity.Roles)
	}
}

func TestTokenManagerRejectsExpiredTokens(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	manager, err := NewTokenManager("signing-secret", "storefront-api", time.Hour, WithTokenClock(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	issued, err := manager.Issue("root", RoleAdmin, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := manager.VerifyToken(context.Background(), issued.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenManagerRejectsForeignTokens(t *testing.T) {
	manager, _ := NewTokenManager("signing-secret", "storefront-api", time.Hour)
	other, _ := NewTokenManager("another-secret", "storefront-api", time.Hour)
	wrongIssuer, _ := NewTokenManager("signing-secret", "someone-else", time.Hour)

	forged, _ := other.Issue("root", RoleAdmin, "")
	if _, err := manager.VerifyToken(context.Background(), forged.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid signature to be rejected, got %v", err)
	}

	foreign, _ := wrongIssuer.Issue("root", RoleAdmin, "")
	if _, err := manager.VerifyToken(context.Background(), foreign.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected issuer mismatch to be rejected, got %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "root", "role": "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := manager.VerifyToken(context.Background(), unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}
}

func TestNewTokenManagerValidatesInput(t *testing.T) {
	if _, err := NewTokenManager("  ", "iss", time.Hour); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
	if _, err := NewTokenManager("secret", "iss", 0); err == nil {
		t.Fatalf("expected zero ttl to be rejected")
	}
}

type verifierFunc func(context.Context, string) (*Identity, error)

func (f verifierFunc) VerifyToken(ctx context.Context, raw string) (*Identity, error) {
	return f(ctx, raw)
}

func TestChainVerifier(t *testing.T) {
	invalid := verifierFunc(func(context.Context, string) (*Identity, error) { return nil, ErrTokenInvalid })
	expired := verifierFunc(func(context.Context, string) (*Identity, error) { return nil, ErrTokenExpired })
	ok := verifierFunc(func(context.Context, string) (*Identity, error) {
		return &Identity{Subject: "asha@example.com", Roles: []string{RoleCustomer}}, nil
	})

	identity, err := ChainVerifier{invalid, ok}.VerifyToken(context.Background(), "tok")
	if err != nil || identity.Subject != "asha@example.com" {
		t.Fatalf("expected second verifier to succeed, got %v %v", identity, err)
	}

	if _, err := (ChainVerifier{invalid, expired}).VerifyToken(context.Background(), "tok"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expiry to take precedence, got %v", err)
	}

	if _, err := (ChainVerifier{}).VerifyToken(context.Background(), "tok"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected empty chain to reject, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse" {
		t.Fatalf("password stored in clear text")
	}
	if err := ComparePassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected password to match, got %v", err)
	}
	if err := ComparePassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}
