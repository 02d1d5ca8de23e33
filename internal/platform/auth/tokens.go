package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the presented bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the presented bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier turns a raw bearer token into an Identity.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*Identity, error)
}

// IssuedToken is a signed session token and its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises TokenManager.
type TokenOption func(*TokenManager)

// WithTokenClock overrides the clock used for iat/exp.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenManager constructs a TokenManager. The secret must not be empty.
func NewTokenManager(secret, issuer string, ttl time.Duration, opts ...TokenOption) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	m := &TokenManager{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Issue signs a token for the subject with a single role.
func (m *TokenManager) Issue(subject, role, email string) (IssuedToken, error) {
	subject = strings.TrimSpace(subject)
	role = normaliseRole(role)
	if subject == "" || role == "" {
		return IssuedToken{}, errors.New("auth: subject and role are required")
	}

	issuedAt := m.now().UTC()
	expiresAt := issuedAt.Add(m.ttl)
	claims := sessionClaims{
		Role:  role,
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// VerifyToken validates signature, expiry and issuer.
func (m *TokenManager) VerifyToken(_ context.Context, raw string) (*Identity, error) {
	claims := &sessionClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if m.issuer != "" && !claims.VerifyIssuer(m.issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: missing subject or role", ErrTokenInvalid)
	}

	return &Identity{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Roles:    []string{normaliseRole(claims.Role)},
		Provider: "session",
	}, nil
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []TokenVerifier

// VerifyToken implements TokenVerifier. Expiry errors take precedence over generic failures.
func (c ChainVerifier) VerifyToken(ctx context.Context, raw string) (*Identity, error) {
	var firstErr error
	for _, verifier := range c {
		if verifier == nil {
			continue
		}
		identity, err := verifier.VerifyToken(ctx, raw)
		if err == nil {
			return identity, nil
		}
		if errors.Is(err, ErrTokenExpired) {
			firstErr = err
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ErrTokenInvalid
	}
	return nil, firstErr
}
