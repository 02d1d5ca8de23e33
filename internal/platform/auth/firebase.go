package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/techmart/storefront-api/internal/platform/config"
)

const defaultVerifyTimeout = 5 * time.Second

// FirebaseTokenClient is the subset of the Admin SDK used for ID token checks.
type FirebaseTokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier accepts Firebase ID tokens as customer identities.
type FirebaseVerifier struct {
	client  FirebaseTokenClient
	timeout time.Duration
}

// NewFirebaseVerifier constructs a FirebaseVerifier backed by the Admin SDK.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return NewFirebaseVerifierWithClient(client), nil
}

// NewFirebaseVerifierWithClient wraps an existing token client.
func NewFirebaseVerifierWithClient(client FirebaseTokenClient) *FirebaseVerifier {
	return &FirebaseVerifier{client: client, timeout: defaultVerifyTimeout}
}

// VerifyToken implements TokenVerifier. Firebase users always receive the customer role.
func (v *FirebaseVerifier) VerifyToken(ctx context.Context, raw string) (*Identity, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	token, err := v.client.VerifyIDToken(ctx, raw)
	switch {
	case err == nil:
	case firebaseauth.IsIDTokenExpired(err):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	email, _ := token.Claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	subject := email
	if subject == "" {
		subject = token.UID
	}
	return &Identity{
		Subject:  subject,
		Email:    email,
		Roles:    []string{RoleCustomer},
		Provider: "firebase",
	}, nil
}
