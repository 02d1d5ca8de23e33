package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/services"
)

type stubCustomerIdentity struct {
	services.IdentityService

	logins []services.LoginCommand
}

func (s *stubCustomerIdentity) RegisterCustomer(_ context.Context, cmd services.RegisterCustomerCommand) (services.CustomerAccount, error) {
	if cmd.Email == "taken@example.com" {
		return services.CustomerAccount{}, services.ErrIdentityConflict
	}
	if len(cmd.Password) < 8 {
		return services.CustomerAccount{}, services.ErrIdentityInvalidInput
	}
	return services.CustomerAccount{ID: "cus_1", Username: cmd.Username, Email: strings.ToLower(cmd.Email)}, nil
}

func (s *stubCustomerIdentity) LoginCustomer(_ context.Context, cmd services.LoginCommand) (services.Session, error) {
	s.logins = append(s.logins, cmd)
	if cmd.Password != "s3cret-pass" {
		return services.Session{}, services.ErrInvalidCredentials
	}
	return services.Session{
		AccessToken: "jwt",
		ExpiresAt:   time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		Subject:     "asha@example.com",
		Role:        auth.RoleCustomer,
		Email:       "asha@example.com",
		Username:    "asha",
	}, nil
}

func newAuthRouter(identity services.IdentityService) http.Handler {
	return NewRouter(WithPublicRoutes(NewAuthHandlers(identity).Routes))
}

func TestRegisterCustomer(t *testing.T) {
	router := newAuthRouter(&stubCustomerIdentity{})

	rec := doRequest(t, router, http.MethodPost, "/api/register", map[string]string{"username": "asha", "email": "Asha@Example.com", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "asha@example.com", body["email"])
	assert.NotContains(t, body, "password_hash")

	rec = doRequest(t, router, http.MethodPost, "/api/register", map[string]string{"username": "x", "email": "taken@example.com", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeBody(t, rec)["error"])

	rec = doRequest(t, router, http.MethodPost, "/api/register", map[string]string{"username": "x", "email": "x@example.com", "password": "short"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody(t, rec)["error"])
}

func TestLoginCustomerJSON(t *testing.T) {
	identity := &stubCustomerIdentity{}
	router := newAuthRouter(identity)

	rec := doRequest(t, router, http.MethodPost, "/api/login", map[string]string{"email": "asha@example.com", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "jwt", body["access_token"])
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, "2024-05-02T10:00:00Z", body["expires_at"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "asha", user["username"])

	rec = doRequest(t, router, http.MethodPost, "/api/login", map[string]string{"username": "asha", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Len(t, identity.logins, 2)
	assert.Equal(t, "asha@example.com", identity.logins[0].Identifier)
	assert.Equal(t, "asha", identity.logins[1].Identifier)
}

func TestLoginCustomerForm(t *testing.T) {
	identity := &stubCustomerIdentity{}
	router := newAuthRouter(identity)

	form := url.Values{"username": {"asha@example.com"}, "password": {"s3cret-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, identity.logins, 1)
	assert.Equal(t, "asha@example.com", identity.logins[0].Identifier)
}
