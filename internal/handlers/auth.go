package handlers

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/techmart/storefront-api/internal/platform/httpx"
	"github.com/techmart/storefront-api/internal/services"
)

const maxAuthBodySize = 4 * 1024

type registerCustomerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type userPayload struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
}

type adminPayload struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

type sessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   string       `json:"expires_at"`
	User        *userPayload `json:"user,omitempty"`
}

// AuthHandlers serves registration and login for customers and administrators.
type AuthHandlers struct {
	identity services.IdentityService
}

// NewAuthHandlers constructs a new AuthHandlers instance.
func NewAuthHandlers(identity services.IdentityService) *AuthHandlers {
	return &AuthHandlers{identity: identity}
}

// Routes registers the public customer auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.registerCustomer)
	r.Post("/login", h.loginCustomer)
}

// AdminLoginRoutes registers the unauthenticated admin login endpoint.
func (h *AuthHandlers) AdminLoginRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.loginAdmin)
}

// AdminRoutes registers the admin-only account endpoints. Callers mount it behind the admin guard.
func (h *AuthHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.registerAdmin)
}

func (h *AuthHandlers) registerCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.identity == nil {
		serviceUnavailable(ctx, w, "identity")
		return
	}
	var req registerCustomerRequest
	if !decodeJSONBody(ctx, w, r, maxAuthBodySize, &req) {
		return
	}
	account, err := h.identity.RegisterCustomer(ctx, services.RegisterCustomerCommand{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, userPayload{Email: account.Email, Username: account.Username})
}

func (h *AuthHandlers) loginCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.identity == nil {
		serviceUnavailable(ctx, w, "identity")
		return
	}
	req, ok := h.decodeLogin(w, r)
	if !ok {
		return
	}
	session, err := h.identity.LoginCustomer(ctx, services.LoginCommand{
		Identifier: firstNonEmpty(req.Email, req.Username),
		Password:   req.Password,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := buildSessionResponse(session)
	resp.User = &userPayload{Email: session.Email, Username: session.Username}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AuthHandlers) loginAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.identity == nil {
		serviceUnavailable(ctx, w, "identity")
		return
	}
	req, ok := h.decodeLogin(w, r)
	if !ok {
		return
	}
	session, err := h.identity.LoginAdmin(ctx, services.LoginCommand{
		Identifier: req.Username,
		Password:   req.Password,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionResponse(session))
}

func (h *AuthHandlers) registerAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.identity == nil {
		serviceUnavailable(ctx, w, "identity")
		return
	}
	var req registerAdminRequest
	if !decodeJSONBody(ctx, w, r, maxAuthBodySize, &req) {
		return
	}
	account, err := h.identity.RegisterAdmin(ctx, services.RegisterAdminCommand{Username: req.Username, Password: req.Password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, adminPayload{
		ID:        account.ID,
		Username:  account.Username,
		CreatedAt: formatTime(account.CreatedAt),
	})
}

// decodeLogin accepts JSON bodies and the OAuth2 password form encoding used by older clients.
func (h *AuthHandlers) decodeLogin(w http.ResponseWriter, r *http.Request) (loginRequest, bool) {
	ctx := r.Context()
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodySize)
		if err := r.ParseForm(); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeBadRequest, "invalid form body", http.StatusBadRequest))
			return loginRequest{}, false
		}
		return loginRequest{
			Username: strings.TrimSpace(r.PostForm.Get("username")),
			Password: r.PostForm.Get("password"),
		}, true
	}

	var req loginRequest
	if !decodeJSONBody(ctx, w, r, maxAuthBodySize, &req) {
		return loginRequest{}, false
	}
	return req, true
}

func buildSessionResponse(session services.Session) sessionResponse {
	return sessionResponse{
		AccessToken: session.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   formatTime(session.ExpiresAt),
	}
}
