package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/platform/httpx"
	"github.com/techmart/storefront-api/internal/services"
)

// MeHandlers serves endpoints scoped to the authenticated customer.
type MeHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewMeHandlers constructs a new MeHandlers instance.
func NewMeHandlers(authn *auth.Authenticator, orders services.OrderService) *MeHandlers {
	return &MeHandlers{authn: authn, orders: orders}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleCustomer))
	}
	r.Get("/orders", h.listOrders)
}

func (h *MeHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.Subject) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthorized, "authentication required", http.StatusUnauthorized))
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.orders.ListCustomerOrders(ctx, strings.TrimSpace(identity.Subject), pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}
