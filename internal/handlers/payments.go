package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/services"
)

const maxPaymentBodySize = 8 * 1024

// verifyPaymentRequest accepts the provider neutral field names and the legacy razorpay_* spellings.
type verifyPaymentRequest struct {
	OrderID           string `json:"order_id"`
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	ProviderSignature string `json:"provider_signature"`
	Signature         string `json:"signature"`

	LegacyOrderID   string `json:"razorpay_order_id"`
	LegacyPaymentID string `json:"razorpay_payment_id"`
	LegacySignature string `json:"razorpay_signature"`
}

func (r verifyPaymentRequest) command(queryOrderID string) services.VerifyPaymentCommand {
	return services.VerifyPaymentCommand{
		OrderID:           firstNonEmpty(r.OrderID, queryOrderID),
		ProviderOrderID:   firstNonEmpty(r.ProviderOrderID, r.LegacyOrderID),
		ProviderPaymentID: firstNonEmpty(r.ProviderPaymentID, r.LegacyPaymentID),
		Signature:         firstNonEmpty(r.ProviderSignature, r.Signature, r.LegacySignature),
	}
}

type transactionResponse struct {
	OrderID         string `json:"order_id"`
	ProviderOrderID string `json:"provider_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Key             string `json:"key"`
	ClientSecret    string `json:"client_secret,omitempty"`
	Placeholder     bool   `json:"placeholder"`
}

type codConfirmationResponse struct {
	Status string       `json:"status"`
	Order  orderPayload `json:"order"`
}

type upiIntentResponse struct {
	OrderID  string `json:"order_id"`
	UPIURI   string `json:"upi_uri"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentHandlers exposes the customer facing payment endpoints.
type PaymentHandlers struct {
	authn            *auth.Authenticator
	payments         services.PaymentService
	idempotency      func(http.Handler) http.Handler
	codRequiresAdmin bool
}

// PaymentHandlersOption customises PaymentHandlers.
type PaymentHandlersOption func(*PaymentHandlers)

// WithPaymentIdempotency applies the idempotency middleware to mutating payment routes.
func WithPaymentIdempotency(mw func(http.Handler) http.Handler) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.idempotency = mw
	}
}

// WithCODRequiresAdmin restricts cash-on-delivery confirmation to administrators.
func WithCODRequiresAdmin(required bool) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.codRequiresAdmin = required
	}
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentHandlersOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, payments: payments}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	var mutating []func(http.Handler) http.Handler
	if h.idempotency != nil {
		mutating = append(mutating, h.idempotency)
	}
	r.With(mutating...).Post("/create-provider-order", h.createProviderOrder)
	r.With(mutating...).Post("/create-razorpay-order", h.createProviderOrder)
	r.With(mutating...).Post("/verify-payment", h.verifyPayment)

	cod := mutating
	if h.codRequiresAdmin && h.authn != nil {
		cod = append([]func(http.Handler) http.Handler{h.authn.RequireAuth(auth.RoleAdmin)}, mutating...)
	}
	r.With(cod...).Post("/cod-confirmation", h.confirmCOD)
	r.Get("/upi-qr", h.upiIntent)
}

func (h *PaymentHandlers) createProviderOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	result, err := h.payments.InitiateTransaction(ctx, strings.TrimSpace(r.URL.Query().Get("order_id")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, transactionResponse{
		OrderID:         result.Order.ID,
		ProviderOrderID: result.ProviderOrderID,
		Amount:          result.Amount,
		Currency:        result.Currency,
		Key:             result.ClientKey,
		ClientSecret:    result.ClientSecret,
		Placeholder:     result.Placeholder,
	})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	var req verifyPaymentRequest
	if !decodeJSONBody(ctx, w, r, maxPaymentBodySize, &req) {
		return
	}
	order, err := h.payments.VerifyPayment(ctx, req.command(strings.TrimSpace(r.URL.Query().Get("order_id"))))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *PaymentHandlers) confirmCOD(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	order, err := h.payments.ConfirmCashOnDelivery(ctx, strings.TrimSpace(r.URL.Query().Get("order_id")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, codConfirmationResponse{Status: "success", Order: buildOrderPayload(order)})
}

func (h *PaymentHandlers) upiIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	intent, err := h.payments.UPIIntent(ctx, strings.TrimSpace(r.URL.Query().Get("order_id")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, upiIntentResponse{
		OrderID:  intent.OrderID,
		UPIURI:   intent.URI,
		Amount:   domain.FormatAmount(intent.Amount, intent.Currency),
		Currency: intent.Currency,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
