package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/techmart/storefront-api/internal/services"
)

type paymentWebhookRequest struct {
	OrderID           string `json:"order_id"`
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Status            string `json:"status"`
}

// PaymentWebhookHandlers applies server-to-server payment notifications. The group
// is expected to be guarded by the HMAC validator.
type PaymentWebhookHandlers struct {
	payments services.PaymentService
}

// NewPaymentWebhookHandlers constructs a new PaymentWebhookHandlers instance.
func NewPaymentWebhookHandlers(payments services.PaymentService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{payments: payments}
}

// Routes registers the /webhooks endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handlePaymentEvent)
}

func (h *PaymentWebhookHandlers) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	var req paymentWebhookRequest
	if !decodeJSONBody(ctx, w, r, maxPaymentBodySize, &req) {
		return
	}
	order, err := h.payments.ApplyProviderEvent(ctx, services.ProviderEventCommand{
		OrderID:           req.OrderID,
		ProviderOrderID:   req.ProviderOrderID,
		ProviderPaymentID: req.ProviderPaymentID,
		Status:            req.Status,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
