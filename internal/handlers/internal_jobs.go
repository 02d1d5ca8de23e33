package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/techmart/storefront-api/internal/platform/httpx"
	"github.com/techmart/storefront-api/internal/services"
)

type reconcileResponse struct {
	Scanned      int `json:"scanned"`
	Reconciled   int `json:"reconciled"`
	StillPending int `json:"still_pending"`
	Failed       int `json:"failed"`
}

// InternalJobHandlers exposes maintenance jobs invoked by Cloud Scheduler. The group
// is expected to be guarded by the OIDC validator.
type InternalJobHandlers struct {
	payments services.PaymentService
}

// NewInternalJobHandlers constructs a new InternalJobHandlers instance.
func NewInternalJobHandlers(payments services.PaymentService) *InternalJobHandlers {
	return &InternalJobHandlers{payments: payments}
}

// Routes registers the /internal endpoints.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/reconcile", h.reconcilePayments)
}

func (h *InternalJobHandlers) reconcilePayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidationFailed, "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	summary, err := h.payments.ReconcilePlaceholders(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		Scanned:      summary.Scanned,
		Reconciled:   summary.Reconciled,
		StillPending: summary.StillPending,
		Failed:       summary.Failed,
	})
}
