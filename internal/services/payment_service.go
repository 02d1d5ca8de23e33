package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/payments"
	"github.com/techmart/storefront-api/internal/repositories"
)

const (
	// PlaceholderPrefix marks provider references generated locally while the provider is unreachable.
	PlaceholderPrefix = "local_"

	defaultReconcileLimit = 50
	maxReconcileLimit     = 500

	providerEventSucceeded = "succeeded"
	providerEventFailed    = "failed"

	paymentsInstrumentation = "github.com/techmart/storefront-api/internal/services"
)

var (
	// ErrSignatureMismatch indicates the payment confirmation could not be authenticated.
	ErrSignatureMismatch = errors.New("payment: signature mismatch")
	// ErrPaymentNotConfigured indicates the requested payment channel is not configured.
	ErrPaymentNotConfigured = errors.New("payment: channel not configured")
)

// TransactionCreator opens provider transactions. payments.Manager satisfies it.
type TransactionCreator interface {
	CreateTransaction(ctx context.Context, pc payments.PaymentContext, req payments.TransactionRequest) payments.TransactionResult
	ClientKey(pc payments.PaymentContext) string
}

// PaymentSignatureVerifier authenticates client side payment confirmations.
type PaymentSignatureVerifier interface {
	Verify(providerOrderID, providerPaymentID, signature string) error
	Unsafe() bool
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders       repositories.OrderRepository
	Transactions TransactionCreator
	Verifier     PaymentSignatureVerifier
	UPIPayeeVPA  string
	UPIPayeeName string
	Meter        metric.Meter
	Clock        func() time.Time
	// PlaceholderGenerator returns the random part of a placeholder reference.
	PlaceholderGenerator func() string
	Events               OrderEventPublisher
	Logger               func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders         repositories.OrderRepository
	transactions   TransactionCreator
	verifier       PaymentSignatureVerifier
	upiPayeeVPA    string
	upiPayeeName   string
	clock          func() time.Time
	newPlaceholder func() string
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)

	verifications metric.Int64Counter
	fallbacks     metric.Int64Counter
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("payment service: transaction creator is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("payment service: signature verifier is required")
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(paymentsInstrumentation)
	}
	verifications, err := meter.Int64Counter("payments.verifications",
		metric.WithDescription("Count of payment verification attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("payment service: create verification counter: %w", err)
	}
	fallbacks, err := meter.Int64Counter("payments.provider_fallbacks",
		metric.WithDescription("Count of placeholder references issued because the provider was unavailable"))
	if err != nil {
		return nil, fmt.Errorf("payment service: create fallback counter: %w", err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	placeholder := deps.PlaceholderGenerator
	if placeholder == nil {
		placeholder = func() string { return uuid.NewString() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:       deps.Orders,
		transactions: deps.Transactions,
		verifier:     deps.Verifier,
		upiPayeeVPA:  strings.TrimSpace(deps.UPIPayeeVPA),
		upiPayeeName: strings.TrimSpace(deps.UPIPayeeName),
		clock: func() time.Time {
			return clock().UTC()
		},
		newPlaceholder: placeholder,
		events:         deps.Events,
		logger:         logger,
		verifications:  verifications,
		fallbacks:      fallbacks,
	}, nil
}

// IsPlaceholderReference reports whether a provider reference was generated locally.
func IsPlaceholderReference(ref string) bool {
	return strings.HasPrefix(ref, PlaceholderPrefix)
}

func (s *paymentService) InitiateTransaction(ctx context.Context, orderID string) (TransactionInitiation, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return TransactionInitiation{}, err
	}
	if order.PaymentStatus.Settled() || order.Status == domain.OrderStatusCancelled {
		return TransactionInitiation{}, fmt.Errorf("%w: order %s is %s/%s", ErrOrderInvalidState, order.ID, order.Status, order.PaymentStatus)
	}

	amount, err := domain.ToMinorUnits(order.TotalAmount, order.Currency)
	if err != nil {
		return TransactionInitiation{}, fmt.Errorf("payment: convert amount for order %s: %w", order.ID, err)
	}

	pc := payments.PaymentContext{Method: order.PaymentMethod, Currency: order.Currency}
	result := s.transactions.CreateTransaction(ctx, pc, payments.TransactionRequest{
		OrderID:        order.ID,
		Amount:         amount,
		Currency:       order.Currency,
		IdempotencyKey: fmt.Sprintf("%s:%d", order.ID, order.Version),
		Metadata:       map[string]string{"payment_method": string(order.PaymentMethod)},
	})

	initiation := TransactionInitiation{
		Amount:       amount,
		Currency:     order.Currency,
		ClientKey:    result.ClientKey,
		ClientSecret: result.ClientSecret,
	}
	if result.Created() {
		initiation.ProviderOrderID = result.Reference
	} else {
		initiation.ProviderOrderID = PlaceholderPrefix + s.newPlaceholder()
		initiation.Placeholder = true
		initiation.ClientKey = s.transactions.ClientKey(pc)
		fields := map[string]any{
			"orderId":   order.ID,
			"outcome":   result.Outcome.String(),
			"provider":  result.Provider,
			"reference": initiation.ProviderOrderID,
		}
		if result.Cause != nil {
			fields["error"] = result.Cause.Error()
		}
		s.logger(ctx, "payments.transaction.fallback", fields)
		s.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", result.Provider)))
	}

	next := order
	next.ProviderOrderID = initiation.ProviderOrderID
	if next.PaymentStatus == domain.PaymentStatusFailed {
		next.PaymentStatus = domain.PaymentStatusPending
	}
	next.UpdatedAt = s.clock()

	saved, err := s.orders.UpdateIfVersion(ctx, next, order.Version)
	if err != nil {
		return TransactionInitiation{}, mapOrderRepositoryError(err)
	}
	initiation.Order = saved
	return initiation, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	providerPaymentID := strings.TrimSpace(cmd.ProviderPaymentID)
	if providerOrderID == "" || providerPaymentID == "" {
		return Order{}, fmt.Errorf("%w: provider_order_id and provider_payment_id are required", ErrOrderInvalidInput)
	}

	if order.PaymentStatus == domain.PaymentStatusPaid {
		s.recordVerification(ctx, "already_paid")
		return order, nil
	}
	if order.PaymentStatus != domain.PaymentStatusPending || order.Status == domain.OrderStatusCancelled {
		s.recordVerification(ctx, "invalid_state")
		return Order{}, fmt.Errorf("%w: order %s is %s/%s", ErrOrderInvalidState, order.ID, order.Status, order.PaymentStatus)
	}

	if s.verifier.Unsafe() {
		s.logger(ctx, "payments.verification.unsafe", map[string]any{
			"orderId":         order.ID,
			"providerOrderId": providerOrderID,
		})
	}

	reason := ""
	if err := s.verifier.Verify(providerOrderID, providerPaymentID, cmd.Signature); err != nil {
		if !errors.Is(err, payments.ErrSignatureMismatch) {
			return Order{}, fmt.Errorf("payment: verify signature: %w", err)
		}
		reason = "signature"
	} else if bound := order.ProviderOrderID; bound != "" && !IsPlaceholderReference(bound) && bound != providerOrderID {
		reason = "provider_reference"
	}

	if reason != "" {
		s.recordVerification(ctx, "mismatch")
		s.logger(ctx, "payments.verification.failed", map[string]any{
			"orderId":         order.ID,
			"providerOrderId": providerOrderID,
			"reason":          reason,
		})
		if _, err := s.markFailed(ctx, order, reason); err != nil {
			s.logger(ctx, "payments.verification.persist.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
		return Order{}, fmt.Errorf("%w: order %s", ErrSignatureMismatch, order.ID)
	}

	saved, err := s.markPaid(ctx, order, providerOrderID, providerPaymentID, "verification")
	if err != nil {
		if errors.Is(err, ErrOrderConflict) {
			s.recordVerification(ctx, "conflict")
		}
		return Order{}, err
	}
	s.recordVerification(ctx, "verified")
	return saved, nil
}

func (s *paymentService) ConfirmCashOnDelivery(ctx context.Context, orderID string) (Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusCODConfirmed {
		return order, nil
	}
	if !domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentStatusCODConfirmed) || !codConfirmable(order.Status) {
		return Order{}, fmt.Errorf("%w: order %s is %s/%s", ErrOrderInvalidState, order.ID, order.Status, order.PaymentStatus)
	}

	now := s.clock()
	next := order
	next.PaymentStatus = domain.PaymentStatusCODConfirmed
	next.Status = domain.OrderStatusConfirmed
	next.UpdatedAt = now

	saved, err := s.orders.UpdateIfVersion(ctx, next, order.Version)
	if err != nil {
		if !isRepositoryConflict(err) {
			return Order{}, mapOrderRepositoryError(err)
		}
		latest, rerr := s.orders.FindByID(ctx, order.ID)
		if rerr != nil {
			return Order{}, mapOrderRepositoryError(rerr)
		}
		if latest.PaymentStatus == domain.PaymentStatusCODConfirmed {
			return latest, nil
		}
		return Order{}, fmt.Errorf("%w: order %s changed concurrently", ErrOrderConflict, order.ID)
	}

	s.logger(ctx, "payments.cod.confirmed", map[string]any{"orderId": saved.ID})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:                  orderEventCODConfirmed,
		OrderID:               saved.ID,
		PreviousStatus:        string(order.Status),
		CurrentStatus:         string(saved.Status),
		PreviousPaymentStatus: string(order.PaymentStatus),
		CurrentPaymentStatus:  string(saved.PaymentStatus),
		OccurredAt:            now,
	})
	return saved, nil
}

func codConfirmable(status domain.OrderStatus) bool {
	return status == domain.OrderStatusPlaced || status == domain.OrderStatusConfirmed
}

func (s *paymentService) ApplyProviderEvent(ctx context.Context, cmd ProviderEventCommand) (Order, error) {
	status := strings.ToLower(strings.TrimSpace(cmd.Status))
	if status != providerEventSucceeded && status != providerEventFailed {
		return Order{}, fmt.Errorf("%w: unsupported event status %q", ErrOrderInvalidInput, strings.TrimSpace(cmd.Status))
	}
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	if bound := order.ProviderOrderID; providerOrderID != "" && bound != "" && !IsPlaceholderReference(bound) && bound != providerOrderID {
		return Order{}, fmt.Errorf("%w: provider reference does not match order %s", ErrOrderInvalidInput, order.ID)
	}

	switch status {
	case providerEventSucceeded:
		if order.PaymentStatus == domain.PaymentStatusPaid {
			return order, nil
		}
		providerPaymentID := strings.TrimSpace(cmd.ProviderPaymentID)
		if providerPaymentID == "" {
			return Order{}, fmt.Errorf("%w: provider_payment_id is required", ErrOrderInvalidInput)
		}
		if !domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentStatusPaid) {
			return Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.ID, order.PaymentStatus)
		}
		if providerOrderID == "" {
			providerOrderID = order.ProviderOrderID
		}
		return s.markPaid(ctx, order, providerOrderID, providerPaymentID, "webhook")
	default:
		if !domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentStatusFailed) {
			s.logger(ctx, "payments.webhook.ignored", map[string]any{
				"orderId":       order.ID,
				"paymentStatus": string(order.PaymentStatus),
				"event":         status,
			})
			return order, nil
		}
		return s.markFailed(ctx, order, "provider_event")
	}
}

func (s *paymentService) ReconcilePlaceholders(ctx context.Context, limit int) (ReconciliationSummary, error) {
	switch {
	case limit <= 0:
		limit = defaultReconcileLimit
	case limit > maxReconcileLimit:
		limit = maxReconcileLimit
	}

	orders, err := s.orders.ListPendingPlaceholders(ctx, repositories.PlaceholderFilter{
		Method:          domain.PaymentMethodCardGateway,
		ReferencePrefix: PlaceholderPrefix,
		Limit:           limit,
	})
	if err != nil {
		return ReconciliationSummary{}, mapOrderRepositoryError(err)
	}

	summary := ReconciliationSummary{Scanned: len(orders)}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome := s.reconcileOne(ctx, order)
		switch outcome {
		case "reconciled":
			summary.Reconciled++
		case "pending":
			summary.StillPending++
		default:
			summary.Failed++
		}
	}

	s.logger(ctx, "payments.reconcile.completed", map[string]any{
		"scanned":      summary.Scanned,
		"reconciled":   summary.Reconciled,
		"stillPending": summary.StillPending,
		"failed":       summary.Failed,
	})
	return summary, nil
}

func (s *paymentService) reconcileOne(ctx context.Context, order Order) string {
	if order.PaymentStatus != domain.PaymentStatusPending || !IsPlaceholderReference(order.ProviderOrderID) {
		return "pending"
	}
	amount, err := domain.ToMinorUnits(order.TotalAmount, order.Currency)
	if err != nil {
		s.logger(ctx, "payments.reconcile.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return "failed"
	}
	result := s.transactions.CreateTransaction(ctx, payments.PaymentContext{Method: order.PaymentMethod, Currency: order.Currency}, payments.TransactionRequest{
		OrderID:        order.ID,
		Amount:         amount,
		Currency:       order.Currency,
		IdempotencyKey: fmt.Sprintf("%s:%d", order.ID, order.Version),
		Metadata:       map[string]string{"payment_method": string(order.PaymentMethod), "reconciled": "true"},
	})
	if !result.Created() {
		return "pending"
	}

	next := order
	next.ProviderOrderID = result.Reference
	next.UpdatedAt = s.clock()
	if _, err := s.orders.UpdateIfVersion(ctx, next, order.Version); err != nil {
		s.logger(ctx, "payments.reconcile.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return "failed"
	}
	return "reconciled"
}

func (s *paymentService) UPIIntent(ctx context.Context, orderID string) (UPIPaymentIntent, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return UPIPaymentIntent{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodUPIQR {
		return UPIPaymentIntent{}, fmt.Errorf("%w: order %s is not a upi order", ErrOrderInvalidState, order.ID)
	}
	if order.PaymentStatus != domain.PaymentStatusPending || order.Status == domain.OrderStatusCancelled {
		return UPIPaymentIntent{}, fmt.Errorf("%w: order %s is %s/%s", ErrOrderInvalidState, order.ID, order.Status, order.PaymentStatus)
	}

	uri, err := payments.UPIIntent{
		PayeeVPA:  s.upiPayeeVPA,
		PayeeName: s.upiPayeeName,
		Amount:    domain.FormatAmount(order.TotalAmount, order.Currency),
		Currency:  order.Currency,
		OrderID:   order.ID,
	}.URI()
	if err != nil {
		if errors.Is(err, payments.ErrUPINotConfigured) {
			return UPIPaymentIntent{}, fmt.Errorf("%w: %v", ErrPaymentNotConfigured, err)
		}
		return UPIPaymentIntent{}, err
	}
	return UPIPaymentIntent{
		OrderID:  order.ID,
		URI:      uri,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	}, nil
}

func (s *paymentService) load(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, ErrOrderIDRequired
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}

// markPaid records a successful payment. A concurrent writer that already marked the order
// paid makes the call succeed with the stored order.
func (s *paymentService) markPaid(ctx context.Context, order Order, providerOrderID, providerPaymentID, source string) (Order, error) {
	now := s.clock()
	next := order
	next.PaymentStatus = domain.PaymentStatusPaid
	if next.Status == domain.OrderStatusPlaced {
		next.Status = domain.OrderStatusConfirmed
	}
	next.ProviderPaymentID = providerPaymentID
	if next.ProviderOrderID == "" || IsPlaceholderReference(next.ProviderOrderID) {
		next.ProviderOrderID = providerOrderID
	}
	next.UpdatedAt = now

	saved, err := s.orders.UpdateIfVersion(ctx, next, order.Version)
	if err != nil {
		if !isRepositoryConflict(err) {
			return Order{}, mapOrderRepositoryError(err)
		}
		latest, rerr := s.orders.FindByID(ctx, order.ID)
		if rerr != nil {
			return Order{}, mapOrderRepositoryError(rerr)
		}
		if latest.PaymentStatus == domain.PaymentStatusPaid {
			return latest, nil
		}
		return Order{}, fmt.Errorf("%w: order %s changed concurrently", ErrOrderConflict, order.ID)
	}

	s.logger(ctx, "payments.payment.confirmed", map[string]any{
		"orderId":           saved.ID,
		"providerOrderId":   saved.ProviderOrderID,
		"providerPaymentId": saved.ProviderPaymentID,
		"source":            source,
	})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:                  orderEventPaid,
		OrderID:               saved.ID,
		PreviousStatus:        string(order.Status),
		CurrentStatus:         string(saved.Status),
		PreviousPaymentStatus: string(order.PaymentStatus),
		CurrentPaymentStatus:  string(saved.PaymentStatus),
		OccurredAt:            now,
		Metadata: map[string]any{
			"providerOrderId":   saved.ProviderOrderID,
			"providerPaymentId": saved.ProviderPaymentID,
			"source":            source,
		},
	})
	return saved, nil
}

// markFailed records a failed payment. The fulfilment status is left unchanged.
func (s *paymentService) markFailed(ctx context.Context, order Order, reason string) (Order, error) {
	now := s.clock()
	next := order
	next.PaymentStatus = domain.PaymentStatusFailed
	next.UpdatedAt = now

	saved, err := s.orders.UpdateIfVersion(ctx, next, order.Version)
	if err != nil {
		if !isRepositoryConflict(err) {
			return Order{}, mapOrderRepositoryError(err)
		}
		latest, rerr := s.orders.FindByID(ctx, order.ID)
		if rerr != nil {
			return Order{}, mapOrderRepositoryError(rerr)
		}
		if latest.PaymentStatus == domain.PaymentStatusPaid || latest.PaymentStatus == domain.PaymentStatusFailed {
			return latest, nil
		}
		return Order{}, fmt.Errorf("%w: order %s changed concurrently", ErrOrderConflict, order.ID)
	}

	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:                  orderEventPaymentFailed,
		OrderID:               saved.ID,
		PreviousStatus:        string(order.Status),
		CurrentStatus:         string(saved.Status),
		PreviousPaymentStatus: string(order.PaymentStatus),
		CurrentPaymentStatus:  string(saved.PaymentStatus),
		OccurredAt:            now,
		Metadata:              map[string]any{"reason": reason},
	})
	return saved, nil
}

func (s *paymentService) recordVerification(ctx context.Context, outcome string) {
	s.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
