package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/platform/pagination"
	"github.com/techmart/storefront-api/internal/platform/textutil"
	"github.com/techmart/storefront-api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	orderEventPaid          = "order.paid"
	orderEventPaymentFailed = "order.payment_failed"
	orderEventCODConfirmed  = "order.cod_confirmed"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderIDRequired indicates the order identifier was omitted.
	ErrOrderIDRequired = errors.New("order: order id is required")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the order cannot accept the operation in its current state.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderInvalidTransition indicates a disallowed fulfilment status change.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type                  string
	OrderID               string
	PreviousStatus        string
	CurrentStatus         string
	PreviousPaymentStatus string
	CurrentPaymentStatus  string
	ActorID               string
	OccurredAt            time.Time
	Metadata              map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	currency string
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("order service: currency is required")
	}
	if _, err := domain.CurrencyScale(currency); err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	name := textutil.PlainText(cmd.CustomerName)
	if name == "" {
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	email := strings.TrimSpace(cmd.CustomerEmail)
	if email == "" {
		return Order{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return Order{}, fmt.Errorf("%w: customer email is invalid", ErrOrderInvalidInput)
	}
	phone := textutil.PlainText(cmd.CustomerPhone)
	if phone == "" {
		return Order{}, fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	}
	address := textutil.PlainText(cmd.CustomerAddress)
	if address == "" {
		return Order{}, fmt.Errorf("%w: customer address is required", ErrOrderInvalidInput)
	}
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, strings.TrimSpace(cmd.PaymentMethod))
	}
	items, err := buildLineItems(cmd.Items)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	order := Order{
		ID:              orderIDPrefix + s.newID(),
		CustomerName:    name,
		CustomerEmail:   email,
		CustomerPhone:   phone,
		CustomerAddress: address,
		CustomerRef:     strings.TrimSpace(cmd.CustomerRef),
		Items:           items,
		TotalAmount:     domain.LineItemsTotal(items),
		Currency:        s.currency,
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPlaced,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId": order.ID,
		"method":  string(order.PaymentMethod),
		"total":   domain.FormatAmount(order.TotalAmount, order.Currency),
	})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:                 orderEventCreated,
		OrderID:              order.ID,
		CurrentStatus:        string(order.Status),
		CurrentPaymentStatus: string(order.PaymentStatus),
		ActorID:              order.CustomerRef,
		OccurredAt:           now,
		Metadata: map[string]any{
			"paymentMethod": string(order.PaymentMethod),
			"totalAmount":   order.TotalAmount.String(),
			"currency":      order.Currency,
		},
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
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

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	repoFilter := repositories.OrderListFilter{Pagination: filter.Pagination}
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		repoFilter.Status = status
	}
	if raw := strings.TrimSpace(filter.PaymentStatus); raw != "" {
		status, ok := domain.ParsePaymentStatus(raw)
		if !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, raw)
		}
		repoFilter.PaymentStatus = status
	}
	return s.list(ctx, repoFilter)
}

func (s *orderService) ListCustomerOrders(ctx context.Context, customerRef string, pager Pagination) (domain.CursorPage[Order], error) {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: customer reference is required", ErrOrderInvalidInput)
	}
	return s.list(ctx, repositories.OrderListFilter{CustomerRef: customerRef, Pagination: pager})
}

func (s *orderService) list(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error) {
	filter.Pagination.PageSize = pagination.ClampPageSize(filter.Pagination.PageSize)
	if _, err := pagination.DecodeToken(filter.Pagination.PageToken); err != nil {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderIDRequired
	}
	target, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, strings.TrimSpace(cmd.Status))
	}

	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if current.Status == target {
		return current, nil
	}
	if !domain.CanTransitionOrder(current.Status, target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, current.Status, target)
	}

	now := s.clock()
	next := current
	next.Status = target
	next.UpdatedAt = now

	saved, err := s.orders.UpdateIfVersion(ctx, next, current.Version)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": saved.ID,
		"from":    string(current.Status),
		"to":      string(saved.Status),
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:                 orderEventStatusChanged,
		OrderID:              saved.ID,
		PreviousStatus:       string(current.Status),
		CurrentStatus:        string(saved.Status),
		CurrentPaymentStatus: string(saved.PaymentStatus),
		ActorID:              strings.TrimSpace(cmd.ActorID),
		OccurredAt:           now,
	})
	return saved, nil
}

func buildLineItems(inputs []LineItemInput) ([]LineItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	items := make([]LineItem, 0, len(inputs))
	for i, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: items[%d].product_id is required", ErrOrderInvalidInput, i)
		}
		if input.Quantity < 1 {
			return nil, fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrOrderInvalidInput, i)
		}
		if input.Price.IsNegative() {
			return nil, fmt.Errorf("%w: items[%d].price must not be negative", ErrOrderInvalidInput, i)
		}
		items = append(items, LineItem{
			ProductRef: productID,
			Name:       textutil.PlainText(input.Name),
			Quantity:   input.Quantity,
			UnitPrice:  input.Price,
		})
	}
	return items, nil
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func publishOrderEvent(ctx context.Context, events OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}
