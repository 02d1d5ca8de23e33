package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/repositories"
)

type stubRepoError struct {
	notFound bool
	conflict bool
}

func (e stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "stub: not found"
	case e.conflict:
		return "stub: conflict"
	default:
		return "stub: unavailable"
	}
}

func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return !e.notFound && !e.conflict }

var (
	errStubNotFound = stubRepoError{notFound: true}
	errStubConflict = stubRepoError{conflict: true}
)

type stubOrderRepo struct {
	insertFn       func(context.Context, domain.Order) error
	findFn         func(context.Context, string) (domain.Order, error)
	updateFn       func(context.Context, domain.Order, int64) (domain.Order, error)
	listFn         func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	placeholdersFn func(context.Context, repositories.PlaceholderFilter) ([]domain.Order, error)

	mu      sync.Mutex
	orders  map[string]domain.Order
	updates int
}

// newMemoryOrderRepo backs the stub with a map enforcing version checks like the Firestore repository.
func newMemoryOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	repo.insertFn = func(_ context.Context, order domain.Order) error {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		if _, exists := repo.orders[order.ID]; exists {
			return errStubConflict
		}
		repo.orders[order.ID] = order
		return nil
	}
	repo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		order, ok := repo.orders[id]
		if !ok {
			return domain.Order{}, errStubNotFound
		}
		return order, nil
	}
	repo.updateFn = func(_ context.Context, order domain.Order, expected int64) (domain.Order, error) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		current, ok := repo.orders[order.ID]
		if !ok {
			return domain.Order{}, errStubNotFound
		}
		if current.Version != expected {
			return domain.Order{}, errStubConflict
		}
		order.Version = expected + 1
		repo.orders[order.ID] = order
		return order, nil
	}
	repo.placeholdersFn = func(_ context.Context, filter repositories.PlaceholderFilter) ([]domain.Order, error) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		var out []domain.Order
		for _, order := range repo.orders {
			if order.PaymentStatus == domain.PaymentStatusPending &&
				order.PaymentMethod == filter.Method &&
				strings.HasPrefix(order.ProviderOrderID, filter.ReferencePrefix) {
				out = append(out, order)
			}
		}
		return out, nil
	}
	return repo
}

func (s *stubOrderRepo) stored(id string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) UpdateIfVersion(ctx context.Context, order domain.Order, expected int64) (domain.Order, error) {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	if s.updateFn != nil {
		return s.updateFn(ctx, order, expected)
	}
	return order, nil
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListPendingPlaceholders(ctx context.Context, filter repositories.PlaceholderFilter) ([]domain.Order, error) {
	if s.placeholdersFn != nil {
		return s.placeholdersFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubOrderRepo) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

func fixedClock() func() time.Time {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}
