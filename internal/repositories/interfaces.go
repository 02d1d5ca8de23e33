package repositories

import (
	"context"

	"github.com/techmart/storefront-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows order listings. Zero values mean "any".
type OrderListFilter struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	CustomerRef   string
	Pagination    domain.Pagination
}

// PlaceholderFilter selects orders still holding a locally generated provider reference.
type PlaceholderFilter struct {
	Method          domain.PaymentMethod
	ReferencePrefix string
	Limit           int
}

// OrderRepository is the order ledger.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateIfVersion replaces the order when the stored version equals expectedVersion and
	// returns the saved order with its version incremented. A mismatch is a conflict.
	UpdateIfVersion(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListPendingPlaceholders(ctx context.Context, filter PlaceholderFilter) ([]domain.Order, error)
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// List returns every product, optionally restricted to a category.
	List(ctx context.Context, category string) ([]domain.Product, error)
}

// CategoryRepository persists catalog categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// BannerRepository persists storefront banners.
type BannerRepository interface {
	Insert(ctx context.Context, banner domain.Banner) error
	Update(ctx context.Context, banner domain.Banner) error
	Delete(ctx context.Context, bannerID string) error
	FindByID(ctx context.Context, bannerID string) (domain.Banner, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Banner, error)
}

// CustomerRepository persists storefront accounts. Emails are unique.
type CustomerRepository interface {
	Insert(ctx context.Context, account domain.CustomerAccount) error
	FindByEmail(ctx context.Context, email string) (domain.CustomerAccount, error)
	FindByUsername(ctx context.Context, username string) (domain.CustomerAccount, error)
}

// AdminRepository persists back-office accounts. Usernames are unique.
type AdminRepository interface {
	Insert(ctx context.Context, account domain.AdminAccount) error
	FindByUsername(ctx context.Context, username string) (domain.AdminAccount, error)
}
