package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Order           = domain.Order
	LineItem        = domain.LineItem
	OrderStatus     = domain.OrderStatus
	PaymentStatus   = domain.PaymentStatus
	PaymentMethod   = domain.PaymentMethod
	Product         = domain.Product
	ProductSort     = domain.ProductSort
	Category        = domain.Category
	Banner          = domain.Banner
	CustomerAccount = domain.CustomerAccount
	AdminAccount    = domain.AdminAccount
	UploadTarget    = storage.UploadTarget
)

// OrderService owns order creation, lookup and fulfilment status administration.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListCustomerOrders(ctx context.Context, customerRef string, pager Pagination) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// PaymentService drives the payment side of an order.
type PaymentService interface {
	InitiateTransaction(ctx context.Context, orderID string) (TransactionInitiation, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	ConfirmCashOnDelivery(ctx context.Context, orderID string) (Order, error)
	ApplyProviderEvent(ctx context.Context, cmd ProviderEventCommand) (Order, error)
	ReconcilePlaceholders(ctx context.Context, limit int) (ReconciliationSummary, error)
	UPIIntent(ctx context.Context, orderID string) (UPIPaymentIntent, error)
}

// CatalogService manages products, categories and banners.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, productID string, input ProductInput) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ProductImageUploadURL(ctx context.Context, productID, contentType string) (UploadTarget, error)

	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, input CategoryInput) (Category, error)
	UpdateCategory(ctx context.Context, categoryID string, input CategoryInput) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	ListBanners(ctx context.Context, activeOnly bool) ([]Banner, error)
	CreateBanner(ctx context.Context, input BannerInput) (Banner, error)
	UpdateBanner(ctx context.Context, bannerID string, input BannerInput) (Banner, error)
	DeleteBanner(ctx context.Context, bannerID string) error
}

// IdentityService registers and authenticates customers and administrators.
type IdentityService interface {
	RegisterCustomer(ctx context.Context, cmd RegisterCustomerCommand) (CustomerAccount, error)
	LoginCustomer(ctx context.Context, cmd LoginCommand) (Session, error)
	RegisterAdmin(ctx context.Context, cmd RegisterAdminCommand) (AdminAccount, error)
	LoginAdmin(ctx context.Context, cmd LoginCommand) (Session, error)
	EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error)
}

// LineItemInput is a client supplied line item snapshot.
type LineItemInput struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

// CreateOrderCommand carries checkout data.
type CreateOrderCommand struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerAddress string
	// CustomerRef is the authenticated subject, empty for guest checkout.
	CustomerRef   string
	Items         []LineItemInput
	PaymentMethod string
}

// OrderListFilter narrows admin order listings. Status values are validated by the service.
type OrderListFilter struct {
	Status        string
	PaymentStatus string
	Pagination    Pagination
}

// UpdateOrderStatusCommand requests a fulfilment status change.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

// TransactionInitiation is returned to the client to continue checkout with the provider.
type TransactionInitiation struct {
	Order           Order
	ProviderOrderID string
	Amount          int64
	Currency        string
	ClientKey       string
	ClientSecret    string
	Placeholder     bool
}

// VerifyPaymentCommand is the client side provider callback.
type VerifyPaymentCommand struct {
	OrderID           string
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

// ProviderEventCommand is a server-to-server provider notification.
type ProviderEventCommand struct {
	OrderID           string
	ProviderOrderID   string
	ProviderPaymentID string
	Status            string
}

// ReconciliationSummary reports the outcome of a placeholder reconciliation run.
type ReconciliationSummary struct {
	Scanned      int
	Reconciled   int
	StillPending int
	Failed       int
}

// UPIPaymentIntent is the data needed to render a UPI QR code.
type UPIPaymentIntent struct {
	OrderID  string
	URI      string
	Amount   decimal.Decimal
	Currency string
}

// ProductListFilter controls storefront product listings.
type ProductListFilter struct {
	Category   string
	Search     string
	Sort       string
	Pagination Pagination
}

// ProductInput carries admin product edits.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageURL    string
	Stock       int
}

// CategoryInput carries admin category edits.
type CategoryInput struct {
	Name        string
	Description string
	ImageURL    string
}

// BannerInput carries admin banner edits.
type BannerInput struct {
	Title       string
	Description string
	ImageURL    string
	LinkURL     string
	IsActive    bool
}

// RegisterCustomerCommand creates a storefront account.
type RegisterCustomerCommand struct {
	Username string
	Email    string
	Password string
}

// RegisterAdminCommand creates a back-office account.
type RegisterAdminCommand struct {
	Username string
	Password string
}

// LoginCommand authenticates with an email or username.
type LoginCommand struct {
	Identifier string
	Password   string
}

// Session is an issued access token with the profile it was issued for.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	Subject     string
	Role        string
	Email       string
	Username    string
}
