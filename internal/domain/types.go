package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination captures cursor-based pagination input shared across list endpoints.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage represents a paginated result set with an optional continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PaymentMethod enumerates how a customer intends to pay for an order.
type PaymentMethod string

const (
	PaymentMethodCardGateway    PaymentMethod = "card_gateway"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodUPIQR          PaymentMethod = "upi_qr"
)

var paymentMethodAliases = map[string]PaymentMethod{
	"card_gateway":     PaymentMethodCardGateway,
	"card":             PaymentMethodCardGateway,
	"razorpay":         PaymentMethodCardGateway,
	"stripe":           PaymentMethodCardGateway,
	"cash_on_delivery": PaymentMethodCashOnDelivery,
	"cod":              PaymentMethodCashOnDelivery,
	"upi_qr":           PaymentMethodUPIQR,
	"upi":              PaymentMethodUPIQR,
}

// ParsePaymentMethod normalises client supplied method names, accepting legacy aliases.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	method, ok := paymentMethodAliases[strings.ToLower(strings.TrimSpace(raw))]
	return method, ok
}

// PaymentStatus tracks the payment side of an order.
type PaymentStatus string

const (
	PaymentStatusPending      PaymentStatus = "pending"
	PaymentStatusPaid         PaymentStatus = "paid"
	PaymentStatusFailed       PaymentStatus = "failed"
	PaymentStatusCODConfirmed PaymentStatus = "cod_confirmed"
)

// ParsePaymentStatus validates a payment status string.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch status := PaymentStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCODConfirmed:
		return status, true
	default:
		return "", false
	}
}

// Settled reports whether the payment can no longer change.
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCODConfirmed
}

// OrderStatus tracks fulfilment progress.
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// LineItem is a frozen snapshot of a purchased product.
type LineItem struct {
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Subtotal returns quantity multiplied by unit price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the central ledger entity.
type Order struct {
	ID                string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	CustomerAddress   string
	CustomerRef       string
	Items             []LineItem
	TotalAmount       decimal.Decimal
	Currency          string
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	Status            OrderStatus
	ProviderOrderID   string
	ProviderPaymentID string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Product is a catalog entry available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageURL    string
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductSort enumerates supported product orderings.
type ProductSort string

const (
	ProductSortNewest    ProductSort = ""
	ProductSortPriceAsc  ProductSort = "price-asc"
	ProductSortPriceDesc ProductSort = "price-desc"
	ProductSortNameAsc   ProductSort = "name-asc"
)

// Category groups products for browsing.
type Category struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Banner is a promotional slot shown on the storefront.
type Banner struct {
	ID          string
	Title       string
	Description string
	ImageURL    string
	LinkURL     string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CustomerAccount stores storefront login credentials.
type CustomerAccount struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AdminAccount stores back-office login credentials.
type AdminAccount struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
