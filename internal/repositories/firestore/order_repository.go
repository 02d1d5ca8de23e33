package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/techmart/storefront-api/internal/domain"
	pfirestore "github.com/techmart/storefront-api/internal/platform/firestore"
	"github.com/techmart/storefront-api/internal/platform/pagination"
	"github.com/techmart/storefront-api/internal/repositories"
)

const (
	orderCollection = "orders"
	// Contention retries only; a version mismatch is never retried.
	orderUpdateAttempts = 3
)

// OrderRepository is the Firestore order ledger. Every update is a compare-and-swap on version.
type OrderRepository struct {
	base *pfirestore.BaseRepository[domain.Order]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[domain.Order](provider, orderCollection, encodeOrder, decodeOrder),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, order)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.base.Get(ctx, strings.TrimSpace(orderID))
}

func (r *OrderRepository) UpdateIfVersion(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Version = expectedVersion + 1
	payload, err := r.base.Encode(order)
	if err != nil {
		return domain.Order{}, err
	}

	err = r.base.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return pfirestore.ErrVersionMismatch
		}
		return tx.Set(ref, payload)
	}, pfirestore.WithTxAttempts(orderUpdateAttempts))
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update", err)
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	var startAfter []any
	if len(cursor.StartAfter) == 2 {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.StartAfter[0])
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
		}
		startAfter = []any{createdAt, cursor.StartAfter[1]}
	}
	pageSize := pagination.ClampPageSize(filter.Pagination.PageSize)

	orders, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != "" {
			q = q.Where("order_status", "==", string(filter.Status))
		}
		if filter.PaymentStatus != "" {
			q = q.Where("payment_status", "==", string(filter.PaymentStatus))
		}
		if filter.CustomerRef != "" {
			q = q.Where("customer_ref", "==", filter.CustomerRef)
		}
		q = q.OrderBy("created_at", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if startAfter != nil {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if len(orders) > pageSize {
		page.Items = orders[:pageSize]
		last := page.Items[pageSize-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []string{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r *OrderRepository) ListPendingPlaceholders(ctx context.Context, filter repositories.PlaceholderFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("payment_status", "==", string(domain.PaymentStatusPending)).
			Where("provider_order_id", ">=", filter.ReferencePrefix).
			Where("provider_order_id", "<", filter.ReferencePrefix+"\uf8ff")
		if filter.Method != "" {
			q = q.Where("payment_method", "==", string(filter.Method))
		}
		return q.Limit(limit)
	})
}

type lineItemDocument struct {
	ProductID string `firestore:"product_id"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	Price     string `firestore:"price"`
}

type orderDocument struct {
	CustomerName      string             `firestore:"customer_name"`
	CustomerEmail     string             `firestore:"customer_email"`
	CustomerPhone     string             `firestore:"customer_phone"`
	CustomerAddress   string             `firestore:"customer_address"`
	CustomerRef       string             `firestore:"customer_ref"`
	Items             []lineItemDocument `firestore:"items"`
	TotalAmount       string             `firestore:"total_amount"`
	Currency          string             `firestore:"currency"`
	PaymentMethod     string             `firestore:"payment_method"`
	PaymentStatus     string             `firestore:"payment_status"`
	OrderStatus       string             `firestore:"order_status"`
	ProviderOrderID   string             `firestore:"provider_order_id"`
	ProviderPaymentID string             `firestore:"provider_payment_id"`
	Version           int64              `firestore:"version"`
	CreatedAt         time.Time          `firestore:"created_at"`
	UpdatedAt         time.Time          `firestore:"updated_at"`
}

func encodeOrder(order domain.Order) (map[string]any, error) {
	items := make([]lineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemDocument{
			ProductID: item.ProductRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice.String(),
		})
	}
	return map[string]any{
		"customer_name":       order.CustomerName,
		"customer_email":      order.CustomerEmail,
		"customer_phone":      order.CustomerPhone,
		"customer_address":    order.CustomerAddress,
		"customer_ref":        order.CustomerRef,
		"items":               items,
		"total_amount":        order.TotalAmount.String(),
		"currency":            order.Currency,
		"payment_method":      string(order.PaymentMethod),
		"payment_status":      string(order.PaymentStatus),
		"order_status":        string(order.Status),
		"provider_order_id":   order.ProviderOrderID,
		"provider_payment_id": order.ProviderPaymentID,
		"version":             order.Version,
		"created_at":          order.CreatedAt.UTC(),
		"updated_at":          order.UpdatedAt.UTC(),
	}, nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, err
	}
	total, err := decimal.NewFromString(doc.TotalAmount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("total_amount: %w", err)
	}
	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("item %s price: %w", item.ProductID, err)
		}
		items = append(items, domain.LineItem{
			ProductRef: item.ProductID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  price,
		})
	}
	return domain.Order{
		ID:                snap.Ref.ID,
		CustomerName:      doc.CustomerName,
		CustomerEmail:     doc.CustomerEmail,
		CustomerPhone:     doc.CustomerPhone,
		CustomerAddress:   doc.CustomerAddress,
		CustomerRef:       doc.CustomerRef,
		Items:             items,
		TotalAmount:       total,
		Currency:          doc.Currency,
		PaymentMethod:     domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus:     domain.PaymentStatus(doc.PaymentStatus),
		Status:            domain.OrderStatus(doc.OrderStatus),
		ProviderOrderID:   doc.ProviderOrderID,
		ProviderPaymentID: doc.ProviderPaymentID,
		Version:           doc.Version,
		CreatedAt:         doc.CreatedAt.UTC(),
		UpdatedAt:         doc.UpdatedAt.UTC(),
	}, nil
}
