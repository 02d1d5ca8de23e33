package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/platform/httpx"
	"github.com/techmart/storefront-api/internal/platform/pagination"
	"github.com/techmart/storefront-api/internal/services"
)

const defaultMaxBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

// decodeJSONBody reads a bounded body and strictly decodes a single JSON object into dst.
// Errors are written to the response; the boolean reports whether decoding succeeded.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodePayloadTooLarge, "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeBadRequest, err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeBadRequest, "failed to read request body", http.StatusBadRequest))
		}
		return false
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeBadRequest, fmt.Sprintf("invalid JSON body: %s", jsonErrorMessage(err)), http.StatusBadRequest))
		return false
	}
	if decoder.More() {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeBadRequest, "request body must contain a single JSON object", http.StatusBadRequest))
		return false
	}
	return true
}

func jsonErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field %s has the wrong type", typeErr.Field)
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "json: unknown field ") {
		return strings.TrimPrefix(msg, "json: ")
	}
	return "malformed JSON"
}

// writeServiceError maps service sentinel errors to the shared error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderIDRequired):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeBadRequest, "order_id is required", http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidPageToken), errors.Is(err, pagination.ErrInvalidPageSize):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidationFailed, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrIdentityInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidationFailed, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeSignatureMismatch, "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeNotFound, "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeNotFound, err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidTransition, err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidState, err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict),
		errors.Is(err, services.ErrCatalogConflict),
		errors.Is(err, services.ErrIdentityConflict):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeConflict, err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthorized, "invalid credentials", http.StatusUnauthorized))
	case errors.Is(err, services.ErrPaymentNotConfigured),
		errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeServiceUnavailable, err.Error(), http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "failed to process request", http.StatusInternalServerError))
	}
}

func parsePagination(ctx context.Context, w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.Parse(r.URL.Query())
	if err != nil {
		writeServiceError(ctx, w, err)
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeServiceUnavailable, name+" service unavailable", http.StatusServiceUnavailable))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type lineItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

type orderPayload struct {
	ID                string            `json:"id"`
	CustomerName      string            `json:"customer_name"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerPhone     string            `json:"customer_phone"`
	CustomerAddress   string            `json:"customer_address"`
	CustomerRef       string            `json:"customer_ref,omitempty"`
	Items             []lineItemPayload `json:"items"`
	TotalAmount       string            `json:"total_amount"`
	Currency          string            `json:"currency"`
	PaymentMethod     string            `json:"payment_method"`
	PaymentStatus     string            `json:"payment_status"`
	OrderStatus       string            `json:"order_status"`
	ProviderOrderID   string            `json:"provider_order_id,omitempty"`
	ProviderPaymentID string            `json:"provider_payment_id,omitempty"`
	Version           int64             `json:"version"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]lineItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemPayload{
			ProductID: item.ProductRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     domain.FormatAmount(item.UnitPrice, order.Currency),
			Subtotal:  domain.FormatAmount(item.Subtotal(), order.Currency),
		})
	}
	return orderPayload{
		ID:                order.ID,
		CustomerName:      order.CustomerName,
		CustomerEmail:     order.CustomerEmail,
		CustomerPhone:     order.CustomerPhone,
		CustomerAddress:   order.CustomerAddress,
		CustomerRef:       order.CustomerRef,
		Items:             items,
		TotalAmount:       domain.FormatAmount(order.TotalAmount, order.Currency),
		Currency:          order.Currency,
		PaymentMethod:     string(order.PaymentMethod),
		PaymentStatus:     string(order.PaymentStatus),
		OrderStatus:       string(order.Status),
		ProviderOrderID:   order.ProviderOrderID,
		ProviderPaymentID: order.ProviderPaymentID,
		Version:           order.Version,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func buildOrderList(page domain.CursorPage[services.Order]) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return orderListResponse{Items: items, NextPageToken: strings.TrimSpace(page.NextPageToken)}
}

type productPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url,omitempty"`
	Stock       int    `json:"stock"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type bannerPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url"`
	LinkURL     string `json:"link_url,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// productPriceString renders catalog prices with two decimals; catalog prices carry no currency.
func productPriceString(price decimal.Decimal) string {
	return price.StringFixed(2)
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       productPriceString(product.Price),
		Category:    product.Category,
		ImageURL:    product.ImageURL,
		Stock:       product.Stock,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
		ImageURL:    category.ImageURL,
		CreatedAt:   formatTime(category.CreatedAt),
		UpdatedAt:   formatTime(category.UpdatedAt),
	}
}

func buildBannerPayload(banner services.Banner) bannerPayload {
	return bannerPayload{
		ID:          banner.ID,
		Title:       banner.Title,
		Description: banner.Description,
		ImageURL:    banner.ImageURL,
		LinkURL:     banner.LinkURL,
		IsActive:    banner.IsActive,
		CreatedAt:   formatTime(banner.CreatedAt),
		UpdatedAt:   formatTime(banner.UpdatedAt),
	}
}
