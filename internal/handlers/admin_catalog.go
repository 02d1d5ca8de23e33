package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/techmart/storefront-api/internal/platform/httpx"
	"github.com/techmart/storefront-api/internal/services"
)

const maxAdminCatalogBodySize = 64 * 1024

type adminProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
	Stock       int             `json:"stock"`
}

type adminCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

type adminBannerRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	LinkURL     string `json:"link_url"`
	IsActive    *bool  `json:"is_active"`
}

type imageUploadRequest struct {
	ContentType string `json:"content_type"`
}

type imageUploadResponse struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ObjectURL string            `json:"object_url"`
	ExpiresAt string            `json:"expires_at"`
}

// AdminCatalogHandlers exposes catalog maintenance endpoints. Callers mount it behind the admin guard.
type AdminCatalogHandlers struct {
	catalog services.CatalogService
}

// NewAdminCatalogHandlers constructs a new AdminCatalogHandlers instance.
func NewAdminCatalogHandlers(catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{catalog: catalog}
}

// Routes registers the /admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Post("/products/{productID}/image-upload-url", h.productImageUploadURL)

	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)

	r.Get("/banners", h.listBanners)
	r.Post("/banners", h.createBanner)
	r.Put("/banners/{bannerID}", h.updateBanner)
	r.Delete("/banners/{bannerID}", h.deleteBanner)
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminProductRequest
	if !decodeJSONBody(ctx, w, r, maxAdminCatalogBodySize, &req) {
		return
	}
	product, err := h.catalog.CreateProduct(ctx, req.input())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminProductRequest
	if !decodeJSONBody(ctx, w, r, maxAdminCatalogBodySize, &req) {
		return
	}
	product, err := h.catalog.UpdateProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")), req.input())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID"))); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) productImageUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req imageUploadRequest
	if !decodeJSONBody(ctx, w, r, maxPaymentBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.ContentType) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidationFailed, "content_type is required", http.StatusBadRequest))
		return
	}
	target, err := h.catalog.ProductImageUploadURL(ctx, strings.TrimSpace(chi.URLParam(r, "productID")), req.ContentType)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, imageUploadResponse{
		UploadURL: target.UploadURL,
		Method:    target.Method,
		Headers:   target.Headers,
		ObjectURL: target.ObjectURL,
		ExpiresAt: formatTime(target.ExpiresAt),
	})
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminCategoryRequest
	if !decodeJSONBody(ctx, w, r, maxAdminCatalogBodySize, &req) {
		return
	}
	category, err := h.catalog.CreateCategory(ctx, req.input())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCategoryPayload(category))
}

func (h *AdminCatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminCategoryRequest
	if !decodeJSONBody(ctx, w, r, maxAdminCatalogBodySize, &req) {
		return
	}
	category, err := h.catalog.UpdateCategory(ctx, strings.TrimSpace(chi.URLParam(r, "categoryID")), req.input())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCategoryPayload(category))
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteCategory(ctx, strings.TrimSpace(chi.URLParam(r, "categoryID"))); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) listBanners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	banners, err := h.catalog.ListBanners(ctx, false)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBannerList(banners))
}

func (h *AdminCatalogHandlers) createBanner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminBannerRequest
	if !decodeJSONBody(ctx, w, r, maxAdminCatalogBodySize, &req) {
		return
	}
	banner, err := h.catalog.CreateBanner(ctx, req.input())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildBannerPayload(banner))
}

func (h *AdminCatalogHandlers) updateBanner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminBannerRequest
	if !decodeJSONBody(ctx, w, r, maxAdminCatalogBodySize, &req) {
		return
	}
	banner, err := h.catalog.UpdateBanner(ctx, strings.TrimSpace(chi.URLParam(r, "bannerID")), req.input())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBannerPayload(banner))
}

func (h *AdminCatalogHandlers) deleteBanner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteBanner(ctx, strings.TrimSpace(chi.URLParam(r, "bannerID"))); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r adminProductRequest) input() services.ProductInput {
	return services.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
		Stock:       r.Stock,
	}
}

func (r adminCategoryRequest) input() services.CategoryInput {
	return services.CategoryInput{Name: r.Name, Description: r.Description, ImageURL: r.ImageURL}
}

// input defaults is_active to true when omitted.
func (r adminBannerRequest) input() services.BannerInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return services.BannerInput{
		Title:       r.Title,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		LinkURL:     r.LinkURL,
		IsActive:    active,
	}
}
