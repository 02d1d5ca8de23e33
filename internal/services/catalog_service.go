package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/platform/pagination"
	"github.com/techmart/storefront-api/internal/platform/storage"
	"github.com/techmart/storefront-api/internal/platform/textutil"
	"github.com/techmart/storefront-api/internal/repositories"
)

const (
	productIDPrefix  = "prd_"
	categoryIDPrefix = "cat_"
	bannerIDPrefix   = "ban_"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the catalog entry could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a duplicate or concurrent catalog write.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates an optional catalog capability is not configured.
	ErrCatalogUnavailable = errors.New("catalog: capability unavailable")
)

// ProductImageSigner issues direct upload URLs for product images.
type ProductImageSigner interface {
	SignProductImageUpload(ctx context.Context, productID, contentType string) (storage.UploadTarget, error)
}

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Banners     repositories.BannerRepository
	Images      ProductImageSigner
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	banners    repositories.BannerRepository
	images     ProductImageSigner
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Banners == nil {
		return nil, errors.New("catalog service: banner repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		banners:    deps.Banners,
		images:     deps.Images,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	sortKey := domain.ProductSort(strings.ToLower(strings.TrimSpace(filter.Sort)))
	switch sortKey {
	case domain.ProductSortNewest, domain.ProductSortPriceAsc, domain.ProductSortPriceDesc, domain.ProductSortNameAsc:
	default:
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: unsupported sort %q", ErrCatalogInvalidInput, filter.Sort)
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	all, err := s.products.List(ctx, strings.TrimSpace(filter.Category))
	if err != nil {
		return domain.CursorPage[Product]{}, mapCatalogRepositoryError(err)
	}

	search := strings.TrimSpace(filter.Search)
	matched := make([]Product, 0, len(all))
	for _, product := range all {
		if search == "" || textutil.ContainsFold(product.Name, search) || textutil.ContainsFold(product.Description, search) {
			matched = append(matched, product)
		}
	}
	sortProducts(matched, sortKey)

	size := pagination.ClampPageSize(filter.Pagination.PageSize)
	start := cursor.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	page := domain.CursorPage[Product]{Items: matched[start:end]}
	if end < len(matched) {
		token, err := pagination.EncodeToken(pagination.Cursor{Offset: end})
		if err != nil {
			return domain.CursorPage[Product]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func sortProducts(products []Product, key domain.ProductSort) {
	var less func(a, b Product) bool
	switch key {
	case domain.ProductSortPriceAsc:
		less = func(a, b Product) bool { return a.Price.LessThan(b.Price) }
	case domain.ProductSortPriceDesc:
		less = func(a, b Product) bool { return a.Price.GreaterThan(b.Price) }
	case domain.ProductSortNameAsc:
		less = func(a, b Product) bool { return textutil.Fold(a.Name) < textutil.Fold(b.Name) }
	default:
		less = func(a, b Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(products, func(i, j int) bool {
		return less(products[i], products[j])
	})
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	product, err := normalizeProduct(input)
	if err != nil {
		return Product{}, err
	}
	now := s.clock()
	product.ID = productIDPrefix + s.newID()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": product.ID, "category": product.Category})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, productID string, input ProductInput) (Product, error) {
	existing, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	product, err := normalizeProduct(input)
	if err != nil {
		return Product{}, err
	}
	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.updated", map[string]any{"productId": product.ID})
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) ProductImageUploadURL(ctx context.Context, productID, contentType string) (UploadTarget, error) {
	if s.images == nil {
		return UploadTarget{}, fmt.Errorf("%w: image uploads are not configured", ErrCatalogUnavailable)
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return UploadTarget{}, err
	}
	target, err := s.images.SignProductImageUpload(ctx, product.ID, contentType)
	switch {
	case errors.Is(err, storage.ErrUploadsDisabled):
		return UploadTarget{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	case errors.Is(err, storage.ErrContentTypeNotAllowed):
		return UploadTarget{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	case err != nil:
		return UploadTarget{}, fmt.Errorf("catalog: sign upload: %w", err)
	}
	s.logger(ctx, "catalog.product.upload_signed", map[string]any{"productId": product.ID, "object": target.ObjectURL})
	return target, nil
}

func normalizeProduct(input ProductInput) (Product, error) {
	name := textutil.PlainText(input.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	category := textutil.PlainText(input.Category)
	if category == "" {
		return Product{}, fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	}
	if input.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	if input.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	}
	imageURL, err := normalizeURL("image_url", input.ImageURL)
	if err != nil {
		return Product{}, err
	}
	return Product{
		Name:        name,
		Description: textutil.RichText(input.Description),
		Price:       input.Price,
		Category:    category,
		ImageURL:    imageURL,
		Stock:       input.Stock,
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, mapCatalogRepositoryError(err)
	}
	return categories, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	category, err := normalizeCategory(input)
	if err != nil {
		return Category{}, err
	}
	now := s.clock()
	category.ID = categoryIDPrefix + s.newID()
	category.CreatedAt = now
	category.UpdatedAt = now

	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.category.created", map[string]any{"categoryId": category.ID})
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, categoryID string, input CategoryInput) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	existing, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}
	category, err := normalizeCategory(input)
	if err != nil {
		return Category{}, err
	}
	category.ID = existing.ID
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = s.clock()

	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.category.deleted", map[string]any{"categoryId": categoryID})
	return nil
}

func normalizeCategory(input CategoryInput) (Category, error) {
	name := textutil.PlainText(input.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	imageURL, err := normalizeURL("image_url", input.ImageURL)
	if err != nil {
		return Category{}, err
	}
	return Category{
		Name:        name,
		Description: textutil.RichText(input.Description),
		ImageURL:    imageURL,
	}, nil
}

func (s *catalogService) ListBanners(ctx context.Context, activeOnly bool) ([]Banner, error) {
	banners, err := s.banners.List(ctx, activeOnly)
	if err != nil {
		return nil, mapCatalogRepositoryError(err)
	}
	return banners, nil
}

func (s *catalogService) CreateBanner(ctx context.Context, input BannerInput) (Banner, error) {
	banner, err := normalizeBanner(input)
	if err != nil {
		return Banner{}, err
	}
	now := s.clock()
	banner.ID = bannerIDPrefix + s.newID()
	banner.CreatedAt = now
	banner.UpdatedAt = now

	if err := s.banners.Insert(ctx, banner); err != nil {
		return Banner{}, mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.banner.created", map[string]any{"bannerId": banner.ID, "active": banner.IsActive})
	return banner, nil
}

func (s *catalogService) UpdateBanner(ctx context.Context, bannerID string, input BannerInput) (Banner, error) {
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return Banner{}, fmt.Errorf("%w: banner id is required", ErrCatalogInvalidInput)
	}
	existing, err := s.banners.FindByID(ctx, bannerID)
	if err != nil {
		return Banner{}, mapCatalogRepositoryError(err)
	}
	banner, err := normalizeBanner(input)
	if err != nil {
		return Banner{}, err
	}
	banner.ID = existing.ID
	banner.CreatedAt = existing.CreatedAt
	banner.UpdatedAt = s.clock()

	if err := s.banners.Update(ctx, banner); err != nil {
		return Banner{}, mapCatalogRepositoryError(err)
	}
	return banner, nil
}

func (s *catalogService) DeleteBanner(ctx context.Context, bannerID string) error {
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return fmt.Errorf("%w: banner id is required", ErrCatalogInvalidInput)
	}
	if err := s.banners.Delete(ctx, bannerID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.banner.deleted", map[string]any{"bannerId": bannerID})
	return nil
}

func normalizeBanner(input BannerInput) (Banner, error) {
	title := textutil.PlainText(input.Title)
	if title == "" {
		return Banner{}, fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	}
	imageURL, err := normalizeURL("image_url", input.ImageURL)
	if err != nil {
		return Banner{}, err
	}
	linkURL := strings.TrimSpace(input.LinkURL)
	if linkURL != "" && !strings.HasPrefix(linkURL, "/") {
		if linkURL, err = normalizeURL("link_url", linkURL); err != nil {
			return Banner{}, err
		}
	}
	return Banner{
		Title:       title,
		Description: textutil.RichText(input.Description),
		ImageURL:    imageURL,
		LinkURL:     linkURL,
		IsActive:    input.IsActive,
	}, nil
}

func normalizeURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s must be an absolute http(s) url", ErrCatalogInvalidInput, field)
	}
	return parsed.String(), nil
}

func mapCatalogRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}
