package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/techmart/storefront-api/internal/domain"
	pfirestore "github.com/techmart/storefront-api/internal/platform/firestore"
	"github.com/techmart/storefront-api/internal/repositories"
)

const (
	productCollection  = "products"
	categoryCollection = "categories"
	bannerCollection   = "banners"
)

// ProductRepository stores catalog products.
type ProductRepository struct {
	base *pfirestore.BaseRepository[domain.Product]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[domain.Product](provider, productCollection, encodeProduct, decodeProduct),
	}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, p domain.Product) error {
	return r.base.Create(ctx, p.ID, p)
}

func (r *ProductRepository) Update(ctx context.Context, p domain.Product) error {
	return r.base.Replace(ctx, p.ID, p)
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, id)
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	return r.base.Get(ctx, id)
}

func (r *ProductRepository) List(ctx context.Context, category string) ([]domain.Product, error) {
	return r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category != "" {
			q = q.Where("category", "==", category)
		}
		return q.OrderBy("created_at", firestore.Desc)
	})
}

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	Price       string    `firestore:"price"`
	Category    string    `firestore:"category"`
	ImageURL    string    `firestore:"image_url"`
	Stock       int       `firestore:"stock"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func encodeProduct(p domain.Product) (map[string]any, error) {
	return map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price.String(),
		"category":    p.Category,
		"image_url":   p.ImageURL,
		"stock":       p.Stock,
		"created_at":  p.CreatedAt.UTC(),
		"updated_at":  p.UpdatedAt.UTC(),
	}, nil
}

func decodeProduct(snap *firestore.DocumentSnapshot) (domain.Product, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, err
	}
	price, err := decimal.NewFromString(doc.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("price: %w", err)
	}
	return domain.Product{
		ID:          snap.Ref.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       price,
		Category:    doc.Category,
		ImageURL:    doc.ImageURL,
		Stock:       doc.Stock,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}

// CategoryRepository stores catalog categories.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[domain.Category]
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	return &CategoryRepository{
		base: pfirestore.NewBaseRepository[domain.Category](provider, categoryCollection, encodeCategory, decodeCategory),
	}, nil
}

func (r *CategoryRepository) Insert(ctx context.Context, c domain.Category) error {
	return r.base.Create(ctx, c.ID, c)
}

func (r *CategoryRepository) Update(ctx context.Context, c domain.Category) error {
	return r.base.Replace(ctx, c.ID, c)
}

func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, id)
}

func (r *CategoryRepository) FindByID(ctx context.Context, id string) (domain.Category, error) {
	return r.base.Get(ctx, id)
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	return r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
}

type categoryDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	ImageURL    string    `firestore:"image_url"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func encodeCategory(c domain.Category) (map[string]any, error) {
	return map[string]any{
		"name":        c.Name,
		"description": c.Description,
		"image_url":   c.ImageURL,
		"created_at":  c.CreatedAt.UTC(),
		"updated_at":  c.UpdatedAt.UTC(),
	}, nil
}

func decodeCategory(snap *firestore.DocumentSnapshot) (domain.Category, error) {
	var doc categoryDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Category{}, err
	}
	return domain.Category{
		ID:          snap.Ref.ID,
		Name:        doc.Name,
		Description: doc.Description,
		ImageURL:    doc.ImageURL,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}

// BannerRepository stores storefront banners.
type BannerRepository struct {
	base *pfirestore.BaseRepository[domain.Banner]
}

var _ repositories.BannerRepository = (*BannerRepository)(nil)

// NewBannerRepository constructs a Firestore-backed banner repository.
func NewBannerRepository(provider *pfirestore.Provider) (*BannerRepository, error) {
	if provider == nil {
		return nil, errors.New("banner repository requires firestore provider")
	}
	return &BannerRepository{
		base: pfirestore.NewBaseRepository[domain.Banner](provider, bannerCollection, encodeBanner, decodeBanner),
	}, nil
}

func (r *BannerRepository) Insert(ctx context.Context, b domain.Banner) error {
	return r.base.Create(ctx, b.ID, b)
}

func (r *BannerRepository) Update(ctx context.Context, b domain.Banner) error {
	return r.base.Replace(ctx, b.ID, b)
}

func (r *BannerRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, id)
}

func (r *BannerRepository) FindByID(ctx context.Context, id string) (domain.Banner, error) {
	return r.base.Get(ctx, id)
}

// List returns banners newest first. Active filtering happens in memory to avoid a composite index.
func (r *BannerRepository) List(ctx context.Context, activeOnly bool) ([]domain.Banner, error) {
	banners, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := banners[:0]
	for _, banner := range banners {
		if activeOnly && !banner.IsActive {
			continue
		}
		out = append(out, banner)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type bannerDocument struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	ImageURL    string    `firestore:"image_url"`
	LinkURL     string    `firestore:"link_url"`
	IsActive    bool      `firestore:"is_active"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func encodeBanner(b domain.Banner) (map[string]any, error) {
	return map[string]any{
		"title":       b.Title,
		"description": b.Description,
		"image_url":   b.ImageURL,
		"link_url":    b.LinkURL,
		"is_active":   b.IsActive,
		"created_at":  b.CreatedAt.UTC(),
		"updated_at":  b.UpdatedAt.UTC(),
	}, nil
}

func decodeBanner(snap *firestore.DocumentSnapshot) (domain.Banner, error) {
	var doc bannerDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Banner{}, err
	}
	return domain.Banner{
		ID:          snap.Ref.ID,
		Title:       doc.Title,
		Description: doc.Description,
		ImageURL:    doc.ImageURL,
		LinkURL:     doc.LinkURL,
		IsActive:    doc.IsActive,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}
