package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"

	"github.com/techmart/storefront-api/internal/platform/config"
)

const (
	defaultUploadTTL   = 15 * time.Minute
	maxProductImageLen = 10 << 20
)

var (
	// ErrUploadsDisabled is returned when no bucket is configured.
	ErrUploadsDisabled = errors.New("storage: product image uploads are not configured")
	// ErrContentTypeNotAllowed is returned for non-image uploads.
	ErrContentTypeNotAllowed = errors.New("storage: content type not allowed")
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// UploadTarget is a signed PUT destination plus the URL the object will be served from.
type UploadTarget struct {
	UploadURL string
	Method    string
	Headers   map[string]string
	ObjectURL string
	ExpiresAt time.Time
}

// ProductImageUploader issues V4 signed upload URLs for the product images bucket.
type ProductImageUploader struct {
	bucket     string
	publicBase string
	ttl        time.Duration
	signer     Signer
	now        func() time.Time
}

// UploaderOption customises the uploader.
type UploaderOption func(*ProductImageUploader)

// WithUploaderClock overrides the time source.
func WithUploaderClock(now func() time.Time) UploaderOption {
	return func(u *ProductImageUploader) {
		if now != nil {
			u.now = now
		}
	}
}

// NewProductImageUploader returns an uploader. A nil signer or empty bucket yields a disabled uploader
// whose calls return ErrUploadsDisabled.
func NewProductImageUploader(cfg config.StorageConfig, signer Signer, opts ...UploaderOption) *ProductImageUploader {
	u := &ProductImageUploader{
		bucket:     strings.TrimSpace(cfg.ProductImagesBucket),
		publicBase: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		ttl:        cfg.UploadURLTTL,
		signer:     signer,
		now:        time.Now,
	}
	if u.ttl <= 0 {
		u.ttl = defaultUploadTTL
	}
	if u.publicBase == "" && u.bucket != "" {
		u.publicBase = "https://storage.googleapis.com/" + u.bucket
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// SignProductImageUpload returns a signed PUT URL for a new image object under the product.
func (u *ProductImageUploader) SignProductImageUpload(ctx context.Context, productID, contentType string) (UploadTarget, error) {
	if u == nil || u.signer == nil || u.bucket == "" {
		return UploadTarget{}, ErrUploadsDisabled
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return UploadTarget{}, fmt.Errorf("%w: %q", ErrContentTypeNotAllowed, contentType)
	}

	now := u.now().UTC()
	object := fmt.Sprintf("products/%s/%s.%s", url.PathEscape(productID), strings.ToLower(ulid.Make().String()), ext)
	expires := now.Add(u.ttl)
	sizeRange := fmt.Sprintf("0,%d", maxProductImageLen)

	signed, err := storage.SignedURL(u.bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: u.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodPut,
		ContentType:    contentType,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		Expires:        expires,
		SignBytes: func(payload []byte) ([]byte, error) {
			return u.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return UploadTarget{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return UploadTarget{
		UploadURL: signed,
		Method:    http.MethodPut,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
		ObjectURL: u.publicBase + "/" + object,
		ExpiresAt: expires,
	}, nil
}
