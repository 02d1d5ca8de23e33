package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/techmart/storefront-api/internal/domain"
	"github.com/techmart/storefront-api/internal/payments"
	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/platform/config"
	pfirestore "github.com/techmart/storefront-api/internal/platform/firestore"
	"github.com/techmart/storefront-api/internal/platform/jobs"
	"github.com/techmart/storefront-api/internal/platform/observability"
	platformstorage "github.com/techmart/storefront-api/internal/platform/storage"
	firestoreRepo "github.com/techmart/storefront-api/internal/repositories/firestore"
	"github.com/techmart/storefront-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders   services.OrderService
	Payments services.PaymentService
	Catalog  services.CatalogService
	Identity services.IdentityService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config   config.Config
	Provider *pfirestore.Provider
	Tokens   *auth.TokenManager
	Services Services

	pubsubClient *pubsub.Client
	publisher    *jobs.PubSubOrderEventPublisher
}

// NewContainer constructs the runtime dependencies on top of a Firestore provider.
func NewContainer(ctx context.Context, cfg config.Config, provider *pfirestore.Provider, logger *zap.Logger) (*Container, error) {
	if provider == nil {
		return nil, errors.New("firestore provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := auth.NewTokenManager(cfg.Security.Tokens.Secret, cfg.Security.Tokens.Issuer, cfg.Security.Tokens.TTL)
	if err != nil {
		return nil, fmt.Errorf("build token manager: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Provider: provider,
		Tokens:   tokens,
	}

	var events services.OrderEventPublisher
	if topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		c.pubsubClient = client
		publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(topicID))
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("build order event publisher: %w", err)
		}
		c.publisher = publisher
		events = publisher
	}

	svc, err := buildServices(cfg, provider, tokens, events, logger)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close flushes pending events and releases the Pub/Sub client. The Firestore provider is owned by the caller.
func (c *Container) Close(_ context.Context) error {
	if c == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	if c.pubsubClient != nil {
		return c.pubsubClient.Close()
	}
	return nil
}

func buildServices(cfg config.Config, provider *pfirestore.Provider, tokens *auth.TokenManager, events services.OrderEventPublisher, logger *zap.Logger) (Services, error) {
	var svc Services

	orderRepo, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build order repository: %w", err)
	}
	productRepo, err := firestoreRepo.NewProductRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build product repository: %w", err)
	}
	categoryRepo, err := firestoreRepo.NewCategoryRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build category repository: %w", err)
	}
	bannerRepo, err := firestoreRepo.NewBannerRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build banner repository: %w", err)
	}
	customerRepo, err := firestoreRepo.NewCustomerRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build customer repository: %w", err)
	}
	adminRepo, err := firestoreRepo.NewAdminRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build admin repository: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orderRepo,
		Currency: cfg.Payments.Currency,
		Clock:    time.Now,
		Events:   events,
		Logger:   observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	manager, err := buildPaymentManager(cfg.Payments, logger.Named("payments"))
	if err != nil {
		return Services{}, fmt.Errorf("build payment manager: %w", err)
	}
	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:       orderRepo,
		Transactions: manager,
		Verifier:     payments.NewSignatureVerifier(cfg.Payments.VerificationSecret, cfg.Payments.UnsafeDevVerification),
		UPIPayeeVPA:  cfg.Payments.UPIPayeeVPA,
		UPIPayeeName: cfg.Payments.UPIPayeeName,
		Meter:        otel.Meter("github.com/techmart/storefront-api/payments"),
		Clock:        time.Now,
		Events:       events,
		Logger:       observability.ServiceLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	var signer platformstorage.Signer
	if path := strings.TrimSpace(cfg.Storage.SignerCredentials); path != "" {
		accountSigner, err := platformstorage.NewServiceAccountSignerFromFile(path)
		if err != nil {
			return Services{}, fmt.Errorf("build storage signer: %w", err)
		}
		signer = accountSigner
	}
	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   productRepo,
		Categories: categoryRepo,
		Banners:    bannerRepo,
		Images:     platformstorage.NewProductImageUploader(cfg.Storage, signer),
		Clock:      time.Now,
		Logger:     observability.ServiceLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	identitySvc, err := services.NewIdentityService(services.IdentityServiceDeps{
		Customers:       customerRepo,
		Admins:          adminRepo,
		Tokens:          tokens,
		HashPassword:    auth.HashPassword,
		ComparePassword: auth.ComparePassword,
		Clock:           time.Now,
		Logger:          observability.ServiceLogger(logger.Named("identity")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build identity service: %w", err)
	}
	svc.Identity = identitySvc

	return svc, nil
}

func buildPaymentManager(cfg config.PaymentsConfig, logger *zap.Logger) (*payments.Manager, error) {
	providerLogger := observability.ServiceLogger(logger)
	providers := make(map[string]payments.Provider)
	if strings.TrimSpace(cfg.StripeSecretKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			SecretKey:      cfg.StripeSecretKey,
			PublishableKey: cfg.StripePublishableKey,
			Logger:         providerLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers["stripe"] = stripeProvider
	} else {
		logger.Warn("payments: stripe secret key not configured; card gateway orders fall back to placeholders")
	}

	return payments.NewManager(providers,
		payments.WithDefaultProvider(cfg.DefaultProvider),
		payments.WithMethodRoute(domain.PaymentMethodCardGateway, "stripe"),
		payments.WithCallTimeout(cfg.ProviderTimeout),
		payments.WithManagerLogger(providerLogger),
	)
}
