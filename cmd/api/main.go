package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/techmart/storefront-api/internal/di"
	"github.com/techmart/storefront-api/internal/handlers"
	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/platform/config"
	pfirestore "github.com/techmart/storefront-api/internal/platform/firestore"
	"github.com/techmart/storefront-api/internal/platform/idempotency"
	"github.com/techmart/storefront-api/internal/platform/observability"
	"github.com/techmart/storefront-api/internal/platform/requestctx"
	"github.com/techmart/storefront-api/internal/platform/secrets"
)

const (
	paymentWebhookSecret = "payments"
	meterName            = "github.com/techmart/storefront-api"
	jwksFetchTimeout     = 5 * time.Second
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	meter := otel.Meter(meterName)

	fetcher, err := newSecretFetcher(ctx, logger, meter, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.Payments.UnsafeDevVerification {
		logger.Error("payments: signature verification is disabled; every verification request is accepted",
			zap.String("environment", cfg.Security.Environment))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	container, err := di.NewContainer(ctx, cfg, firestoreProvider, logger)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()
	svc := container.Services

	if created, err := svc.Identity.EnsureBootstrapAdmin(ctx, cfg.Security.AdminBootstrap.Username, cfg.Security.AdminBootstrap.Password); err != nil {
		logger.Warn("admin bootstrap failed", zap.Error(err))
	} else if created {
		logger.Info("bootstrap admin created", zap.String("username", cfg.Security.AdminBootstrap.Username))
	}

	verifiers := auth.ChainVerifier{container.Tokens}
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Warn("firebase verifier unavailable; only session tokens are accepted", zap.Error(err))
		} else {
			verifiers = append(verifiers, firebaseVerifier)
		}
	}
	authenticator := auth.NewAuthenticator(verifiers)

	authMetrics, err := observability.NewAuthMetrics(meter)
	if err != nil {
		logger.Fatal("failed to register auth metrics", zap.Error(err))
	}

	idempotencyMiddleware := buildIdempotencyMiddleware(cfg, firestoreProvider)
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, authMetrics)
	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg, authMetrics)

	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, idempotencyMiddleware)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments,
		handlers.WithPaymentIdempotency(idempotencyMiddleware),
		handlers.WithCODRequiresAdmin(cfg.Payments.CODRequiresAdmin),
	)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Orders)
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	authHandlers := handlers.NewAuthHandlers(svc.Identity)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(svc.Orders)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(svc.Catalog)
	webhookHandlers := handlers.NewPaymentWebhookHandlers(svc.Payments)
	internalHandlers := handlers.NewInternalJobHandlers(svc.Payments)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck("firestore", firestoreProvider.Ping),
	)

	routerOpts := []handlers.Option{
		handlers.WithBasePath(cfg.Server.BasePath),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithCORS(cfg.Server.AllowedOrigins),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.IdentityLoggerMiddleware,
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(catalogHandlers.Routes, authHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminRoutes(handlers.AdminRoutes(
			authenticator.RequireAuth(auth.RoleAdmin),
			[]handlers.RouteRegistrar{authHandlers.AdminLoginRoutes},
			adminOrderHandlers.Routes,
			adminCatalogHandlers.Routes,
			authHandlers.AdminRoutes,
		)),
	}
	if hmacMiddleware != nil {
		routerOpts = append(routerOpts,
			handlers.WithWebhookRoutes(webhookHandlers.Routes),
			handlers.WithWebhookMiddlewares(hmacMiddleware),
		)
	} else {
		logger.Warn("auth: payment webhook secret not configured; webhook routes disabled")
	}
	if oidcMiddleware != nil {
		routerOpts = append(routerOpts,
			handlers.WithInternalRoutes(internalHandlers.Routes),
			handlers.WithInternalMiddlewares(oidcMiddleware),
		)
	}
	router := handlers.NewRouter(routerOpts...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("basePath", cfg.Server.BasePath),
			zap.String("environment", cfg.Security.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err, ok := <-serverErr:
		if ok && err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func buildIdempotencyMiddleware(cfg config.Config, provider *pfirestore.Provider) func(http.Handler) http.Handler {
	var store idempotency.Store
	if cfg.Security.Environment == "local" && cfg.Firestore.EmulatorHost == "" {
		store = idempotency.NewMemoryStore()
	} else {
		store = idempotency.NewFirestoreStore(provider)
	}
	return idempotency.Middleware(store,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL,
		auth.WithJWKSLogger(logger),
		auth.WithJWKSHTTPClient(&http.Client{Timeout: jwksFetchTimeout}),
	)
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger), auth.WithOIDCMetrics(metrics))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	webhookSecrets := make(auth.StaticSecrets)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		webhookSecrets[strings.ToLower(key)] = value
	}
	if _, ok := webhookSecrets[paymentWebhookSecret]; !ok {
		return nil
	}

	validator := auth.NewHMACValidator(webhookSecrets, auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(logger),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACWindow(cfg.Security.HMAC.ClockSkew, cfg.Security.HMAC.NonceTTL),
		auth.WithHMACMetrics(metrics),
	)
	return validator.RequireHMAC(paymentWebhookSecret)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, meter metric.Meter, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRETS_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRETS_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(meter),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{"Security.Tokens.Secret"}
	if !strings.EqualFold(strings.TrimSpace(env["API_PAYMENTS_UNSAFE_DEV_VERIFICATION"]), "true") {
		required = append(required, "Payments.VerificationSecret")
	}
	for _, key := range parseHMACSecretKeys(env["API_SECURITY_HMAC_SECRETS"]) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}
	return required
}

func parseHMACSecretKeys(raw string) []string {
	var keys []string
	for _, entry := range strings.Split(raw, ",") {
		name, _, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys
}
