package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/techmart/storefront-api/internal/domain"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// TransactionRequest describes the remote transaction to create for an order.
type TransactionRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Transaction is the provider's answer to a successful create call.
type Transaction struct {
	Reference    string
	ClientSecret string
}

// Provider creates remote payment transactions.
type Provider interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error)
	// ClientKey is the publishable key handed to browsers to complete the payment.
	ClientKey() string
}

// Outcome tags a TransactionResult.
type Outcome int

const (
	// OutcomeCreated means the provider issued a reference.
	OutcomeCreated Outcome = iota + 1
	// OutcomeProviderUnavailable means the provider could not be reached or answered badly.
	OutcomeProviderUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeProviderUnavailable:
		return "provider_unavailable"
	default:
		return "unknown"
	}
}

// TransactionResult is either Created (Reference set) or ProviderUnavailable (Cause set).
type TransactionResult struct {
	Outcome      Outcome
	Provider     string
	Reference    string
	ClientSecret string
	ClientKey    string
	Cause        error
}

// Created reports whether the provider issued a reference.
func (r TransactionResult) Created() bool { return r.Outcome == OutcomeCreated }

// PaymentContext carries the routing hints for a transaction.
type PaymentContext struct {
	Method   domain.PaymentMethod
	Currency string
}

// ManagerLogger receives structured provider events.
type ManagerLogger func(ctx context.Context, event string, fields map[string]any)

// Manager routes transaction creation to the provider registered for a payment method.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	methodRoutes    map[domain.PaymentMethod]string
	timeout         time.Duration
	logger          ManagerLogger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider selects the provider used when no method route matches.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(name))
	}
}

// WithMethodRoute sends a payment method to a named provider.
func WithMethodRoute(method domain.PaymentMethod, provider string) ManagerOption {
	return func(m *Manager) {
		m.methodRoutes[method] = strings.ToLower(strings.TrimSpace(provider))
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithManagerLogger installs a logger.
func WithManagerLogger(logger ManagerLogger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a Manager. An empty provider map is allowed; every call then reports
// ProviderUnavailable.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		providers:       make(map[string]Provider, len(providers)),
		defaultProvider: "stripe",
		methodRoutes:    make(map[domain.PaymentMethod]string),
		timeout:         10 * time.Second,
		logger:          func(context.Context, string, map[string]any) {},
	}
	for name, provider := range providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = provider
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(pc PaymentContext) (string, Provider, error) {
	name := m.defaultProvider
	if routed, ok := m.methodRoutes[pc.Method]; ok {
		name = routed
	}
	provider, ok := m.providers[name]
	if !ok {
		return name, nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return name, provider, nil
}

// ClientKey returns the publishable key of the provider that would serve the context.
func (m *Manager) ClientKey(pc PaymentContext) string {
	if _, provider, err := m.resolve(pc); err == nil {
		return provider.ClientKey()
	}
	return ""
}

// CreateTransaction asks the routed provider for a transaction. It never returns an error:
// failures are reported as OutcomeProviderUnavailable so callers can fall back.
func (m *Manager) CreateTransaction(ctx context.Context, pc PaymentContext, req TransactionRequest) TransactionResult {
	name, provider, err := m.resolve(pc)
	if err != nil {
		return TransactionResult{Outcome: OutcomeProviderUnavailable, Provider: name, Cause: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	txn, err := provider.CreateTransaction(callCtx, req)
	fields := map[string]any{
		"provider":   name,
		"orderId":    req.OrderID,
		"durationMs": time.Since(start).Milliseconds(),
	}
	if err == nil && strings.TrimSpace(txn.Reference) == "" {
		err = errors.New("payments: provider returned an empty reference")
	}
	if err != nil {
		fields["error"] = err.Error()
		m.logger(ctx, "payments.transaction.failed", fields)
		return TransactionResult{Outcome: OutcomeProviderUnavailable, Provider: name, Cause: err}
	}

	fields["reference"] = txn.Reference
	m.logger(ctx, "payments.transaction.created", fields)
	return TransactionResult{
		Outcome:      OutcomeCreated,
		Provider:     name,
		Reference:    txn.Reference,
		ClientSecret: txn.ClientSecret,
		ClientKey:    provider.ClientKey(),
	}
}
