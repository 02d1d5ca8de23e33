package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/repositories"
)

const (
	customerIDPrefix = "cus_"
	adminIDPrefix    = "adm_"

	minPasswordLength = 8
	maxPasswordLength = 72
)

var (
	// ErrIdentityInvalidInput signals invalid registration or login data.
	ErrIdentityInvalidInput = errors.New("identity: invalid input")
	// ErrIdentityConflict indicates the account already exists.
	ErrIdentityConflict = errors.New("identity: account already exists")
	// ErrInvalidCredentials indicates the identifier or password is wrong.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
)

// TokenIssuer signs session tokens. auth.TokenManager satisfies it.
type TokenIssuer interface {
	Issue(subject, role, email string) (auth.IssuedToken, error)
}

// IdentityServiceDeps bundles collaborators required to construct the identity service.
type IdentityServiceDeps struct {
	Customers       repositories.CustomerRepository
	Admins          repositories.AdminRepository
	Tokens          TokenIssuer
	HashPassword    func(password string) (string, error)
	ComparePassword func(hash, password string) error
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type identityService struct {
	customers repositories.CustomerRepository
	admins    repositories.AdminRepository
	tokens    TokenIssuer
	hash      func(string) (string, error)
	compare   func(string, string) error
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewIdentityService wires dependencies into a concrete IdentityService implementation.
func NewIdentityService(deps IdentityServiceDeps) (IdentityService, error) {
	if deps.Customers == nil {
		return nil, errors.New("identity service: customer repository is required")
	}
	if deps.Admins == nil {
		return nil, errors.New("identity service: admin repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("identity service: token issuer is required")
	}

	hash := deps.HashPassword
	if hash == nil {
		hash = auth.HashPassword
	}
	compare := deps.ComparePassword
	if compare == nil {
		compare = auth.ComparePassword
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

	return &identityService{
		customers: deps.Customers,
		admins:    deps.Admins,
		tokens:    deps.Tokens,
		hash:      hash,
		compare:   compare,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *identityService) RegisterCustomer(ctx context.Context, cmd RegisterCustomerCommand) (CustomerAccount, error) {
	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		return CustomerAccount{}, fmt.Errorf("%w: username is required", ErrIdentityInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return CustomerAccount{}, fmt.Errorf("%w: email is invalid", ErrIdentityInvalidInput)
	}
	if err := validatePassword(cmd.Password); err != nil {
		return CustomerAccount{}, err
	}
	hash, err := s.hash(cmd.Password)
	if err != nil {
		return CustomerAccount{}, err
	}

	account := CustomerAccount{
		ID:           customerIDPrefix + s.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.clock(),
	}
	if err := s.customers.Insert(ctx, account); err != nil {
		return CustomerAccount{}, mapIdentityRepositoryError(err)
	}
	s.logger(ctx, "identity.customer.registered", map[string]any{"customerId": account.ID})
	return account, nil
}

func (s *identityService) LoginCustomer(ctx context.Context, cmd LoginCommand) (Session, error) {
	identifier := strings.TrimSpace(cmd.Identifier)
	if identifier == "" || cmd.Password == "" {
		return Session{}, fmt.Errorf("%w: identifier and password are required", ErrIdentityInvalidInput)
	}

	var (
		account CustomerAccount
		err     error
	)
	if strings.Contains(identifier, "@") {
		account, err = s.customers.FindByEmail(ctx, strings.ToLower(identifier))
	} else {
		account, err = s.customers.FindByUsername(ctx, identifier)
	}
	if err != nil {
		return Session{}, s.credentialError(ctx, err, "customer")
	}
	if err := s.compare(account.PasswordHash, cmd.Password); err != nil {
		return Session{}, s.credentialError(ctx, err, "customer")
	}

	issued, err := s.tokens.Issue(account.Email, auth.RoleCustomer, account.Email)
	if err != nil {
		return Session{}, fmt.Errorf("identity: issue token: %w", err)
	}
	s.logger(ctx, "identity.customer.login", map[string]any{"customerId": account.ID})
	return Session{
		AccessToken: issued.Token,
		ExpiresAt:   issued.ExpiresAt,
		Subject:     account.Email,
		Role:        auth.RoleCustomer,
		Email:       account.Email,
		Username:    account.Username,
	}, nil
}

func (s *identityService) RegisterAdmin(ctx context.Context, cmd RegisterAdminCommand) (AdminAccount, error) {
	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		return AdminAccount{}, fmt.Errorf("%w: username is required", ErrIdentityInvalidInput)
	}
	if err := validatePassword(cmd.Password); err != nil {
		return AdminAccount{}, err
	}
	hash, err := s.hash(cmd.Password)
	if err != nil {
		return AdminAccount{}, err
	}

	account := AdminAccount{
		ID:           adminIDPrefix + s.newID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.clock(),
	}
	if err := s.admins.Insert(ctx, account); err != nil {
		return AdminAccount{}, mapIdentityRepositoryError(err)
	}
	s.logger(ctx, "identity.admin.registered", map[string]any{"adminId": account.ID})
	return account, nil
}

func (s *identityService) LoginAdmin(ctx context.Context, cmd LoginCommand) (Session, error) {
	username := strings.TrimSpace(cmd.Identifier)
	if username == "" || cmd.Password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", ErrIdentityInvalidInput)
	}
	account, err := s.admins.FindByUsername(ctx, username)
	if err != nil {
		return Session{}, s.credentialError(ctx, err, "admin")
	}
	if err := s.compare(account.PasswordHash, cmd.Password); err != nil {
		return Session{}, s.credentialError(ctx, err, "admin")
	}

	issued, err := s.tokens.Issue(account.Username, auth.RoleAdmin, "")
	if err != nil {
		return Session{}, fmt.Errorf("identity: issue token: %w", err)
	}
	s.logger(ctx, "identity.admin.login", map[string]any{"adminId": account.ID})
	return Session{
		AccessToken: issued.Token,
		ExpiresAt:   issued.ExpiresAt,
		Subject:     account.Username,
		Role:        auth.RoleAdmin,
		Username:    account.Username,
	}, nil
}

// EnsureBootstrapAdmin seeds the first administrator. It reports whether an account was created.
func (s *identityService) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	if _, err := s.admins.FindByUsername(ctx, username); err == nil {
		return false, nil
	} else if !isRepositoryNotFound(err) {
		return false, mapIdentityRepositoryError(err)
	}

	if _, err := s.RegisterAdmin(ctx, RegisterAdminCommand{Username: username, Password: password}); err != nil {
		if errors.Is(err, ErrIdentityConflict) {
			return false, nil
		}
		return false, err
	}
	s.logger(ctx, "identity.admin.bootstrapped", map[string]any{"username": username})
	return true, nil
}

// credentialError hides whether the account exists.
func (s *identityService) credentialError(ctx context.Context, err error, kind string) error {
	if isRepositoryNotFound(err) || errors.Is(err, auth.ErrPasswordMismatch) {
		s.logger(ctx, "identity.login.failed", map[string]any{"kind": kind})
		return ErrInvalidCredentials
	}
	return mapIdentityRepositoryError(err)
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrIdentityInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrIdentityInvalidInput, maxPasswordLength)
	}
	return nil
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func mapIdentityRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrIdentityConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("identity: repository unavailable: %w", err)
		}
	}

	return err
}
