package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/techmart/storefront-api/internal/domain"
	pfirestore "github.com/techmart/storefront-api/internal/platform/firestore"
	"github.com/techmart/storefront-api/internal/repositories"
)

const (
	customerCollection = "customers"
	adminCollection    = "admins"
)

// CustomerRepository stores storefront accounts keyed by ID with a unique email.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[domain.CustomerAccount]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		base: pfirestore.NewBaseRepository[domain.CustomerAccount](provider, customerCollection, encodeCustomer, decodeCustomer),
	}, nil
}

// Insert creates the account, failing with a conflict when the email is taken.
func (r *CustomerRepository) Insert(ctx context.Context, account domain.CustomerAccount) error {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	return insertUnique(ctx, r.base, account.ID, account, "email", account.Email)
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.CustomerAccount, error) {
	return findOne(ctx, r.base, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *CustomerRepository) FindByUsername(ctx context.Context, username string) (domain.CustomerAccount, error) {
	return findOne(ctx, r.base, "username", strings.TrimSpace(username))
}

type customerDocument struct {
	Username     string    `firestore:"username"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"password_hash"`
	CreatedAt    time.Time `firestore:"created_at"`
}

func encodeCustomer(a domain.CustomerAccount) (map[string]any, error) {
	return map[string]any{
		"username":      a.Username,
		"email":         a.Email,
		"password_hash": a.PasswordHash,
		"created_at":    a.CreatedAt.UTC(),
	}, nil
}

func decodeCustomer(snap *firestore.DocumentSnapshot) (domain.CustomerAccount, error) {
	var doc customerDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CustomerAccount{}, err
	}
	return domain.CustomerAccount{
		ID:           snap.Ref.ID,
		Username:     doc.Username,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, nil
}

// AdminRepository stores back-office accounts with a unique username.
type AdminRepository struct {
	base *pfirestore.BaseRepository[domain.AdminAccount]
}

var _ repositories.AdminRepository = (*AdminRepository)(nil)

// NewAdminRepository constructs a Firestore-backed admin repository.
func NewAdminRepository(provider *pfirestore.Provider) (*AdminRepository, error) {
	if provider == nil {
		return nil, errors.New("admin repository requires firestore provider")
	}
	return &AdminRepository{
		base: pfirestore.NewBaseRepository[domain.AdminAccount](provider, adminCollection, encodeAdmin, decodeAdmin),
	}, nil
}

func (r *AdminRepository) Insert(ctx context.Context, account domain.AdminAccount) error {
	account.Username = strings.TrimSpace(account.Username)
	return insertUnique(ctx, r.base, account.ID, account, "username", account.Username)
}

func (r *AdminRepository) FindByUsername(ctx context.Context, username string) (domain.AdminAccount, error) {
	return findOne(ctx, r.base, "username", strings.TrimSpace(username))
}

type adminDocument struct {
	Username     string    `firestore:"username"`
	PasswordHash string    `firestore:"password_hash"`
	CreatedAt    time.Time `firestore:"created_at"`
}

func encodeAdmin(a domain.AdminAccount) (map[string]any, error) {
	return map[string]any{
		"username":      a.Username,
		"password_hash": a.PasswordHash,
		"created_at":    a.CreatedAt.UTC(),
	}, nil
}

func decodeAdmin(snap *firestore.DocumentSnapshot) (domain.AdminAccount, error) {
	var doc adminDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.AdminAccount{}, err
	}
	return domain.AdminAccount{
		ID:           snap.Ref.ID,
		Username:     doc.Username,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, nil
}

// insertUnique creates the document inside a transaction after checking that no other document
// carries the same value for field.
func insertUnique[T any](ctx context.Context, base *pfirestore.BaseRepository[T], id string, value T, field, fieldValue string) error {
	ref, err := base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	payload, err := base.Encode(value)
	if err != nil {
		return err
	}
	query := ref.Parent.Where(field, "==", fieldValue).Limit(1)

	return base.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return status.Errorf(codes.AlreadyExists, "%s already registered", field)
		}
		return tx.Create(ref, payload)
	})
}

func findOne[T any](ctx context.Context, base *pfirestore.BaseRepository[T], field, value string) (T, error) {
	var zero T
	results, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, pfirestore.WrapError(field+".lookup", status.Error(codes.NotFound, "no matching document"))
	}
	return results[0], nil
}
