package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pearl/pkg/domain"
)

var (
	// ErrNotFound is returned by mutations that target a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate record")
	// ErrProductInUse is returned when deleting a product still referenced by an order item.
	ErrProductInUse = errors.New("product is referenced by order items")
)

// Store defines persistence for accounts, catalog, orders and reviews.
// Lookups return (value, found, error); deletes return ErrNotFound when
// nothing matched.
type Store interface {
	// accounts
	RegisterAccount(acc domain.Account, profile domain.Profile, code domain.VerificationCode) error
	SaveAccount(domain.Account) error
	UpdateAccountColumns(a domain.Account, columns ...string) error
	GetAccountByID(id string) (domain.Account, bool, error)
	GetAccountByPhone(phone string) (domain.Account, bool, error)
	GetAccountByEmail(email string) (domain.Account, bool, error)
	HasAccountPhone(phone string) (bool, error)
	HasAccountEmail(email string) (bool, error)
	ListAccounts(AccountFilter) ([]domain.Account, error)
	DeleteAccount(id string) error

	// profiles
	GetProfile(accountID string) (domain.Profile, bool, error)
	SaveProfile(domain.Profile) error
	ListProfiles(ProfileFilter) ([]domain.Profile, error)

	// verification codes
	SaveVerificationCode(domain.VerificationCode) error
	LatestUnusedCode(accountID, code string) (domain.VerificationCode, bool, error)
	ConsumeVerificationCode(codeID, accountID string, at time.Time) (bool, error)
	ListVerificationCodes(CodeFilter) ([]domain.VerificationCode, error)

	// products
	SaveProduct(domain.Product) error
	GetProduct(id string) (domain.Product, bool, error)
	HasProductArticle(article string) (bool, error)
	ListProducts(ProductFilter) ([]domain.Product, error)
	DeleteProduct(id string) error

	// orders
	CreateOrder(domain.Order) error
	SaveOrder(domain.Order) error
	GetOrder(id string) (domain.Order, bool, error)
	ListOrders(OrderFilter) ([]domain.Order, error)
	DeleteOrder(id string) error
	SaveOrderItem(domain.OrderItem) (domain.OrderItem, error)
	ListOrderItems(orderID string) ([]domain.OrderItem, error)
	DeleteOrderItem(id string) error
	RecomputeOrderTotal(orderID string, at time.Time) (decimal.Decimal, error)

	// reviews
	CreateReview(domain.Review) error
	SaveReview(domain.Review) error
	GetReview(id string) (domain.Review, bool, error)
	ListReviews(ReviewFilter) ([]domain.Review, error)
	DeleteReview(id string) error
	IncrementReviewHelpful(id string) (int, error)

	// Wipe removes every row. Used by the fixture generator.
	Wipe() error
	// Ping checks database connectivity.
	Ping(ctx context.Context) error
}

// Page bounds a listing. Limit <= 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

type AccountFilter struct {
	Page
	Query    string // substring of username, email or phone
	Verified *bool
	Role     domain.AccountRole
}

type ProfileFilter struct {
	Page
	City    string
	Country string
}

type CodeFilter struct {
	Page
	AccountID string
	Used      *bool
	Since     time.Time
}

type ProductFilter struct {
	Page
	Category  domain.ProductCategory
	Available *bool
	Query     string
}

type OrderFilter struct {
	Page
	AccountID string
	Status    domain.OrderStatus
}

type ReviewFilter struct {
	Page
	ProductID string
	AccountID string
	Approved  *bool
}
