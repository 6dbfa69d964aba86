package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerificationCodeTTL is how long an issued code stays valid.
const VerificationCodeTTL = 5 * time.Minute

type AccountRole string

const (
	RoleUser  AccountRole = "user"
	RoleAdmin AccountRole = "admin"
)

func (r AccountRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Account struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	FirstName    string      `json:"firstName,omitempty"`
	LastName     string      `json:"lastName,omitempty"`
	DateOfBirth  *time.Time  `json:"dateOfBirth,omitempty"`
	PasswordHash string      `json:"-"`
	Role         AccountRole `json:"role"`
	IsActive     bool        `json:"isActive"`
	IsVerified   bool        `json:"isVerified"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type Profile struct {
	AccountID              string         `json:"accountId"`
	Avatar                 string         `json:"avatar,omitempty"`
	Bio                    string         `json:"bio,omitempty"`
	Address                string         `json:"address,omitempty"`
	City                   string         `json:"city,omitempty"`
	Country                string         `json:"country,omitempty"`
	PostalCode             string         `json:"postalCode,omitempty"`
	Preferences            map[string]any `json:"preferences"`
	NewsletterSubscription bool           `json:"newsletterSubscription"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

// NewProfile returns the empty profile created alongside an account.
func NewProfile(accountID string, now time.Time) Profile {
	return Profile{
		AccountID:              accountID,
		Preferences:            map[string]any{},
		NewsletterSubscription: true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

type VerificationCode struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	IsUsed    bool      `json:"isUsed"`
}

// Expired reports whether more than VerificationCodeTTL has passed since
// issuance. A code exactly VerificationCodeTTL old is still valid.
func (c VerificationCode) Expired(now time.Time) bool {
	return now.Sub(c.CreatedAt) > VerificationCodeTTL
}

type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	Category      ProductCategory  `json:"category"`
	Article       string           `json:"article"`
	StockQuantity int              `json:"stockQuantity"`
	Image         string           `json:"image,omitempty"`
	IsAvailable   bool             `json:"isAvailable"`
	Weight        *decimal.Decimal `json:"weight,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

type Order struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"accountId"`
	OrderNumber     string          `json:"orderNumber"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress string          `json:"shippingAddress"`
	CustomerNotes   string          `json:"customerNotes"`
	CustomerEmail   string          `json:"customerEmail"`
	CustomerPhone   string          `json:"customerPhone"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Review struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"accountId"`
	ProductID    string    `json:"productId"`
	OrderID      string    `json:"orderId"`
	Rating       Rating    `json:"rating"`
	Title        string    `json:"title"`
	Comment      string    `json:"comment"`
	IsApproved   bool      `json:"isApproved"`
	HelpfulCount int       `json:"helpfulCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
