package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type AccountModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"not null;index"`
	Email        string `gorm:"uniqueIndex;not null"`
	Phone        string `gorm:"uniqueIndex;not null;size:20"`
	FirstName    string
	LastName     string
	DateOfBirth  *time.Time
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	IsActive     bool      `gorm:"not null"`
	IsVerified   bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProfileModel struct {
	AccountID              string `gorm:"primaryKey"`
	Avatar                 string
	Bio                    string `gorm:"size:500"`
	Address                string
	City                   string `gorm:"size:100;index"`
	Country                string `gorm:"size:100;index"`
	PostalCode             string `gorm:"size:20"`
	Preferences            datatypes.JSON
	NewsletterSubscription bool      `gorm:"not null"`
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time
}

type VerificationCodeModel struct {
	ID        string    `gorm:"primaryKey"`
	AccountID string    `gorm:"not null;index"`
	Code      string    `gorm:"not null;size:6"`
	CreatedAt time.Time `gorm:"not null;index"`
	IsUsed    bool      `gorm:"not null"`
}

type ProductModel struct {
	ID            string          `gorm:"primaryKey"`
	Name          string          `gorm:"not null;size:200"`
	Description   string          `gorm:"type:text"`
	Price         decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Category      string          `gorm:"not null;size:40;index"`
	Article       string          `gorm:"uniqueIndex;not null;size:50"`
	StockQuantity int             `gorm:"not null"`
	Image         string
	IsAvailable   bool             `gorm:"not null"`
	Weight        *decimal.Decimal `gorm:"type:numeric(8,2)"`
	CreatedAt     time.Time        `gorm:"not null;index"`
	UpdatedAt     time.Time
}

type OrderModel struct {
	ID              string          `gorm:"primaryKey"`
	AccountID       string          `gorm:"not null;index"`
	OrderNumber     string          `gorm:"uniqueIndex;not null;size:20"`
	Status          string          `gorm:"not null;size:20;index"`
	PaymentStatus   string          `gorm:"not null;size:20"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	ShippingAddress string          `gorm:"type:text"`
	CustomerNotes   string          `gorm:"type:text"`
	CustomerEmail   string
	CustomerPhone   string    `gorm:"size:20"`
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time
}

type OrderItemModel struct {
	ID        string          `gorm:"primaryKey"`
	OrderID   string          `gorm:"not null;index"`
	ProductID string          `gorm:"not null;index"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Subtotal  decimal.Decimal `gorm:"type:numeric(10,2);not null"`
}

type ReviewModel struct {
	ID           string    `gorm:"primaryKey"`
	AccountID    string    `gorm:"not null;uniqueIndex:idx_review_triple"`
	ProductID    string    `gorm:"not null;uniqueIndex:idx_review_triple;index"`
	OrderID      string    `gorm:"not null;uniqueIndex:idx_review_triple"`
	Rating       int       `gorm:"not null"`
	Title        string    `gorm:"size:200"`
	Comment      string    `gorm:"type:text"`
	IsApproved   bool      `gorm:"not null"`
	HelpfulCount int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time
}

func allModels() []any {
	return []any{
		&AccountModel{},
		&ProfileModel{},
		&VerificationCodeModel{},
		&ProductModel{},
		&OrderModel{},
		&OrderItemModel{},
		&ReviewModel{},
	}
}
