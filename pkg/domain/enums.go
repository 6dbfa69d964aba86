package domain

import (
	"fmt"
	"strings"
)

type ProductCategory string

const (
	CategoryMakeup      ProductCategory = "Makeup"
	CategorySkinCare    ProductCategory = "Skin care"
	CategoryHairCare    ProductCategory = "Hair care"
	CategoryManicure    ProductCategory = "Manicure and pedicure"
	CategoryAccessories ProductCategory = "Accessories"
	CategoryPerfumery   ProductCategory = "Perfumery"
	CategoryOther       ProductCategory = "Other"
)

// ProductCategories lists every category in display order.
var ProductCategories = []ProductCategory{
	CategoryMakeup,
	CategorySkinCare,
	CategoryHairCare,
	CategoryManicure,
	CategoryAccessories,
	CategoryPerfumery,
	CategoryOther,
}

func (c ProductCategory) Valid() bool {
	for _, known := range ProductCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseProductCategory matches case-insensitively. Empty input means Other.
func ParseProductCategory(raw string) (ProductCategory, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CategoryOther, nil
	}
	for _, known := range ProductCategories {
		if strings.EqualFold(raw, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown product category %q", raw)
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var PaymentStatuses = []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded}

func (s PaymentStatus) Valid() bool {
	for _, known := range PaymentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown payment status %q", raw)
	}
	return s, nil
}

// Rating is a review score from 1 (terrible) to 5 (excellent).
type Rating int

const (
	RatingMin Rating = 1
	RatingMax Rating = 5
)

var ratingLabels = map[Rating]string{
	1: "Terrible",
	2: "Poor",
	3: "Average",
	4: "Good",
	5: "Excellent",
}

func (r Rating) Valid() bool {
	return r >= RatingMin && r <= RatingMax
}

func (r Rating) Label() string {
	return ratingLabels[r]
}

func ParseRating(n int) (Rating, error) {
	r := Rating(n)
	if !r.Valid() {
		return 0, fmt.Errorf("rating must be between %d and %d", RatingMin, RatingMax)
	}
	return r, nil
}
