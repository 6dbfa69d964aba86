package domain

import "github.com/shopspring/decimal"

// ComputeSubtotal overwrites Subtotal with UnitPrice * Quantity.
func (i *OrderItem) ComputeSubtotal() decimal.Decimal {
	i.Subtotal = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
	return i.Subtotal
}

// OrderTotal sums the subtotals of items as stored. Callers that need fresh
// subtotals must call ComputeSubtotal first.
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}
