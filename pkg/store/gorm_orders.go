package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pearl/pkg/domain"
)

// CreateOrder inserts the order row and its items. Item subtotals are
// recomputed; the order total is stored as given and must be brought up to
// date with RecomputeOrderTotal.
func (s *GormStore) CreateOrder(o domain.Order) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		om := orderToModel(o)
		if err := tx.Create(&om).Error; err != nil {
			return err
		}
		if len(o.Items) == 0 {
			return nil
		}
		items := make([]OrderItemModel, 0, len(o.Items))
		for _, item := range o.Items {
			item.OrderID = o.ID
			item.ComputeSubtotal()
			items = append(items, itemToModel(item))
		}
		return tx.CreateInBatches(&items, 200).Error
	})
	return translate(err)
}

// SaveOrder updates the order header. Items are untouched.
func (s *GormStore) SaveOrder(o domain.Order) error {
	model := orderToModel(o)
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "payment_status", "total_amount", "shipping_address",
			"customer_notes", "customer_email", "customer_phone", "updated_at",
		}),
	}).Create(&model).Error
	return translate(err)
}

// GetOrder loads an order with its items.
func (s *GormStore) GetOrder(id string) (domain.Order, bool, error) {
	var model OrderModel
	if err := s.db.Where("id = ?", id).Take(&model).Error; err != nil {
		if notFound(err) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	order := orderFromModel(model)
	items, err := s.ListOrderItems(id)
	if err != nil {
		return domain.Order{}, false, err
	}
	order.Items = items
	return order, true, nil
}

// ListOrders returns orders newest first, items attached.
func (s *GormStore) ListOrders(f OrderFilter) ([]domain.Order, error) {
	tx := s.db.Model(&OrderModel{}).Order("created_at DESC").Order("id")
	if f.AccountID != "" {
		tx = tx.Where("account_id = ?", f.AccountID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	var models []OrderModel
	if err := paginate(tx, f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return []domain.Order{}, nil
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var itemModels []OrderItemModel
	if err := s.db.Where("order_id IN ?", ids).Order("id").Find(&itemModels).Error; err != nil {
		return nil, err
	}
	byOrder := make(map[string][]domain.OrderItem, len(models))
	for _, im := range itemModels {
		byOrder[im.OrderID] = append(byOrder[im.OrderID], itemFromModel(im))
	}
	out := make([]domain.Order, 0, len(models))
	for _, m := range models {
		o := orderFromModel(m)
		if items, ok := byOrder[m.ID]; ok {
			o.Items = items
		}
		out = append(out, o)
	}
	return out, nil
}

// DeleteOrder removes the order, its items and reviews.
func (s *GormStore) DeleteOrder(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&ReviewModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&OrderItemModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&OrderModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SaveOrderItem writes an item after recomputing its subtotal. Any
// caller-supplied subtotal is discarded.
func (s *GormStore) SaveOrderItem(item domain.OrderItem) (domain.OrderItem, error) {
	item.ComputeSubtotal()
	model := itemToModel(item)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id", "quantity", "unit_price", "subtotal"}),
	}).Create(&model).Error
	if err != nil {
		return domain.OrderItem{}, translate(err)
	}
	return item, nil
}

func (s *GormStore) ListOrderItems(orderID string) ([]domain.OrderItem, error) {
	var models []OrderItemModel
	if err := s.db.Where("order_id = ?", orderID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OrderItem, 0, len(models))
	for _, m := range models {
		out = append(out, itemFromModel(m))
	}
	return out, nil
}

func (s *GormStore) DeleteOrderItem(id string) error {
	res := s.db.Where("id = ?", id).Delete(&OrderItemModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeOrderTotal sets the order total to the sum of its item subtotals
// and returns the new value.
func (s *GormStore) RecomputeOrderTotal(orderID string, at time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var models []OrderItemModel
		if err := tx.Where("order_id = ?", orderID).Find(&models).Error; err != nil {
			return err
		}
		items := make([]domain.OrderItem, 0, len(models))
		for _, m := range models {
			items = append(items, itemFromModel(m))
		}
		total = domain.OrderTotal(items)
		res := tx.Model(&OrderModel{}).
			Where("id = ?", orderID).
			Updates(map[string]any{"total_amount": total, "updated_at": at.UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
