package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pearl/pkg/domain"
)

// SaveProduct creates or updates a product. A clashing article yields ErrDuplicate.
func (s *GormStore) SaveProduct(p domain.Product) error {
	model := productToModel(p)
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "price", "category", "article", "stock_quantity",
			"image", "is_available", "weight", "updated_at",
		}),
	}).Create(&model).Error
	return translate(err)
}

func (s *GormStore) GetProduct(id string) (domain.Product, bool, error) {
	var model ProductModel
	if err := s.db.Where("id = ?", id).Take(&model).Error; err != nil {
		if notFound(err) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, err
	}
	return productFromModel(model), true, nil
}

func (s *GormStore) HasProductArticle(article string) (bool, error) {
	var count int64
	if err := s.db.Model(&ProductModel{}).Where("article = ?", article).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListProducts returns products newest first.
func (s *GormStore) ListProducts(f ProductFilter) ([]domain.Product, error) {
	tx := s.db.Model(&ProductModel{}).Order("created_at DESC").Order("id")
	if f.Category != "" {
		tx = tx.Where("category = ?", string(f.Category))
	}
	if f.Available != nil {
		tx = tx.Where("is_available = ?", *f.Available)
	}
	if f.Query != "" {
		p := likePattern(f.Query)
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(article) LIKE ?", p, p)
	}
	var models []ProductModel
	if err := paginate(tx, f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(models))
	for _, m := range models {
		out = append(out, productFromModel(m))
	}
	return out, nil
}

// DeleteProduct refuses while any order item references the product.
// Reviews of the product go with it.
func (s *GormStore) DeleteProduct(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&OrderItemModel{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrProductInUse
		}
		if err := tx.Where("product_id = ?", id).Delete(&ReviewModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&ProductModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
