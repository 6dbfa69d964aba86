package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pearl/pkg/domain"
)

// CreateReview inserts a review, returning ErrDuplicate when the
// (account, product, order) triple already has one.
func (s *GormStore) CreateReview(r domain.Review) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ReviewModel{}).
			Where("account_id = ? AND product_id = ? AND order_id = ?", r.AccountID, r.ProductID, r.OrderID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		model := reviewToModel(r)
		return tx.Create(&model).Error
	})
	return translate(err)
}

// SaveReview updates the mutable fields of an existing review.
func (s *GormStore) SaveReview(r domain.Review) error {
	model := reviewToModel(r)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "title", "comment", "is_approved", "helpful_count", "updated_at"}),
	}).Create(&model).Error
	return translate(err)
}

func (s *GormStore) GetReview(id string) (domain.Review, bool, error) {
	var model ReviewModel
	if err := s.db.Where("id = ?", id).Take(&model).Error; err != nil {
		if notFound(err) {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

func (s *GormStore) ListReviews(f ReviewFilter) ([]domain.Review, error) {
	tx := s.db.Model(&ReviewModel{}).Order("created_at DESC").Order("id")
	if f.ProductID != "" {
		tx = tx.Where("product_id = ?", f.ProductID)
	}
	if f.AccountID != "" {
		tx = tx.Where("account_id = ?", f.AccountID)
	}
	if f.Approved != nil {
		tx = tx.Where("is_approved = ?", *f.Approved)
	}
	var models []ReviewModel
	if err := paginate(tx, f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(models))
	for _, m := range models {
		out = append(out, reviewFromModel(m))
	}
	return out, nil
}

func (s *GormStore) DeleteReview(id string) error {
	res := s.db.Where("id = ?", id).Delete(&ReviewModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementReviewHelpful bumps the helpful counter and returns its new value.
func (s *GormStore) IncrementReviewHelpful(id string) (int, error) {
	var count int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ReviewModel{}).
			Where("id = ?", id).
			UpdateColumn("helpful_count", gorm.Expr("helpful_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var model ReviewModel
		if err := tx.Select("helpful_count").Where("id = ?", id).Take(&model).Error; err != nil {
			return err
		}
		count = model.HelpfulCount
		return nil
	})
	return count, err
}
