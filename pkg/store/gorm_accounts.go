package store

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pearl/pkg/domain"
)

// RegisterAccount stores a new account with its profile and first code.
func (s *GormStore) RegisterAccount(acc domain.Account, profile domain.Profile, code domain.VerificationCode) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		am := accountToModel(acc)
		if err := tx.Create(&am).Error; err != nil {
			return err
		}
		pm := profileToModel(profile)
		if err := tx.Create(&pm).Error; err != nil {
			return err
		}
		cm := codeToModel(code)
		return tx.Create(&cm).Error
	})
	return translate(err)
}

// SaveAccount creates or updates an account.
func (s *GormStore) SaveAccount(a domain.Account) error {
	model := accountToModel(a)
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "email", "phone", "first_name", "last_name", "date_of_birth",
			"password_hash", "role", "is_active", "is_verified", "updated_at",
		}),
	}).Create(&model).Error
	return translate(err)
}

// UpdateAccountColumns writes only the named columns of a. Columns not listed
// keep their stored values, so a concurrent verification or moderation change
// is never overwritten with a stale copy.
func (s *GormStore) UpdateAccountColumns(a domain.Account, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	model := accountToModel(a)
	res := s.db.Model(&AccountModel{ID: a.ID}).Select(columns).Updates(&model)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) getAccount(query string, arg any) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.Where(query, arg).Take(&model).Error; err != nil {
		if notFound(err) {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

func (s *GormStore) GetAccountByID(id string) (domain.Account, bool, error) {
	return s.getAccount("id = ?", id)
}

func (s *GormStore) GetAccountByPhone(phone string) (domain.Account, bool, error) {
	return s.getAccount("phone = ?", phone)
}

func (s *GormStore) GetAccountByEmail(email string) (domain.Account, bool, error) {
	return s.getAccount("LOWER(email) = LOWER(?)", email)
}

func (s *GormStore) HasAccountPhone(phone string) (bool, error) {
	var count int64
	if err := s.db.Model(&AccountModel{}).Where("phone = ?", phone).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) HasAccountEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&AccountModel{}).Where("LOWER(email) = LOWER(?)", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAccounts returns accounts newest first.
func (s *GormStore) ListAccounts(f AccountFilter) ([]domain.Account, error) {
	tx := s.db.Model(&AccountModel{}).Order("created_at DESC")
	if f.Query != "" {
		p := likePattern(f.Query)
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", p, p, p)
	}
	if f.Verified != nil {
		tx = tx.Where("is_verified = ?", *f.Verified)
	}
	if f.Role != "" {
		tx = tx.Where("role = ?", string(f.Role))
	}
	var models []AccountModel
	if err := paginate(tx, f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(models))
	for _, m := range models {
		out = append(out, accountFromModel(m))
	}
	return out, nil
}

// DeleteAccount removes an account together with its profile, codes,
// reviews and orders (with their items and reviews).
func (s *GormStore) DeleteAccount(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		orderIDs := tx.Model(&OrderModel{}).Select("id").Where("account_id = ?", id)
		if err := tx.Where("account_id = ? OR order_id IN (?)", id, orderIDs).Delete(&ReviewModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id IN (?)", orderIDs).Delete(&OrderItemModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&OrderModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&VerificationCodeModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&ProfileModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&AccountModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) GetProfile(accountID string) (domain.Profile, bool, error) {
	var model ProfileModel
	if err := s.db.Where("account_id = ?", accountID).Take(&model).Error; err != nil {
		if notFound(err) {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// SaveProfile creates or updates the profile keyed by account.
func (s *GormStore) SaveProfile(p domain.Profile) error {
	model := profileToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"avatar", "bio", "address", "city", "country", "postal_code",
			"preferences", "newsletter_subscription", "updated_at",
		}),
	}).Create(&model).Error
}

func (s *GormStore) ListProfiles(f ProfileFilter) ([]domain.Profile, error) {
	tx := s.db.Model(&ProfileModel{}).Order("created_at DESC")
	if f.City != "" {
		tx = tx.Where("LOWER(city) = LOWER(?)", f.City)
	}
	if f.Country != "" {
		tx = tx.Where("LOWER(country) = LOWER(?)", f.Country)
	}
	var models []ProfileModel
	if err := paginate(tx, f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Profile, 0, len(models))
	for _, m := range models {
		out = append(out, profileFromModel(m))
	}
	return out, nil
}

func (s *GormStore) SaveVerificationCode(c domain.VerificationCode) error {
	model := codeToModel(c)
	return translate(s.db.Create(&model).Error)
}

// LatestUnusedCode returns the most recently issued unused code for the
// account whose value matches code.
func (s *GormStore) LatestUnusedCode(accountID, code string) (domain.VerificationCode, bool, error) {
	var model VerificationCodeModel
	err := s.db.
		Where("account_id = ? AND code = ? AND is_used = ?", accountID, code, false).
		Order("created_at DESC").
		Take(&model).Error
	if err != nil {
		if notFound(err) {
			return domain.VerificationCode{}, false, nil
		}
		return domain.VerificationCode{}, false, err
	}
	return codeFromModel(model), true, nil
}

// ConsumeVerificationCode marks the code used only if it is still unused and
// flips the account to verified in the same transaction. It reports false
// when another caller claimed the code first.
func (s *GormStore) ConsumeVerificationCode(codeID, accountID string, at time.Time) (bool, error) {
	claimed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&VerificationCodeModel{}).
			Where("id = ? AND account_id = ? AND is_used = ?", codeID, accountID, false).
			Update("is_used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&AccountModel{}).
			Where("id = ?", accountID).
			Updates(map[string]any{"is_verified": true, "updated_at": at.UTC()}).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *GormStore) ListVerificationCodes(f CodeFilter) ([]domain.VerificationCode, error) {
	tx := s.db.Model(&VerificationCodeModel{}).Order("created_at DESC")
	if f.AccountID != "" {
		tx = tx.Where("account_id = ?", f.AccountID)
	}
	if f.Used != nil {
		tx = tx.Where("is_used = ?", *f.Used)
	}
	if !f.Since.IsZero() {
		tx = tx.Where("created_at >= ?", f.Since.UTC())
	}
	var models []VerificationCodeModel
	if err := paginate(tx, f.Page).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.VerificationCode, 0, len(models))
	for _, m := range models {
		out = append(out, codeFromModel(m))
	}
	return out, nil
}
