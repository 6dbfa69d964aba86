package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pearl/pkg/domain"
)

const migrateLockID int64 = 51730417

// GormStore implements Store using GORM. Production runs on Postgres.
type GormStore struct {
	db *gorm.DB
}

// GormConfig is the gorm configuration shared by every dialect.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// NewGormStore opens Postgres and migrates under an advisory lock so that
// several replicas can start at once.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(allModels()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := ensureForeignKeys(tx); err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an already opened connection and migrates it
// without locking or dialect specific constraints.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type foreignKey struct {
	table, column, refTable, onDelete string
}

var foreignKeys = []foreignKey{
	{"profile_models", "account_id", "account_models", "CASCADE"},
	{"verification_code_models", "account_id", "account_models", "CASCADE"},
	{"order_models", "account_id", "account_models", "CASCADE"},
	{"order_item_models", "order_id", "order_models", "CASCADE"},
	{"order_item_models", "product_id", "product_models", "RESTRICT"},
	{"review_models", "account_id", "account_models", "CASCADE"},
	{"review_models", "product_id", "product_models", "CASCADE"},
	{"review_models", "order_id", "order_models", "CASCADE"},
}

func ensureForeignKeys(tx *gorm.DB) error {
	for _, fk := range foreignKeys {
		name := fmt.Sprintf("%s_%s_fkey", fk.table, fk.column)
		stmt := fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = '%[1]s'
					AND constraint_name = '%[2]s'
				) THEN
					ALTER TABLE %[1]s
					ADD CONSTRAINT %[2]s
					FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE %[5]s;
				END IF;
			END $$;
		`, fk.table, name, fk.column, fk.refTable, fk.onDelete)
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Wipe deletes every row, children first.
func (s *GormStore) Wipe() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&ReviewModel{},
			&OrderItemModel{},
			&OrderModel{},
			&ProductModel{},
			&VerificationCodeModel{},
			&ProfileModel{},
			&AccountModel{},
		} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func paginate(tx *gorm.DB, p Page) *gorm.DB {
	if p.Limit > 0 {
		tx = tx.Limit(p.Limit)
	}
	if p.Offset > 0 {
		tx = tx.Offset(p.Offset)
	}
	return tx
}

func likePattern(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(q)
	return "%" + q + "%"
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func accountToModel(a domain.Account) AccountModel {
	return AccountModel{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		Phone:        a.Phone,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		DateOfBirth:  a.DateOfBirth,
		PasswordHash: a.PasswordHash,
		Role:         string(a.Role),
		IsActive:     a.IsActive,
		IsVerified:   a.IsVerified,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func accountFromModel(m AccountModel) domain.Account {
	role := domain.AccountRole(m.Role)
	if !role.Valid() {
		role = domain.RoleUser
	}
	return domain.Account{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		Phone:        m.Phone,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		DateOfBirth:  m.DateOfBirth,
		PasswordHash: m.PasswordHash,
		Role:         role,
		IsActive:     m.IsActive,
		IsVerified:   m.IsVerified,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func profileToModel(p domain.Profile) ProfileModel {
	prefs := p.Preferences
	if prefs == nil {
		prefs = map[string]any{}
	}
	raw, _ := json.Marshal(prefs)
	return ProfileModel{
		AccountID:              p.AccountID,
		Avatar:                 p.Avatar,
		Bio:                    p.Bio,
		Address:                p.Address,
		City:                   p.City,
		Country:                p.Country,
		PostalCode:             p.PostalCode,
		Preferences:            raw,
		NewsletterSubscription: p.NewsletterSubscription,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.Profile {
	prefs := map[string]any{}
	if len(m.Preferences) > 0 {
		_ = json.Unmarshal(m.Preferences, &prefs)
	}
	return domain.Profile{
		AccountID:              m.AccountID,
		Avatar:                 m.Avatar,
		Bio:                    m.Bio,
		Address:                m.Address,
		City:                   m.City,
		Country:                m.Country,
		PostalCode:             m.PostalCode,
		Preferences:            prefs,
		NewsletterSubscription: m.NewsletterSubscription,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func codeToModel(c domain.VerificationCode) VerificationCodeModel {
	return VerificationCodeModel{
		ID:        c.ID,
		AccountID: c.AccountID,
		Code:      c.Code,
		CreatedAt: c.CreatedAt,
		IsUsed:    c.IsUsed,
	}
}

func codeFromModel(m VerificationCodeModel) domain.VerificationCode {
	return domain.VerificationCode{
		ID:        m.ID,
		AccountID: m.AccountID,
		Code:      m.Code,
		CreatedAt: m.CreatedAt,
		IsUsed:    m.IsUsed,
	}
}

func productToModel(p domain.Product) ProductModel {
	return ProductModel{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		Category:      string(p.Category),
		Article:       p.Article,
		StockQuantity: p.StockQuantity,
		Image:         p.Image,
		IsAvailable:   p.IsAvailable,
		Weight:        p.Weight,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func productFromModel(m ProductModel) domain.Product {
	return domain.Product{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Price:         m.Price,
		Category:      domain.ProductCategory(m.Category),
		Article:       m.Article,
		StockQuantity: m.StockQuantity,
		Image:         m.Image,
		IsAvailable:   m.IsAvailable,
		Weight:        m.Weight,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func orderToModel(o domain.Order) OrderModel {
	return OrderModel{
		ID:              o.ID,
		AccountID:       o.AccountID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		CustomerNotes:   o.CustomerNotes,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func orderFromModel(m OrderModel) domain.Order {
	return domain.Order{
		ID:              m.ID,
		AccountID:       m.AccountID,
		OrderNumber:     m.OrderNumber,
		Status:          domain.OrderStatus(m.Status),
		PaymentStatus:   domain.PaymentStatus(m.PaymentStatus),
		TotalAmount:     m.TotalAmount,
		ShippingAddress: m.ShippingAddress,
		CustomerNotes:   m.CustomerNotes,
		CustomerEmail:   m.CustomerEmail,
		CustomerPhone:   m.CustomerPhone,
		Items:           []domain.OrderItem{},
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func itemToModel(i domain.OrderItem) OrderItemModel {
	return OrderItemModel{
		ID:        i.ID,
		OrderID:   i.OrderID,
		ProductID: i.ProductID,
		Quantity:  i.Quantity,
		UnitPrice: i.UnitPrice,
		Subtotal:  i.Subtotal,
	}
}

func itemFromModel(m OrderItemModel) domain.OrderItem {
	return domain.OrderItem{
		ID:        m.ID,
		OrderID:   m.OrderID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
		Subtotal:  m.Subtotal,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:           r.ID,
		AccountID:    r.AccountID,
		ProductID:    r.ProductID,
		OrderID:      r.OrderID,
		Rating:       int(r.Rating),
		Title:        r.Title,
		Comment:      r.Comment,
		IsApproved:   r.IsApproved,
		HelpfulCount: r.HelpfulCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:           m.ID,
		AccountID:    m.AccountID,
		ProductID:    m.ProductID,
		OrderID:      m.OrderID,
		Rating:       domain.Rating(m.Rating),
		Title:        m.Title,
		Comment:      m.Comment,
		IsApproved:   m.IsApproved,
		HelpfulCount: m.HelpfulCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
