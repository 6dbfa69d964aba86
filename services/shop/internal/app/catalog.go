package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pearl/internal/util"
	"pearl/pkg/domain"
	"pearl/pkg/store"
)

const articleAttempts = 5

// maxMoney is the first value that no longer fits numeric(10,2), maxWeight
// the first that no longer fits numeric(8,2).
var (
	maxMoney  = decimal.New(1, 8)
	maxWeight = decimal.New(1, 6)
)

type ProductInput struct {
	Name          string           `json:"name" validate:"required,max=200"`
	Description   string           `json:"description" validate:"max=5000"`
	Price         *decimal.Decimal `json:"price"`
	Category      string           `json:"category"`
	Article       string           `json:"article" validate:"max=50"`
	StockQuantity int              `json:"stockQuantity" validate:"gte=0"`
	Image         string           `json:"image" validate:"max=255"`
	IsAvailable   *bool            `json:"isAvailable"`
	Weight        *decimal.Decimal `json:"weight"`
}

type ProductPatch struct {
	Name          *string          `json:"name" validate:"omitempty,max=200"`
	Description   *string          `json:"description" validate:"omitempty,max=5000"`
	Price         *decimal.Decimal `json:"price"`
	Category      *string          `json:"category"`
	Article       *string          `json:"article" validate:"omitempty,max=50"`
	StockQuantity *int             `json:"stockQuantity" validate:"omitempty,gte=0"`
	Image         *string          `json:"image" validate:"omitempty,max=255"`
	IsAvailable   *bool            `json:"isAvailable"`
	Weight        *decimal.Decimal `json:"weight"`
}

type ProductQuery struct {
	Paging
	Category  string
	Available *bool
	Query     string
}

// checkMoney reports why v cannot be stored as a non-negative price.
func checkMoney(field string, v decimal.Decimal) *FieldError {
	return checkAmount(field, v, maxMoney)
}

func checkAmount(field string, v, limit decimal.Decimal) *FieldError {
	switch {
	case v.IsNegative():
		return &FieldError{Field: field, Reason: "must be greater than or equal to 0"}
	case v.Exponent() < -2 && !v.Equal(v.Round(2)):
		return &FieldError{Field: field, Reason: "at most 2 decimal places"}
	case v.GreaterThanOrEqual(limit):
		return &FieldError{Field: field, Reason: "must be less than " + limit.String()}
	}
	return nil
}

// CreateProduct adds a catalog entry. A blank article is replaced with a
// generated one.
func (a *App) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	in.Name = trim(in.Name)
	in.Description = trim(in.Description)
	in.Article = trim(in.Article)
	in.Image = trim(in.Image)
	fields, err := fieldErrors(in)
	if err != nil {
		return domain.Product{}, err
	}
	if in.Price == nil {
		fields = append(fields, FieldError{Field: "price", Reason: "this field is required"})
	} else if fe := checkMoney("price", *in.Price); fe != nil {
		fields = append(fields, *fe)
	}
	if in.Weight != nil {
		if fe := checkAmount("weight", *in.Weight, maxWeight); fe != nil {
			fields = append(fields, *fe)
		}
	}
	category, err := domain.ParseProductCategory(in.Category)
	if err != nil {
		fields = append(fields, FieldError{Field: "category", Reason: err.Error()})
	}
	if len(fields) > 0 {
		return domain.Product{}, invalidFields(fields)
	}

	article, err := a.productArticle(in.Article)
	if err != nil {
		return domain.Product{}, err
	}
	now := a.clock()
	p := domain.Product{
		ID:            util.NewID(),
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price.Round(2),
		Category:      category,
		Article:       article,
		StockQuantity: in.StockQuantity,
		Image:         in.Image,
		IsAvailable:   true,
		Weight:        in.Weight,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.IsAvailable != nil {
		p.IsAvailable = *in.IsAvailable
	}
	if err := a.store.SaveProduct(p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Product{}, conflict("article", "article already in use")
		}
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	a.log(ctx).Info("product_created", "product_id", p.ID, "article", p.Article)
	return p, nil
}

func (a *App) productArticle(requested string) (string, error) {
	if requested != "" {
		exists, err := a.store.HasProductArticle(requested)
		if err != nil {
			return "", fmt.Errorf("check article: %w", err)
		}
		if exists {
			return "", conflict("article", "article already in use")
		}
		return requested, nil
	}
	for attempt := 0; attempt < articleAttempts; attempt++ {
		article := util.NewReference("P", 8)
		exists, err := a.store.HasProductArticle(article)
		if err != nil {
			return "", fmt.Errorf("check article: %w", err)
		}
		if !exists {
			return article, nil
		}
	}
	return "", errors.New("could not generate a unique article")
}

func (a *App) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, ok, err := a.store.GetProduct(id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("fetch product: %w", err)
	}
	if !ok {
		return domain.Product{}, notFound("product")
	}
	return p, nil
}

func (a *App) ListProducts(ctx context.Context, q ProductQuery) ([]domain.Product, error) {
	f := store.ProductFilter{Page: q.page(), Available: q.Available, Query: trim(q.Query)}
	if q.Category != "" {
		c, err := domain.ParseProductCategory(q.Category)
		if err != nil {
			return nil, invalid("category", err.Error())
		}
		f.Category = c
	}
	products, err := a.store.ListProducts(f)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (a *App) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	for _, f := range []*string{patch.Name, patch.Description, patch.Article, patch.Image} {
		trimPtr(f)
	}
	fields, err := fieldErrors(patch)
	if err != nil {
		return domain.Product{}, err
	}
	if patch.Price != nil {
		if fe := checkMoney("price", *patch.Price); fe != nil {
			fields = append(fields, *fe)
		}
	}
	if patch.Weight != nil {
		if fe := checkAmount("weight", *patch.Weight, maxWeight); fe != nil {
			fields = append(fields, *fe)
		}
	}
	if patch.Name != nil && *patch.Name == "" {
		fields = append(fields, FieldError{Field: "name", Reason: "this field is required"})
	}
	var category domain.ProductCategory
	if patch.Category != nil {
		category, err = domain.ParseProductCategory(*patch.Category)
		if err != nil {
			fields = append(fields, FieldError{Field: "category", Reason: err.Error()})
		}
	}
	if len(fields) > 0 {
		return domain.Product{}, invalidFields(fields)
	}

	p, err := a.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	setString(&p.Name, patch.Name)
	setString(&p.Description, patch.Description)
	setString(&p.Image, patch.Image)
	if patch.Price != nil {
		p.Price = patch.Price.Round(2)
	}
	if patch.Category != nil {
		p.Category = category
	}
	if patch.Article != nil && *patch.Article != p.Article {
		article, err := a.productArticle(*patch.Article)
		if err != nil {
			return domain.Product{}, err
		}
		p.Article = article
	}
	if patch.StockQuantity != nil {
		p.StockQuantity = *patch.StockQuantity
	}
	if patch.IsAvailable != nil {
		p.IsAvailable = *patch.IsAvailable
	}
	if patch.Weight != nil {
		p.Weight = patch.Weight
	}
	p.UpdatedAt = a.clock()
	if err := a.store.SaveProduct(p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Product{}, conflict("article", "article already in use")
		}
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	return p, nil
}

// DeleteProduct is refused while any order item references the product.
func (a *App) DeleteProduct(ctx context.Context, id string) error {
	if err := a.store.DeleteProduct(id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return notFound("product")
		case errors.Is(err, store.ErrProductInUse):
			return conflict("", "product is referenced by existing orders")
		}
		return fmt.Errorf("delete product: %w", err)
	}
	a.log(ctx).Info("product_deleted", "product_id", id)
	return nil
}
