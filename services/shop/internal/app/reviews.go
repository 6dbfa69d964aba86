package app

import (
	"context"
	"errors"
	"fmt"

	"pearl/internal/util"
	"pearl/pkg/domain"
	"pearl/pkg/store"
)

type ReviewInput struct {
	ProductID string `json:"productId" validate:"required"`
	OrderID   string `json:"orderId" validate:"required"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Title     string `json:"title" validate:"required,max=200"`
	Comment   string `json:"comment" validate:"required,max=5000"`
}

type ReviewPatch struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Comment *string `json:"comment" validate:"omitempty,max=5000"`
}

type ReviewQuery struct {
	Paging
	ProductID string
	AccountID string
	Approved  *bool
}

// CreateReview stores an unapproved review. Only the (account, product,
// order) triple is checked; the order need not contain the product nor
// belong to the author.
func (a *App) CreateReview(ctx context.Context, actor domain.Account, in ReviewInput) (domain.Review, error) {
	in.ProductID = trim(in.ProductID)
	in.OrderID = trim(in.OrderID)
	in.Title = trim(in.Title)
	in.Comment = trim(in.Comment)
	if err := check(in); err != nil {
		return domain.Review{}, err
	}
	var fields []FieldError
	if _, ok, err := a.store.GetProduct(in.ProductID); err != nil {
		return domain.Review{}, fmt.Errorf("fetch product: %w", err)
	} else if !ok {
		fields = append(fields, FieldError{Field: "productId", Reason: "unknown product"})
	}
	if _, ok, err := a.store.GetOrder(in.OrderID); err != nil {
		return domain.Review{}, fmt.Errorf("fetch order: %w", err)
	} else if !ok {
		fields = append(fields, FieldError{Field: "orderId", Reason: "unknown order"})
	}
	if len(fields) > 0 {
		return domain.Review{}, invalidFields(fields)
	}

	now := a.clock()
	r := domain.Review{
		ID:        util.NewID(),
		AccountID: actor.ID,
		ProductID: in.ProductID,
		OrderID:   in.OrderID,
		Rating:    domain.Rating(in.Rating),
		Title:     in.Title,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateReview(r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Review{}, conflict("", "this order already has your review of the product")
		}
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	return r, nil
}

// GetReview returns approved reviews to anyone; unapproved ones only to
// their author and admins. actor may be nil.
func (a *App) GetReview(ctx context.Context, actor *domain.Account, id string) (domain.Review, error) {
	r, ok, err := a.store.GetReview(id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok || (!r.IsApproved && !canManageReview(actor, r)) {
		return domain.Review{}, notFound("review")
	}
	return r, nil
}

func canManageReview(actor *domain.Account, r domain.Review) bool {
	return actor != nil && (isAdmin(*actor) || actor.ID == r.AccountID)
}

// ListProductReviews lists the approved reviews of a product.
func (a *App) ListProductReviews(ctx context.Context, productID string, page Paging) ([]domain.Review, error) {
	if _, err := a.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	approved := true
	return a.ListReviews(ctx, ReviewQuery{Paging: page, ProductID: productID, Approved: &approved})
}

func (a *App) ListReviews(ctx context.Context, q ReviewQuery) ([]domain.Review, error) {
	reviews, err := a.store.ListReviews(store.ReviewFilter{
		Page:      q.page(),
		ProductID: trim(q.ProductID),
		AccountID: trim(q.AccountID),
		Approved:  q.Approved,
	})
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// UpdateReview lets the author edit a review. An edited review goes back to
// moderation.
func (a *App) UpdateReview(ctx context.Context, actor domain.Account, id string, patch ReviewPatch) (domain.Review, error) {
	trimPtr(patch.Title)
	trimPtr(patch.Comment)
	if err := check(patch); err != nil {
		return domain.Review{}, err
	}
	r, ok, err := a.store.GetReview(id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok || r.AccountID != actor.ID {
		return domain.Review{}, notFound("review")
	}
	if patch.Rating != nil {
		r.Rating = domain.Rating(*patch.Rating)
	}
	if patch.Title != nil && *patch.Title != "" {
		r.Title = *patch.Title
	}
	if patch.Comment != nil && *patch.Comment != "" {
		r.Comment = *patch.Comment
	}
	r.IsApproved = false
	r.UpdatedAt = a.clock()
	if err := a.store.SaveReview(r); err != nil {
		return domain.Review{}, fmt.Errorf("save review: %w", err)
	}
	return r, nil
}

func (a *App) DeleteReview(ctx context.Context, actor domain.Account, id string) error {
	r, ok, err := a.store.GetReview(id)
	if err != nil {
		return fmt.Errorf("fetch review: %w", err)
	}
	if !ok || !canManageReview(&actor, r) {
		return notFound("review")
	}
	if err := a.store.DeleteReview(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("review")
		}
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

// MarkReviewHelpful counts one helpful vote. Votes are not deduplicated.
func (a *App) MarkReviewHelpful(ctx context.Context, actor domain.Account, id string) (domain.Review, error) {
	r, err := a.GetReview(ctx, &actor, id)
	if err != nil {
		return domain.Review{}, err
	}
	count, err := a.store.IncrementReviewHelpful(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Review{}, notFound("review")
		}
		return domain.Review{}, fmt.Errorf("mark review helpful: %w", err)
	}
	r.HelpfulCount = count
	return r, nil
}

// ApproveReview publishes or hides a review.
func (a *App) ApproveReview(ctx context.Context, id string, approved bool) (domain.Review, error) {
	r, ok, err := a.store.GetReview(id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.Review{}, notFound("review")
	}
	r.IsApproved = approved
	r.UpdatedAt = a.clock()
	if err := a.store.SaveReview(r); err != nil {
		return domain.Review{}, fmt.Errorf("save review: %w", err)
	}
	a.log(ctx).Info("review_moderated", "review_id", r.ID, "approved", approved)
	return r, nil
}
