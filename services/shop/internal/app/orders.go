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

const orderNumberAttempts = 5

// maxQuantity caps a single order line.
const maxQuantity = 10000

type OrderInput struct {
	ShippingAddress string           `json:"shippingAddress" validate:"required,max=1000"`
	CustomerNotes   string           `json:"customerNotes" validate:"max=2000"`
	CustomerEmail   string           `json:"customerEmail" validate:"omitempty,email,max=254"`
	CustomerPhone   string           `json:"customerPhone" validate:"omitempty,phone"`
	Items           []OrderItemInput `json:"items" validate:"required,min=1,dive"`
}

// OrderItemInput adds a product to an order. UnitPrice is honoured for
// admins only; everyone else pays the current catalog price.
type OrderItemInput struct {
	ProductID string           `json:"productId" validate:"required"`
	Quantity  int              `json:"quantity" validate:"required,min=1,max=10000"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

type OrderItemPatch struct {
	Quantity  *int             `json:"quantity" validate:"omitempty,min=1,max=10000"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

type OrderStatusPatch struct {
	Status          *string `json:"status"`
	PaymentStatus   *string `json:"paymentStatus"`
	ShippingAddress *string `json:"shippingAddress" validate:"omitempty,max=1000"`
}

type OrderQuery struct {
	Paging
	AccountID string
	Status    string
}

// CreateOrder stores the order with its items and finalizes the total.
func (a *App) CreateOrder(ctx context.Context, actor domain.Account, in OrderInput) (domain.Order, error) {
	in.ShippingAddress = trim(in.ShippingAddress)
	in.CustomerNotes = trim(in.CustomerNotes)
	in.CustomerEmail = normalizeEmail(in.CustomerEmail)
	in.CustomerPhone = normalizePhone(in.CustomerPhone)
	if err := check(in); err != nil {
		return domain.Order{}, err
	}

	now := a.clock()
	order := domain.Order{
		ID:              util.NewID(),
		AccountID:       actor.ID,
		Status:          domain.OrderPending,
		PaymentStatus:   domain.PaymentPending,
		TotalAmount:     decimal.Zero,
		ShippingAddress: in.ShippingAddress,
		CustomerNotes:   in.CustomerNotes,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.CustomerEmail == "" {
		order.CustomerEmail = actor.Email
	}
	if order.CustomerPhone == "" {
		order.CustomerPhone = actor.Phone
	}

	var fields []FieldError
	total := decimal.Zero
	for i, itemIn := range in.Items {
		item, fe, err := a.resolveItem(actor, fmt.Sprintf("items[%d]", i), itemIn)
		if err != nil {
			return domain.Order{}, err
		}
		if fe != nil {
			fields = append(fields, *fe)
			continue
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
		total = total.Add(item.Subtotal)
	}
	if len(fields) == 0 {
		if fe := checkTotal("items", total); fe != nil {
			fields = append(fields, *fe)
		}
	}
	if len(fields) > 0 {
		return domain.Order{}, invalidFields(fields)
	}

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = util.NewReference("ORD-", 10)
		err = a.store.CreateOrder(order)
		if !errors.Is(err, store.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	a.log(ctx).Info("order_created", "order_id", order.ID, "order_number", order.OrderNumber, "items", len(order.Items))
	return a.finalize(order.ID)
}

// resolveItem turns input into an item priced from the catalog. Problems
// with the input come back as a field error under prefix.
func (a *App) resolveItem(actor domain.Account, prefix string, in OrderItemInput) (domain.OrderItem, *FieldError, error) {
	p, ok, err := a.store.GetProduct(trim(in.ProductID))
	if err != nil {
		return domain.OrderItem{}, nil, fmt.Errorf("fetch product: %w", err)
	}
	if !ok {
		return domain.OrderItem{}, &FieldError{Field: joinField(prefix, "productId"), Reason: "unknown product"}, nil
	}
	if !p.IsAvailable {
		return domain.OrderItem{}, &FieldError{Field: joinField(prefix, "productId"), Reason: "product is not available"}, nil
	}
	item := domain.OrderItem{
		ID:        util.NewID(),
		ProductID: p.ID,
		Quantity:  in.Quantity,
		UnitPrice: p.Price,
	}
	if in.UnitPrice != nil && isAdmin(actor) {
		if fe := checkMoney(joinField(prefix, "unitPrice"), *in.UnitPrice); fe != nil {
			return domain.OrderItem{}, fe, nil
		}
		item.UnitPrice = in.UnitPrice.Round(2)
	}
	if fe := checkSubtotal(joinField(prefix, "quantity"), &item); fe != nil {
		return domain.OrderItem{}, fe, nil
	}
	return item, nil, nil
}

// checkSubtotal computes the line subtotal and rejects it when it would not
// fit the money columns.
func checkSubtotal(field string, item *domain.OrderItem) *FieldError {
	if item.Quantity > maxQuantity {
		return &FieldError{Field: field, Reason: fmt.Sprintf("must be at most %d", maxQuantity)}
	}
	if item.ComputeSubtotal().GreaterThanOrEqual(maxMoney) {
		return &FieldError{Field: field, Reason: "line subtotal must be less than " + maxMoney.String()}
	}
	return nil
}

func checkTotal(field string, total decimal.Decimal) *FieldError {
	if total.GreaterThanOrEqual(maxMoney) {
		return &FieldError{Field: field, Reason: "order total must be less than " + maxMoney.String()}
	}
	return nil
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// loadOrder hides orders the actor may not see behind NotFound.
func (a *App) loadOrder(actor domain.Account, id string) (domain.Order, error) {
	o, ok, err := a.store.GetOrder(id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch order: %w", err)
	}
	if !ok || (!isAdmin(actor) && o.AccountID != actor.ID) {
		return domain.Order{}, notFound("order")
	}
	return o, nil
}

func editable(o domain.Order) error {
	if o.Status != domain.OrderPending {
		return conflict("status", "only pending orders can be changed")
	}
	return nil
}

// finalize recomputes the stored total from the items and returns the
// fresh order. Every item mutation ends here.
func (a *App) finalize(orderID string) (domain.Order, error) {
	if _, err := a.store.RecomputeOrderTotal(orderID, a.clock()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, notFound("order")
		}
		return domain.Order{}, fmt.Errorf("recompute order total: %w", err)
	}
	o, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch order: %w", err)
	}
	if !ok {
		return domain.Order{}, notFound("order")
	}
	return o, nil
}

func (a *App) GetOrder(ctx context.Context, actor domain.Account, id string) (domain.Order, error) {
	return a.loadOrder(actor, id)
}

// ListOrders lists the actor's orders. Admins see everyone's and may narrow
// by account.
func (a *App) ListOrders(ctx context.Context, actor domain.Account, q OrderQuery) ([]domain.Order, error) {
	f := store.OrderFilter{Page: q.page(), AccountID: actor.ID}
	if isAdmin(actor) {
		f.AccountID = trim(q.AccountID)
	}
	if q.Status != "" {
		s, err := domain.ParseOrderStatus(q.Status)
		if err != nil {
			return nil, invalid("status", err.Error())
		}
		f.Status = s
	}
	orders, err := a.store.ListOrders(f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order through its fulfilment and payment states.
func (a *App) UpdateOrderStatus(ctx context.Context, actor domain.Account, id string, patch OrderStatusPatch) (domain.Order, error) {
	if !isAdmin(actor) {
		return domain.Order{}, forbidden("admin role required")
	}
	trimPtr(patch.ShippingAddress)
	fields, err := fieldErrors(patch)
	if err != nil {
		return domain.Order{}, err
	}
	var status domain.OrderStatus
	if patch.Status != nil {
		if status, err = domain.ParseOrderStatus(*patch.Status); err != nil {
			fields = append(fields, FieldError{Field: "status", Reason: err.Error()})
		}
	}
	var payment domain.PaymentStatus
	if patch.PaymentStatus != nil {
		if payment, err = domain.ParsePaymentStatus(*patch.PaymentStatus); err != nil {
			fields = append(fields, FieldError{Field: "paymentStatus", Reason: err.Error()})
		}
	}
	if len(fields) > 0 {
		return domain.Order{}, invalidFields(fields)
	}

	o, err := a.loadOrder(actor, id)
	if err != nil {
		return domain.Order{}, err
	}
	if patch.Status != nil {
		o.Status = status
	}
	if patch.PaymentStatus != nil {
		o.PaymentStatus = payment
	}
	if patch.ShippingAddress != nil && *patch.ShippingAddress != "" {
		o.ShippingAddress = *patch.ShippingAddress
	}
	o.UpdatedAt = a.clock()
	if err := a.store.SaveOrder(o); err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}
	a.log(ctx).Info("order_status_changed", "order_id", o.ID, "status", o.Status, "payment_status", o.PaymentStatus)
	return o, nil
}

func (a *App) AddOrderItem(ctx context.Context, actor domain.Account, orderID string, in OrderItemInput) (domain.Order, error) {
	if err := check(in); err != nil {
		return domain.Order{}, err
	}
	o, err := a.loadOrder(actor, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := editable(o); err != nil {
		return domain.Order{}, err
	}
	item, fe, err := a.resolveItem(actor, "", in)
	if err != nil {
		return domain.Order{}, err
	}
	if fe != nil {
		return domain.Order{}, invalidFields([]FieldError{*fe})
	}
	if fe := checkTotal("quantity", domain.OrderTotal(o.Items).Add(item.Subtotal)); fe != nil {
		return domain.Order{}, invalidFields([]FieldError{*fe})
	}
	item.OrderID = o.ID
	if _, err := a.store.SaveOrderItem(item); err != nil {
		return domain.Order{}, fmt.Errorf("save order item: %w", err)
	}
	return a.finalize(o.ID)
}

func (a *App) UpdateOrderItem(ctx context.Context, actor domain.Account, orderID, itemID string, patch OrderItemPatch) (domain.Order, error) {
	if err := check(patch); err != nil {
		return domain.Order{}, err
	}
	o, item, err := a.loadOrderItem(actor, orderID, itemID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := editable(o); err != nil {
		return domain.Order{}, err
	}
	previous := item.Subtotal
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		if !isAdmin(actor) {
			return domain.Order{}, forbidden("only admins can change unit prices")
		}
		if fe := checkMoney("unitPrice", *patch.UnitPrice); fe != nil {
			return domain.Order{}, invalidFields([]FieldError{*fe})
		}
		item.UnitPrice = patch.UnitPrice.Round(2)
	}
	if fe := checkSubtotal("quantity", &item); fe != nil {
		return domain.Order{}, invalidFields([]FieldError{*fe})
	}
	projected := domain.OrderTotal(o.Items).Sub(previous).Add(item.Subtotal)
	if fe := checkTotal("quantity", projected); fe != nil {
		return domain.Order{}, invalidFields([]FieldError{*fe})
	}
	if _, err := a.store.SaveOrderItem(item); err != nil {
		return domain.Order{}, fmt.Errorf("save order item: %w", err)
	}
	return a.finalize(o.ID)
}

func (a *App) RemoveOrderItem(ctx context.Context, actor domain.Account, orderID, itemID string) (domain.Order, error) {
	o, item, err := a.loadOrderItem(actor, orderID, itemID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := editable(o); err != nil {
		return domain.Order{}, err
	}
	if err := a.store.DeleteOrderItem(item.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, notFound("order item")
		}
		return domain.Order{}, fmt.Errorf("delete order item: %w", err)
	}
	return a.finalize(o.ID)
}

func (a *App) loadOrderItem(actor domain.Account, orderID, itemID string) (domain.Order, domain.OrderItem, error) {
	o, err := a.loadOrder(actor, orderID)
	if err != nil {
		return domain.Order{}, domain.OrderItem{}, err
	}
	for _, item := range o.Items {
		if item.ID == itemID {
			return o, item, nil
		}
	}
	return domain.Order{}, domain.OrderItem{}, notFound("order item")
}

// FinalizeOrder brings the stored total in line with the current items.
func (a *App) FinalizeOrder(ctx context.Context, actor domain.Account, id string) (domain.Order, error) {
	if _, err := a.loadOrder(actor, id); err != nil {
		return domain.Order{}, err
	}
	return a.finalize(id)
}

// DeleteOrder removes the order with its items and reviews.
func (a *App) DeleteOrder(ctx context.Context, actor domain.Account, id string) error {
	if _, err := a.loadOrder(actor, id); err != nil {
		return err
	}
	if err := a.store.DeleteOrder(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("order")
		}
		return fmt.Errorf("delete order: %w", err)
	}
	a.log(ctx).Info("order_deleted", "order_id", id)
	return nil
}
