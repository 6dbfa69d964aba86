package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"pearl/pkg/domain"
)

func TestCreateOrderFinalizesTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.register(t, "+79990001122", "anna@example.com")
	p1 := f.product(t, "19.99")
	p2 := f.product(t, "5.50")

	order, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "Main st 1",
		Items: []OrderItemInput{
			{ProductID: p1.ID, Quantity: 3},
			{ProductID: p2.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") || len(order.OrderNumber) != 14 {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderPending || order.PaymentStatus != domain.PaymentPending {
		t.Fatalf("unexpected statuses %s/%s", order.Status, order.PaymentStatus)
	}
	if order.CustomerEmail != acc.Email || order.CustomerPhone != acc.Phone {
		t.Fatalf("contact details should default to the account: %+v", order)
	}
	want := decimal.RequireFromString("70.97")
	if !order.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", order.TotalAmount, want)
	}
	if !order.TotalAmount.Equal(domain.OrderTotal(order.Items)) {
		t.Fatalf("total does not match item subtotals")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.register(t, "+79990001122", "anna@example.com")
	p := f.product(t, "1.00")

	_, err := f.app.CreateOrder(ctx, acc, OrderInput{ShippingAddress: "x"})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "items") {
		t.Fatalf("expected items validation, got %v", err)
	}
	_, err = f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 0}},
	})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "items[0].quantity") {
		t.Fatalf("expected quantity validation, got %v", err)
	}
	_, err = f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 1}, {ProductID: "missing", Quantity: 1}},
	})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "items[1].productId") {
		t.Fatalf("expected unknown product, got %v", err)
	}
}

func TestUnitPriceOverrideIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	acc := f.register(t, "+79990001122", "anna@example.com")
	p := f.product(t, "10.00")
	cheap := decimal.RequireFromString("1.00")

	order, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 2, UnitPrice: &cheap}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("customer price override must be ignored, total %s", order.TotalAmount)
	}

	order, err = f.app.CreateOrder(ctx, admin, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 2, UnitPrice: &cheap}},
	})
	if err != nil {
		t.Fatalf("create admin order: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("admin override not applied, total %s", order.TotalAmount)
	}
}

func TestItemMutationsKeepTotalInSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.register(t, "+79990001122", "anna@example.com")
	p1 := f.product(t, "2.50")
	p2 := f.product(t, "4.00")

	order, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p1.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	order, err = f.app.AddOrderItem(ctx, acc, order.ID, OrderItemInput{ProductID: p2.ID, Quantity: 3})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("14.50")) {
		t.Fatalf("after add total %s", order.TotalAmount)
	}

	var first domain.OrderItem
	for _, it := range order.Items {
		if it.ProductID == p1.ID {
			first = it
		}
	}
	qty := 4
	order, err = f.app.UpdateOrderItem(ctx, acc, order.ID, first.ID, OrderItemPatch{Quantity: &qty})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("22")) {
		t.Fatalf("after update total %s", order.TotalAmount)
	}

	price := decimal.RequireFromString("0.10")
	if _, err := f.app.UpdateOrderItem(ctx, acc, order.ID, first.ID, OrderItemPatch{UnitPrice: &price}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected Forbidden for customer price change, got %v", err)
	}

	order, err = f.app.RemoveOrderItem(ctx, acc, order.ID, first.ID)
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(order.Items) != 1 || !order.TotalAmount.Equal(decimal.RequireFromString("12")) {
		t.Fatalf("after remove: %d items total %s", len(order.Items), order.TotalAmount)
	}
}

func TestFinalizeRepairsStaleTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.register(t, "+79990001122", "anna@example.com")
	p := f.product(t, "3.00")
	order, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	// An item written straight to the store leaves the total stale.
	if _, err := f.store.SaveOrderItem(domain.OrderItem{ID: "extra", OrderID: order.ID, ProductID: p.ID, Quantity: 2, UnitPrice: p.Price}); err != nil {
		t.Fatalf("save item: %v", err)
	}
	stale, err := f.app.GetOrder(ctx, acc, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !stale.TotalAmount.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("total should be stale before finalize, got %s", stale.TotalAmount)
	}
	fresh, err := f.app.FinalizeOrder(ctx, acc, order.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !fresh.TotalAmount.Equal(decimal.RequireFromString("9")) {
		t.Fatalf("finalized total %s", fresh.TotalAmount)
	}
}

func TestOrdersHiddenFromOtherAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "+79990001122", "anna@example.com")
	other := f.register(t, "+79990003344", "olga@example.com")
	admin := f.admin(t)
	p := f.product(t, "3.00")
	order, err := f.app.CreateOrder(ctx, owner, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := f.app.GetOrder(ctx, other, order.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound for stranger, got %v", err)
	}
	if err := f.app.DeleteOrder(ctx, other, order.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound on stranger delete, got %v", err)
	}
	if _, err := f.app.GetOrder(ctx, admin, order.ID); err != nil {
		t.Fatalf("admin should see the order: %v", err)
	}

	mine, err := f.app.ListOrders(ctx, other, OrderQuery{AccountID: owner.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("account filter must not widen a customer's listing")
	}
	all, err := f.app.ListOrders(ctx, admin, OrderQuery{AccountID: owner.ID})
	if err != nil || len(all) != 1 {
		t.Fatalf("admin listing: %v %d", err, len(all))
	}
}

func TestOrderStatusAndEditability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.register(t, "+79990001122", "anna@example.com")
	admin := f.admin(t)
	p := f.product(t, "3.00")
	order, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	shipped := "shipped"
	if _, err := f.app.UpdateOrderStatus(ctx, acc, order.ID, OrderStatusPatch{Status: &shipped}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	bogus := "lost"
	if _, err := f.app.UpdateOrderStatus(ctx, admin, order.ID, OrderStatusPatch{Status: &bogus}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	paid := "paid"
	updated, err := f.app.UpdateOrderStatus(ctx, admin, order.ID, OrderStatusPatch{Status: &shipped, PaymentStatus: &paid})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderShipped || updated.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("unexpected statuses %+v", updated)
	}
	if _, err := f.app.AddOrderItem(ctx, acc, order.ID, OrderItemInput{ProductID: p.ID, Quantity: 1}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected Conflict for shipped order, got %v", err)
	}
}

func TestDeleteProductInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.register(t, "+79990001122", "anna@example.com")
	p := f.product(t, "3.00")
	order, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := f.app.DeleteProduct(ctx, p.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if err := f.app.DeleteOrder(ctx, acc, order.ID); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if err := f.app.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete product after order removal: %v", err)
	}
}

func TestOrderAmountsStayWithinColumnLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.register(t, "+79990001122", "anna@example.com")
	big := f.product(t, "60000000.00")
	mid := f.product(t, "40000000.00")
	small := f.product(t, "30000000.00")
	cheap := f.product(t, "1.00")

	_, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: big.ID, Quantity: 2}},
	})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "items[0].quantity") {
		t.Fatalf("expected subtotal overflow error, got %v", err)
	}
	_, err = f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: cheap.ID, Quantity: maxQuantity + 1}},
	})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "items[0].quantity") {
		t.Fatalf("expected quantity bound error, got %v", err)
	}
	_, err = f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: big.ID, Quantity: 1}, {ProductID: mid.ID, Quantity: 1}},
	})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "items") {
		t.Fatalf("expected order total error, got %v", err)
	}

	order, err := f.app.CreateOrder(ctx, acc, OrderInput{
		ShippingAddress: "x",
		Items:           []OrderItemInput{{ProductID: mid.ID, Quantity: 1}, {ProductID: small.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	want := decimal.RequireFromString("70000000")

	_, err = f.app.AddOrderItem(ctx, acc, order.ID, OrderItemInput{ProductID: small.ID, Quantity: 1})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "quantity") {
		t.Fatalf("expected total overflow on add, got %v", err)
	}
	var line domain.OrderItem
	for _, it := range order.Items {
		if it.ProductID == mid.ID {
			line = it
		}
	}
	two := 2
	_, err = f.app.UpdateOrderItem(ctx, acc, order.ID, line.ID, OrderItemPatch{Quantity: &two})
	if !errors.Is(err, ErrValidation) || !hasField(fieldOf(t, err), "quantity") {
		t.Fatalf("expected total overflow on update, got %v", err)
	}

	stored, err := f.app.GetOrder(ctx, acc, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(stored.Items) != 2 || !stored.TotalAmount.Equal(want) || !stored.TotalAmount.Equal(domain.OrderTotal(stored.Items)) {
		t.Fatalf("rejected edits must leave the order alone: %d items total %s", len(stored.Items), stored.TotalAmount)
	}
}
