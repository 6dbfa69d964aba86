package app

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"

	"pearl/pkg/domain"
)

var articlePattern = regexp.MustCompile(`^P[0-9A-F]{8}$`)

func TestCreateProductDefaults(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "12.30")
	if !articlePattern.MatchString(p.Article) {
		t.Fatalf("unexpected generated article %q", p.Article)
	}
	if p.Category != domain.CategoryOther || !p.IsAvailable {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p.Price.StringFixed(2) != "12.30" {
		t.Fatalf("unexpected price %s", p.Price)
	}
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neg := decimal.RequireFromString("-1")
	_, err := f.app.CreateProduct(ctx, ProductInput{Name: "", Price: &neg, Category: "Groceries", StockQuantity: -1})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := fieldOf(t, err)
	for _, name := range []string{"name", "price", "category", "stockQuantity"} {
		if !hasField(fields, name) {
			t.Fatalf("missing field error %q in %+v", name, fields)
		}
	}
	fine := decimal.RequireFromString("12.345")
	_, err = f.app.CreateProduct(ctx, ProductInput{Name: "Too precise", Price: &fine})
	if !hasField(fieldOf(t, err), "price") {
		t.Fatalf("expected precision error, got %v", err)
	}
	_, err = f.app.CreateProduct(ctx, ProductInput{Name: "No price"})
	if !hasField(fieldOf(t, err), "price") {
		t.Fatalf("expected price required, got %v", err)
	}

	one := decimal.RequireFromString("1.00")
	heavy := decimal.RequireFromString("1000000")
	_, err = f.app.CreateProduct(ctx, ProductInput{Name: "Heavy", Price: &one, Weight: &heavy})
	if !hasField(fieldOf(t, err), "weight") {
		t.Fatalf("expected weight bound error, got %v", err)
	}
	fits := decimal.RequireFromString("999999.99")
	if _, err := f.app.CreateProduct(ctx, ProductInput{Name: "Heavy but fine", Price: &one, Weight: &fits}); err != nil {
		t.Fatalf("weight below the limit: %v", err)
	}
}

func TestProductArticleUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	price := decimal.RequireFromString("1")
	if _, err := f.app.CreateProduct(ctx, ProductInput{Name: "A", Price: &price, Article: "SKU-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := f.app.CreateProduct(ctx, ProductInput{Name: "B", Price: &price, Article: "SKU-1"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestUpdateAndListProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "5.00")
	f.product(t, "6.00")

	category := "skin care"
	off := false
	updated, err := f.app.UpdateProduct(ctx, p.ID, ProductPatch{Category: &category, IsAvailable: &off})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Category != domain.CategorySkinCare || updated.IsAvailable {
		t.Fatalf("unexpected product %+v", updated)
	}

	list, err := f.app.ListProducts(ctx, ProductQuery{Category: "Skin care"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("category filter returned %d products", len(list))
	}
	avail := true
	list, err = f.app.ListProducts(ctx, ProductQuery{Available: &avail})
	if err != nil || len(list) != 1 {
		t.Fatalf("availability filter: %v %d", err, len(list))
	}
	if _, err := f.app.ListProducts(ctx, ProductQuery{Category: "Food"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.app.GetProduct(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestExportProducts(t *testing.T) {
	f := newFixture(t)
	f.product(t, "5.00")
	f.product(t, "7.25")

	var buf bytes.Buffer
	if err := f.app.ExportProducts(context.Background(), &buf, ProductQuery{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	book, err := xlsx.OpenBinary(buf.Bytes())
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	sheet, ok := book.Sheet["Products"]
	if !ok {
		t.Fatalf("missing Products sheet")
	}
	if len(sheet.Rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(sheet.Rows))
	}
	if got := sheet.Rows[0].Cells[1].String(); got != "Article" {
		t.Fatalf("unexpected header %q", got)
	}
}
