package app

import (
	"context"
	"fmt"
	"io"

	"github.com/tealeg/xlsx"

	"pearl/pkg/domain"
	"pearl/pkg/store"
)

const xlsxTimeLayout = "2006-01-02 15:04:05"

var productExportHeaders = []string{
	"ID", "Article", "Name", "Category", "Price", "Stock", "Available",
	"Weight", "Image", "CreatedAt", "UpdatedAt",
}

// ExportProducts writes the matching products to w as an xlsx workbook.
// Paging is ignored; every match is exported.
func (a *App) ExportProducts(ctx context.Context, w io.Writer, q ProductQuery) error {
	f := store.ProductFilter{Available: q.Available, Query: trim(q.Query)}
	if q.Category != "" {
		c, err := domain.ParseProductCategory(q.Category)
		if err != nil {
			return invalid("category", err.Error())
		}
		f.Category = c
	}
	products, err := a.store.ListProducts(f)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	header := sheet.AddRow()
	for _, h := range productExportHeaders {
		header.AddCell().SetString(h)
	}
	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.Article)
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(string(p.Category))
		row.AddCell().SetString(p.Price.StringFixed(2))
		row.AddCell().SetInt(p.StockQuantity)
		row.AddCell().SetBool(p.IsAvailable)
		weight := ""
		if p.Weight != nil {
			weight = p.Weight.StringFixed(2)
		}
		row.AddCell().SetString(weight)
		row.AddCell().SetString(p.Image)
		row.AddCell().SetString(p.CreatedAt.Format(xlsxTimeLayout))
		row.AddCell().SetString(p.UpdatedAt.Format(xlsxTimeLayout))
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	a.log(ctx).Info("products_exported", "count", len(products))
	return nil
}
