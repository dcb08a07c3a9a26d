package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a scanned SKU does not resolve to a product.
var ErrNotFound = errors.New("product not found")

// Product is a read-only snapshot of a backend catalog entry.
type Product struct {
	ID    int64
	SKU   string
	Name  string
	Price decimal.Decimal
	// Stock is the available quantity at lookup time. It may be stale by the
	// time the sale is committed.
	Stock int
}

// Catalog resolves scanned SKUs to priced products.
type Catalog interface {
	LookupSKU(ctx context.Context, sku string) (*Product, error)
}
