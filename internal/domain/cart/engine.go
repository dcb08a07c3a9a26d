package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/meditrack-pos/internal/domain/notice"
	"github.com/xenking/meditrack-pos/internal/domain/product"
)

// Engine resolves scans into cart lines and applies manual edits. Every
// rejected mutation leaves the cart unchanged and raises a notice.
type Engine struct {
	cart    *Cart
	catalog product.Catalog
	notes   notice.Notifier
}

// NewEngine creates an Engine mutating c.
func NewEngine(c *Cart, catalog product.Catalog, notes notice.Notifier) *Engine {
	return &Engine{
		cart:    c,
		catalog: catalog,
		notes:   notes,
	}
}

// ResolveAndAdd adds one unit of the product with the given SKU. Repeat scans
// of a SKU already in the cart are served locally; unseen SKUs are looked up
// through the catalog without holding the cart lock, and the result is
// merged by product ID so a late response cannot clobber a newer quantity.
func (e *Engine) ResolveAndAdd(ctx context.Context, sku string) error {
	found, err := e.cart.incrementSKU(sku)
	if found {
		return e.reject(err)
	}

	p, err := e.catalog.LookupSKU(ctx, sku)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			e.notes.Notify(notice.Warn(notice.ProductNotFound, fmt.Sprintf("Product %s not found.", sku)))
			return errors.Wrapf(err, "resolve %s", sku)
		}
		e.notes.Notify(notice.Warn(notice.LookupFailed, "Error fetching product details."))
		return errors.Wrapf(err, "resolve %s", sku)
	}

	return e.reject(e.cart.add(*p))
}

// SetQuantity sets the quantity of a line, clamped to at least one. The
// soft stock guard uses the stock recorded at lookup time; the backend
// re-checks at commit.
func (e *Engine) SetQuantity(productID int64, qty int) error {
	return e.reject(e.cart.setQuantity(productID, qty))
}

// Remove deletes the line of the given product.
func (e *Engine) Remove(productID int64) error {
	return e.reject(e.cart.remove(productID))
}

// reject raises the notice matching a failed mutation and passes err through.
func (e *Engine) reject(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *StockError
	switch {
	case errors.As(err, &stockErr):
		e.notes.Notify(notice.Warn(notice.InsufficientStock,
			fmt.Sprintf("Not enough stock for %s: %d available.", stockErr.Name, stockErr.Stock)))
	case errors.Is(err, ErrCheckoutInProgress):
		e.notes.Notify(notice.Warn(notice.CheckoutInProgress, "Checkout in progress, wait for it to finish."))
	}
	return err
}
