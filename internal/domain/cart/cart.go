// Package cart holds the in-progress sale of a till and the engine that
// mutates it in response to scans and manual edits.
package cart

import (
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/meditrack-pos/internal/domain/product"
)

var (
	// ErrInsufficientStock is matched by *StockError.
	ErrInsufficientStock = errors.New("not enough stock")
	// ErrLineNotFound is returned when a product has no line in the cart.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrCheckoutInProgress is returned for mutations attempted while the
	// cart is frozen by a commit in flight.
	ErrCheckoutInProgress = errors.New("checkout in progress")
)

// StockError reports a rejected quantity change. The line is left unchanged.
type StockError struct {
	SKU   string
	Name  string
	Stock int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: %d available", e.SKU, e.Stock)
}

// Is makes errors.Is(err, ErrInsufficientStock) hold for *StockError.
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Line is a product snapshot with the quantity being sold.
type Line struct {
	Product  product.Product
	Quantity int
}

// Subtotal is always derived from the unit price and the quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) stockError() *StockError {
	return &StockError{SKU: l.Product.SKU, Name: l.Product.Name, Stock: l.Product.Stock}
}

// Cart is the ordered set of lines of one transaction session. Lines keep
// insertion order and there is at most one line per product ID.
//
// A Cart is safe for concurrent use.
type Cart struct {
	mu     sync.Mutex
	lines  []Line
	frozen bool
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Total is the sum of all line subtotals.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Total(c.lines)
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.lines)
}

// Frozen reports whether a commit currently holds the cart.
func (c *Cart) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.frozen
}

// Reset empties the cart when the session is abandoned.
func (c *Cart) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrCheckoutInProgress
	}
	c.lines = nil
	return nil
}

// Freeze blocks every mutation and returns the lines to commit. It fails
// with ErrCheckoutInProgress if the cart is already frozen.
func (c *Cart) Freeze() ([]Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return nil, ErrCheckoutInProgress
	}
	c.frozen = true

	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out, nil
}

// Thaw releases a frozen cart without touching its lines.
func (c *Cart) Thaw() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frozen = false
}

// Clear empties and releases a frozen cart after a successful commit.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = nil
	c.frozen = false
}

// incrementSKU bumps the line holding sku by one. found is false when no
// line carries that SKU.
func (c *Cart) incrementSKU(sku string) (found bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return true, ErrCheckoutInProgress
	}
	for i := range c.lines {
		if c.lines[i].Product.SKU == sku {
			return true, c.incrementAt(i)
		}
	}
	return false, nil
}

// add applies a looked-up product by identity: an existing line for the same
// product ID is incremented, otherwise a new line is appended.
func (c *Cart) add(p product.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrCheckoutInProgress
	}
	if i := c.indexOf(p.ID); i >= 0 {
		return c.incrementAt(i)
	}

	l := Line{Product: p, Quantity: 1}
	if p.Stock < 1 {
		return l.stockError()
	}
	c.lines = append(c.lines, l)
	return nil
}

func (c *Cart) setQuantity(productID int64, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrCheckoutInProgress
	}
	i := c.indexOf(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	if qty < 1 {
		qty = 1
	}
	if qty > c.lines[i].Product.Stock {
		return c.lines[i].stockError()
	}
	c.lines[i].Quantity = qty
	return nil
}

func (c *Cart) remove(productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrCheckoutInProgress
	}
	i := c.indexOf(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return nil
}

// incrementAt must be called with c.mu held.
func (c *Cart) incrementAt(i int) error {
	if c.lines[i].Quantity+1 > c.lines[i].Product.Stock {
		return c.lines[i].stockError()
	}
	c.lines[i].Quantity++
	return nil
}

func (c *Cart) indexOf(productID int64) int {
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// Total returns the sum of subtotals of an arbitrary set of lines, such as a
// frozen snapshot.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}
