package session

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/meditrack-pos/internal/domain/cart"
)

// LineView is a read-only cart line.
type LineView struct {
	ProductID int64
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Stock     int
	Subtotal  decimal.Decimal
}

// View is an immutable snapshot of the cart. Total is always the sum of the
// line subtotals of the same snapshot.
type View struct {
	Lines      []LineView
	Total      decimal.Decimal
	Items      int
	Committing bool
}

func newView(lines []cart.Line, committing bool) View {
	v := View{
		Lines:      make([]LineView, len(lines)),
		Total:      cart.Total(lines),
		Committing: committing,
	}
	for i, l := range lines {
		v.Lines[i] = LineView{
			ProductID: l.Product.ID,
			SKU:       l.Product.SKU,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
			Stock:     l.Product.Stock,
			Subtotal:  l.Subtotal(),
		}
		v.Items += l.Quantity
	}
	return v
}
