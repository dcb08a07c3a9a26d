package sale

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt records a sale the backend has confirmed.
type Receipt struct {
	ID        string          `json:"id"`
	Lines     []ReceiptLine   `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReceiptLine is a priced line of a receipt. Prices are the ones shown to the
// customer at checkout time.
type ReceiptLine struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Journal stores receipts of committed sales on the terminal.
type Journal interface {
	Record(ctx context.Context, r *Receipt) error
	// Recent returns up to limit receipts, newest first.
	Recent(ctx context.Context, limit int) ([]Receipt, error)
	// Between returns receipts created in [from, to), oldest first.
	Between(ctx context.Context, from, to time.Time) ([]Receipt, error)
}
