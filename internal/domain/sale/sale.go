package sale

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrEmptyCart is returned when checkout is requested for a cart without lines.
var ErrEmptyCart = errors.New("cart is empty")

// Item is a single {sku, quantity} pair of a bulk commit.
type Item struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Result is the backend confirmation of a committed sale.
type Result struct {
	Message string
}

// RejectedError is returned when the backend answers a commit with a
// non-success status. Detail holds the server-provided reason verbatim and
// may be empty.
type RejectedError struct {
	Status int
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("sale rejected with status %d", e.Status)
	}
	return fmt.Sprintf("sale rejected with status %d: %s", e.Status, e.Detail)
}

// Committer submits a whole cart to the backend in a single request so that
// stock decrements are applied together.
type Committer interface {
	Commit(ctx context.Context, items []Item) (*Result, error)
}
