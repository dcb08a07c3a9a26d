// Package checkout commits a cart to the backend exactly once per checkout
// action.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/cart"
	"github.com/xenking/meditrack-pos/internal/domain/notice"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
)

const (
	defaultSuccessMessage = "Payment successful! Stock updated."
	defaultFailureMessage = "Failed to complete sale."
)

// State of the coordinator. There is no partially committed state.
type State int

const (
	Idle State = iota
	Committing
)

func (s State) String() string {
	if s == Committing {
		return "committing"
	}
	return "idle"
}

// Coordinator drives the Idle -> Committing -> Idle transition of a cart.
type Coordinator struct {
	cart      *cart.Cart
	committer sale.Committer
	journal   sale.Journal
	notes     notice.Notifier
	lg        *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu    sync.Mutex
	state State
}

// NewCoordinator creates a Coordinator committing c through committer and
// recording confirmed sales in journal.
func NewCoordinator(
	c *cart.Cart,
	committer sale.Committer,
	journal sale.Journal,
	notes notice.Notifier,
	lg *zap.Logger,
	tp trace.TracerProvider,
) *Coordinator {
	return &Coordinator{
		cart:      c,
		committer: committer,
		journal:   journal,
		notes:     notes,
		lg:        lg,
		tracer:    tp.Tracer("github.com/xenking/meditrack-pos/internal/domain/checkout"),
		now:       time.Now,
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Complete commits every line of the cart in one request. While a commit is
// in flight further calls return cart.ErrCheckoutInProgress without sending
// anything. On failure the cart is left exactly as it was; on success it is
// emptied and the receipt is journaled.
func (c *Coordinator) Complete(ctx context.Context) (*sale.Receipt, error) {
	lines, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	ctx, span := c.tracer.Start(ctx, "checkout.complete",
		trace.WithAttributes(attribute.Int("cart.lines", len(lines))),
	)
	defer span.End()

	items := make([]sale.Item, len(lines))
	for i, l := range lines {
		items[i] = sale.Item{SKU: l.Product.SKU, Quantity: l.Quantity}
	}

	// Once sent the sale may be applied on the backend, so the caller going
	// away must not abort it. The committer's own timeout bounds the wait.
	res, err := c.committer.Commit(context.WithoutCancel(ctx), items)
	if err != nil {
		c.cart.Thaw()
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		c.notes.Notify(notice.Error(notice.CheckoutFailed, failureMessage(err)))
		return nil, errors.Wrap(err, "commit sale")
	}

	r := c.receipt(lines, res.Message)
	c.cart.Clear()
	c.notes.Notify(notice.Info(notice.CheckoutSucceeded, r.Message))
	span.SetAttributes(attribute.String("receipt.id", r.ID))

	// The sale is final on the backend; a journal failure must not undo it.
	if err := c.journal.Record(context.WithoutCancel(ctx), r); err != nil {
		c.lg.Error("Record receipt", zap.String("receipt_id", r.ID), zap.Error(err))
	}
	return r, nil
}

// begin moves Idle -> Committing and freezes the cart.
func (c *Coordinator) begin() ([]cart.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Committing {
		return nil, cart.ErrCheckoutInProgress
	}

	lines, err := c.cart.Freeze()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		c.cart.Thaw()
		c.notes.Notify(notice.Warn(notice.CartEmpty, "No items to sell."))
		return nil, sale.ErrEmptyCart
	}

	c.state = Committing
	return lines, nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Idle
}

func (c *Coordinator) receipt(lines []cart.Line, msg string) *sale.Receipt {
	if msg == "" {
		msg = defaultSuccessMessage
	}
	r := &sale.Receipt{
		ID:        uuid.New().String(),
		Lines:     make([]sale.ReceiptLine, len(lines)),
		Total:     cart.Total(lines),
		Message:   msg,
		CreatedAt: c.now(),
	}
	for i, l := range lines {
		r.Lines[i] = sale.ReceiptLine{
			ProductID: l.Product.ID,
			SKU:       l.Product.SKU,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal(),
		}
	}
	return r
}

// failureMessage prefers the backend's own wording.
func failureMessage(err error) string {
	var rejected *sale.RejectedError
	if errors.As(err, &rejected) && rejected.Detail != "" {
		return rejected.Detail
	}
	return defaultFailureMessage
}
