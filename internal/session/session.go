// Package session binds the scanner, cart and checkout of one POS screen
// together and routes every external input through a single entry point.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/cart"
	"github.com/xenking/meditrack-pos/internal/domain/checkout"
	"github.com/xenking/meditrack-pos/internal/domain/notice"
	"github.com/xenking/meditrack-pos/internal/domain/product"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
	"github.com/xenking/meditrack-pos/internal/domain/scanner"
)

// ErrClosed is returned by Handle after Close.
var ErrClosed = errors.New("session closed")

// Config tunes a Session.
type Config struct {
	// QuietWindow is the scanner quiescence window.
	QuietWindow time.Duration
	// NoticeCapacity bounds the notice feed.
	NoticeCapacity int
}

// Deps are the collaborators a Session is built from.
type Deps struct {
	Catalog        product.Catalog
	Committer      sale.Committer
	Journal        sale.Journal
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Outcome is the result of handling an Event.
type Outcome struct {
	View View
	// Receipt is set for a confirmed checkout.
	Receipt *sale.Receipt
}

// Session owns the cart of one POS screen for its whole lifetime.
type Session struct {
	cart    *cart.Cart
	engine  *cart.Engine
	adapter *scanner.Adapter
	coord   *checkout.Coordinator
	feed    *notice.Feed
	journal sale.Journal
	metrics *metrics
	lg      *zap.Logger
	closed  atomic.Bool
}

var _ scanner.Sink = (*Session)(nil)

// New opens a session with an empty cart.
func New(cfg Config, deps Deps) (*Session, error) {
	m, err := newMetrics(deps.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}

	lg := deps.Logger.Named("session")
	feed := notice.NewFeed(lg, cfg.NoticeCapacity)
	c := cart.New()
	engine := cart.NewEngine(c, &countingCatalog{next: deps.Catalog, metrics: m}, feed)

	s := &Session{
		cart:    c,
		engine:  engine,
		adapter: scanner.NewAdapter(engine, feed, lg, cfg.QuietWindow),
		coord:   checkout.NewCoordinator(c, deps.Committer, deps.Journal, feed, lg, deps.TracerProvider),
		feed:    feed,
		journal: deps.Journal,
		metrics: m,
		lg:      lg,
	}
	lg.Info("Session opened", zap.Duration("quiet_window", cfg.QuietWindow))
	return s, nil
}

// Handle applies ev and returns the resulting cart view. Rejections are
// reported both as the returned error and as a notice in the feed.
func (s *Session) Handle(ctx context.Context, ev Event) (Outcome, error) {
	if s.closed.Load() {
		return Outcome{}, ErrClosed
	}

	var (
		out Outcome
		err error
	)
	switch ev := ev.(type) {
	case ScanDecoded:
		err = s.scan(ctx, ev.Text)
	case ScanFailed:
		s.adapter.OnError(ev.Err)
	case QuantityChanged:
		err = s.engine.SetQuantity(ev.ProductID, ev.Quantity)
	case LineRemoved:
		err = s.engine.Remove(ev.ProductID)
	case CheckoutRequested:
		out.Receipt, err = s.checkout(ctx)
	case Abandoned:
		err = s.abandon()
	default:
		return Outcome{}, errors.Errorf("unknown event %T", ev)
	}

	out.View = s.View()
	return out, err
}

func (s *Session) scan(ctx context.Context, text string) error {
	err := s.adapter.OnDecode(ctx, text)
	switch {
	case errors.Is(err, scanner.ErrSuppressed):
		s.metrics.add(ctx, s.metrics.scans, "suppressed")
	case errors.Is(err, scanner.ErrEmptyCode):
		s.metrics.add(ctx, s.metrics.scans, "empty")
	default:
		s.metrics.add(ctx, s.metrics.scans, "accepted")
	}
	return err
}

func (s *Session) checkout(ctx context.Context) (*sale.Receipt, error) {
	r, err := s.coord.Complete(ctx)
	switch {
	case err == nil:
		s.metrics.add(ctx, s.metrics.checkouts, "succeeded")
	case errors.Is(err, cart.ErrCheckoutInProgress), errors.Is(err, sale.ErrEmptyCart):
		// Nothing was sent.
	default:
		s.metrics.add(ctx, s.metrics.checkouts, "failed")
	}
	return r, err
}

func (s *Session) abandon() error {
	if err := s.cart.Reset(); err != nil {
		s.feed.Notify(notice.Warn(notice.CheckoutInProgress, "Checkout in progress, wait for it to finish."))
		return err
	}
	s.lg.Info("Cart abandoned")
	return nil
}

// OnDecode implements scanner.Sink.
func (s *Session) OnDecode(ctx context.Context, raw string) error {
	_, err := s.Handle(ctx, ScanDecoded{Text: raw})
	return err
}

// OnError implements scanner.Sink.
func (s *Session) OnError(err error) {
	_, _ = s.Handle(context.Background(), ScanFailed{Err: err})
}

// View returns the current cart snapshot.
func (s *Session) View() View {
	return newView(s.cart.Lines(), s.coord.State() == checkout.Committing)
}

// Notices returns up to limit notices, newest first.
func (s *Session) Notices(limit int) []notice.Notice {
	return s.feed.Recent(limit)
}

// Receipts returns up to limit journaled sales, newest first.
func (s *Session) Receipts(ctx context.Context, limit int) ([]sale.Receipt, error) {
	return s.journal.Recent(ctx, limit)
}

// Close ends the session. A commit already in flight runs to completion.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.lg.Info("Session closed", zap.Int("lines", s.cart.Len()))
}
