// Package scanner turns the continuous output of a QR/barcode decoder into
// discrete scan events.
package scanner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/notice"
)

var (
	// ErrEmptyCode is returned for frames that are blank after trimming.
	ErrEmptyCode = errors.New("empty scan code")
	// ErrSuppressed is returned for frames dropped by the quiescence window.
	ErrSuppressed = errors.New("scan suppressed")
)

// Event is a decoded scan. It is consumed once and never stored.
type Event struct {
	Text string
	At   time.Time
}

// Resolver receives accepted scans.
type Resolver interface {
	ResolveAndAdd(ctx context.Context, sku string) error
}

// Sink is anything that accepts raw decoder output.
type Sink interface {
	OnDecode(ctx context.Context, raw string) error
	OnError(err error)
}

// Adapter debounces decoder frames. Once a frame is accepted every further
// frame is dropped until the quiescence window has elapsed. The window is
// time based: a slow lookup can still overlap with the next accepted scan.
type Adapter struct {
	resolver Resolver
	notes    notice.Notifier
	lg       *zap.Logger
	quiet    time.Duration
	now      func() time.Time

	mu     sync.Mutex
	openAt time.Time
}

var _ Sink = (*Adapter)(nil)

// NewAdapter creates an Adapter forwarding to resolver with the given
// quiescence window.
func NewAdapter(resolver Resolver, notes notice.Notifier, lg *zap.Logger, quiet time.Duration) *Adapter {
	return &Adapter{
		resolver: resolver,
		notes:    notes,
		lg:       lg,
		quiet:    quiet,
		now:      time.Now,
	}
}

// OnDecode accepts a raw decoded frame. Only surrounding whitespace is
// removed; the text is otherwise passed on as the SKU.
func (a *Adapter) OnDecode(ctx context.Context, raw string) error {
	ev, err := a.accept(raw)
	if err != nil {
		return err
	}

	a.lg.Debug("Scan accepted", zap.String("code", ev.Text), zap.Time("at", ev.At))
	return a.resolver.ResolveAndAdd(ctx, ev.Text)
}

// OnError reports a decoder or device failure. Scanning continues and the
// cart is not touched.
func (a *Adapter) OnError(err error) {
	a.lg.Warn("Scanner error", zap.Error(err))
	a.notes.Notify(notice.Warn(notice.ScannerError, "Scanner error: "+err.Error()))
}

func (a *Adapter) accept(raw string) (Event, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Event{}, ErrEmptyCode
	}

	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if now.Before(a.openAt) {
		return Event{}, ErrSuppressed
	}
	a.openAt = now.Add(a.quiet)
	return Event{Text: text, At: now}, nil
}
