// Package notice carries user-visible, dismissable notifications raised by the
// point-of-sale flow. None of them is fatal.
package notice

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity shown to the cashier.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Code identifies the condition behind a notice.
type Code string

const (
	ProductNotFound    Code = "product_not_found"
	LookupFailed       Code = "lookup_failed"
	InsufficientStock  Code = "insufficient_stock"
	CartEmpty          Code = "cart_empty"
	CheckoutInProgress Code = "checkout_in_progress"
	CheckoutFailed     Code = "checkout_failed"
	CheckoutSucceeded  Code = "checkout_succeeded"
	ScannerError       Code = "scanner_error"
)

// Notice is a single notification.
type Notice struct {
	Level   Level
	Code    Code
	Message string
	At      time.Time
}

// Notifier accepts notices from the cart, checkout and scanner components.
type Notifier interface {
	Notify(n Notice)
}

// Warn is a shorthand for a warning notice stamped with the current time.
func Warn(code Code, msg string) Notice {
	return Notice{Level: LevelWarning, Code: code, Message: msg, At: time.Now()}
}

// Error is a shorthand for an error notice stamped with the current time.
func Error(code Code, msg string) Notice {
	return Notice{Level: LevelError, Code: code, Message: msg, At: time.Now()}
}

// Info is a shorthand for an informational notice stamped with the current time.
func Info(code Code, msg string) Notice {
	return Notice{Level: LevelInfo, Code: code, Message: msg, At: time.Now()}
}

// Feed keeps the most recent notices in a fixed-size ring and mirrors each
// one to the logger.
type Feed struct {
	lg *zap.Logger

	mu   sync.Mutex
	buf  []Notice
	next int
	full bool
}

var _ Notifier = (*Feed)(nil)

// NewFeed creates a Feed holding at most capacity notices.
func NewFeed(lg *zap.Logger, capacity int) *Feed {
	if capacity <= 0 {
		capacity = 1
	}
	return &Feed{lg: lg, buf: make([]Notice, capacity)}
}

// Notify appends n, evicting the oldest notice when the ring is full.
func (f *Feed) Notify(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}

	fields := []zap.Field{zap.String("code", string(n.Code)), zap.String("message", n.Message)}
	switch n.Level {
	case LevelError:
		f.lg.Error("Notice", fields...)
	case LevelWarning:
		f.lg.Warn("Notice", fields...)
	default:
		f.lg.Info("Notice", fields...)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf[f.next] = n
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
}

// Recent returns up to limit notices, newest first. A non-positive limit
// returns everything retained.
func (f *Feed) Recent(limit int) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	size := f.next
	if f.full {
		size = len(f.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Notice, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.buf)) % len(f.buf)
		out = append(out, f.buf[idx])
	}
	return out
}
