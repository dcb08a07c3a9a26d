// Package memory keeps the receipt journal in process memory for terminals
// running without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/meditrack-pos/internal/domain/sale"
)

var _ sale.Journal = (*Journal)(nil)

// Journal is an append-only in-memory sale.Journal. When capacity is
// positive the oldest receipts are dropped beyond it.
type Journal struct {
	mu       sync.RWMutex
	receipts []sale.Receipt
	ids      map[string]struct{}
	capacity int
}

// NewJournal creates a Journal holding at most capacity receipts.
func NewJournal(capacity int) *Journal {
	return &Journal{
		ids:      make(map[string]struct{}),
		capacity: capacity,
	}
}

// Record appends r.
func (j *Journal) Record(_ context.Context, r *sale.Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.ids[r.ID]; ok {
		return errors.Errorf("receipt %q already recorded", r.ID)
	}
	j.ids[r.ID] = struct{}{}
	j.receipts = append(j.receipts, *r)

	if j.capacity > 0 && len(j.receipts) > j.capacity {
		drop := len(j.receipts) - j.capacity
		for _, old := range j.receipts[:drop] {
			delete(j.ids, old.ID)
		}
		j.receipts = append([]sale.Receipt(nil), j.receipts[drop:]...)
	}
	return nil
}

// Recent returns up to limit receipts, newest first.
func (j *Journal) Recent(_ context.Context, limit int) ([]sale.Receipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := len(j.receipts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]sale.Receipt, 0, n)
	for i := len(j.receipts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, j.receipts[i])
	}
	return out, nil
}

// Between returns receipts created in [from, to), oldest first.
func (j *Journal) Between(_ context.Context, from, to time.Time) ([]sale.Receipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []sale.Receipt
	for _, r := range j.receipts {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}
