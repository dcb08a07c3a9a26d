package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/cart"
	"github.com/xenking/meditrack-pos/internal/domain/notice"
	"github.com/xenking/meditrack-pos/internal/domain/product"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
)

// --- Mock implementations ---

type mockCatalog struct {
	bySKU map[string]product.Product
}

func (m *mockCatalog) LookupSKU(_ context.Context, sku string) (*product.Product, error) {
	p, ok := m.bySKU[sku]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

type mockCommitter struct {
	result  *sale.Result
	err     error
	calls   atomic.Int32
	items   []sale.Item
	entered chan struct{}
	release chan struct{}
	// ctxErr is the commit context's error once released.
	ctxErr error
}

func (m *mockCommitter) Commit(ctx context.Context, items []sale.Item) (*sale.Result, error) {
	m.calls.Add(1)
	m.items = items
	if m.entered != nil {
		close(m.entered)
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
		}
	}
	m.ctxErr = ctx.Err()
	if m.ctxErr != nil {
		return nil, m.ctxErr
	}
	return m.result, m.err
}

type mockJournal struct {
	mu       sync.Mutex
	receipts []sale.Receipt
	err      error
}

func (m *mockJournal) Record(_ context.Context, r *sale.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.receipts = append(m.receipts, *r)
	return nil
}

func (m *mockJournal) Recent(_ context.Context, _ int) ([]sale.Receipt, error) {
	return nil, nil
}

func (m *mockJournal) Between(_ context.Context, _, _ time.Time) ([]sale.Receipt, error) {
	return nil, nil
}

type recorder struct {
	mu      sync.Mutex
	notices []notice.Notice
}

func (r *recorder) Notify(n notice.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) last() notice.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

// --- Helpers ---

type fixture struct {
	cart      *cart.Cart
	committer *mockCommitter
	journal   *mockJournal
	notes     *recorder
	coord     *Coordinator
}

func newFixture(t *testing.T, committer *mockCommitter, scans ...string) *fixture {
	t.Helper()

	catalog := &mockCatalog{bySKU: map[string]product.Product{
		"MED-001": {ID: 1, SKU: "MED-001", Name: "Paracetamol", Price: decimal.RequireFromString("10.00"), Stock: 5},
		"MED-002": {ID: 2, SKU: "MED-002", Name: "Amoxicillin", Price: decimal.RequireFromString("4.25"), Stock: 5},
	}}

	c := cart.New()
	notes := &recorder{}
	engine := cart.NewEngine(c, catalog, notes)
	for _, sku := range scans {
		require.NoError(t, engine.ResolveAndAdd(context.Background(), sku))
	}

	journal := &mockJournal{}
	return &fixture{
		cart:      c,
		committer: committer,
		journal:   journal,
		notes:     notes,
		coord:     NewCoordinator(c, committer, journal, notes, zap.NewNop(), noop.NewTracerProvider()),
	}
}

// --- Tests ---

func TestComplete_EmptyCart(t *testing.T) {
	f := newFixture(t, &mockCommitter{})

	r, err := f.coord.Complete(context.Background())

	require.ErrorIs(t, err, sale.ErrEmptyCart)
	assert.Nil(t, r)
	assert.Zero(t, f.committer.calls.Load(), "empty cart must never reach the backend")
	assert.Equal(t, notice.CartEmpty, f.notes.last().Code)
	assert.Equal(t, Idle, f.coord.State())
	assert.False(t, f.cart.Frozen())
}

func TestComplete_Success(t *testing.T) {
	f := newFixture(t,
		&mockCommitter{result: &sale.Result{Message: "Sale recorded"}},
		"MED-001", "MED-001", "MED-002",
	)

	r, err := f.coord.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []sale.Item{
		{SKU: "MED-001", Quantity: 2},
		{SKU: "MED-002", Quantity: 1},
	}, f.committer.items)

	assert.Equal(t, 0, f.cart.Len())
	assert.False(t, f.cart.Frozen())
	assert.Equal(t, Idle, f.coord.State())

	require.NotNil(t, r)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Sale recorded", r.Message)
	assert.True(t, decimal.RequireFromString("24.25").Equal(r.Total))
	require.Len(t, r.Lines, 2)
	assert.True(t, decimal.RequireFromString("20.00").Equal(r.Lines[0].Subtotal))

	last := f.notes.last()
	assert.Equal(t, notice.CheckoutSucceeded, last.Code)
	assert.Equal(t, "Sale recorded", last.Message)

	require.Len(t, f.journal.receipts, 1)
	assert.Equal(t, r.ID, f.journal.receipts[0].ID)
}

func TestComplete_DefaultSuccessMessage(t *testing.T) {
	f := newFixture(t, &mockCommitter{result: &sale.Result{}}, "MED-001")

	r, err := f.coord.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultSuccessMessage, r.Message)
}

func TestComplete_FailureLeavesCartUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "server detail shown verbatim",
			err:     &sale.RejectedError{Status: 400, Detail: "Insufficient stock for MED-001"},
			wantMsg: "Insufficient stock for MED-001",
		},
		{
			name:    "rejection without detail",
			err:     &sale.RejectedError{Status: 500},
			wantMsg: defaultFailureMessage,
		},
		{
			name:    "network failure",
			err:     errors.New("dial tcp: connection refused"),
			wantMsg: defaultFailureMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &mockCommitter{err: tt.err}, "MED-001", "MED-001")
			before := f.cart.Lines()

			r, err := f.coord.Complete(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, r)
			assert.Equal(t, before, f.cart.Lines())
			assert.False(t, f.cart.Frozen())
			assert.Equal(t, Idle, f.coord.State())
			assert.Empty(t, f.journal.receipts)

			last := f.notes.last()
			assert.Equal(t, notice.CheckoutFailed, last.Code)
			assert.Equal(t, notice.LevelError, last.Level)
			assert.Equal(t, tt.wantMsg, last.Message)
		})
	}
}

func TestComplete_RetryAfterFailure(t *testing.T) {
	committer := &mockCommitter{err: &sale.RejectedError{Status: 400, Detail: "Insufficient stock"}}
	f := newFixture(t, committer, "MED-001")

	_, err := f.coord.Complete(context.Background())
	require.Error(t, err)

	committer.err = nil
	committer.result = &sale.Result{Message: "ok"}
	_, err = f.coord.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), committer.calls.Load())
	assert.Equal(t, 0, f.cart.Len())
}

func TestComplete_IgnoresDuplicateWhileCommitting(t *testing.T) {
	committer := &mockCommitter{
		result:  &sale.Result{Message: "ok"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, committer, "MED-001")

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Complete(context.Background())
		done <- err
	}()

	<-committer.entered
	assert.Equal(t, Committing, f.coord.State())
	assert.True(t, f.cart.Frozen())

	_, err := f.coord.Complete(context.Background())
	require.ErrorIs(t, err, cart.ErrCheckoutInProgress)

	close(committer.release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), committer.calls.Load())
	assert.Equal(t, Idle, f.coord.State())
}

func TestComplete_CallerCancelDoesNotAbortCommit(t *testing.T) {
	committer := &mockCommitter{
		result:  &sale.Result{Message: "ok"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, committer, "MED-001", "MED-002")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Complete(ctx)
		done <- err
	}()

	<-committer.entered
	cancel()
	// Give a cancellation-aware committer the chance to observe it.
	time.Sleep(10 * time.Millisecond)
	close(committer.release)

	require.NoError(t, <-done)
	assert.NoError(t, committer.ctxErr)
	assert.Equal(t, int32(1), committer.calls.Load())
	assert.Equal(t, 0, f.cart.Len())
	assert.Equal(t, Idle, f.coord.State())
	require.Len(t, f.journal.receipts, 1)
}

func TestComplete_JournalFailureKeepsSale(t *testing.T) {
	f := newFixture(t, &mockCommitter{result: &sale.Result{Message: "ok"}}, "MED-001")
	f.journal.err = errors.New("disk full")

	r, err := f.coord.Complete(context.Background())

	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 0, f.cart.Len())
}
