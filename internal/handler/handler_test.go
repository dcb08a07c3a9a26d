package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/cart"
	"github.com/xenking/meditrack-pos/internal/domain/notice"
	"github.com/xenking/meditrack-pos/internal/domain/product"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
	"github.com/xenking/meditrack-pos/internal/domain/scanner"
	"github.com/xenking/meditrack-pos/internal/session"
	"github.com/xenking/meditrack-pos/internal/storage/memory"
)

// --- Stub terminal ---

type stubTerminal struct {
	events   []session.Event
	out      session.Outcome
	err      error
	notices  []notice.Notice
	receipts []sale.Receipt
}

func (s *stubTerminal) Handle(_ context.Context, ev session.Event) (session.Outcome, error) {
	s.events = append(s.events, ev)
	return s.out, s.err
}

func (s *stubTerminal) View() session.View { return s.out.View }

func (s *stubTerminal) Notices(limit int) []notice.Notice {
	if limit < len(s.notices) {
		return s.notices[:limit]
	}
	return s.notices
}

func (s *stubTerminal) Receipts(context.Context, int) ([]sale.Receipt, error) {
	return s.receipts, nil
}

func serve(t *testing.T, term Terminal, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	New(term).Routes(r)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestScan_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "suppressed", err: scanner.ErrSuppressed, status: http.StatusTooManyRequests},
		{name: "empty", err: scanner.ErrEmptyCode, status: http.StatusUnprocessableEntity},
		{name: "not found", err: errors.Wrap(product.ErrNotFound, "lookup"), status: http.StatusNotFound},
		{name: "stock", err: &cart.StockError{SKU: "A", Name: "X", Stock: 0}, status: http.StatusConflict},
		{name: "committing", err: cart.ErrCheckoutInProgress, status: http.StatusConflict},
		{name: "lookup failed", err: errors.New("connection refused"), status: http.StatusBadGateway},
		{name: "closed", err: session.ErrClosed, status: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := &stubTerminal{err: tt.err}
			w := serve(t, term, http.MethodPost, "/api/scans", `{"code":"MED-001"}`)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"code":`)
			require.Len(t, term.events, 1)
			assert.Equal(t, session.ScanDecoded{Text: "MED-001"}, term.events[0])
		})
	}
}

func TestScan_BadBody(t *testing.T) {
	for _, body := range []string{`[]`, `{"code":5}`, `{"code":`, `not json`} {
		term := &stubTerminal{}
		w := serve(t, term, http.MethodPost, "/api/scans", body)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
		assert.Empty(t, term.events, body)
	}
}

func TestPost_RequiresJSON(t *testing.T) {
	r := chi.NewRouter()
	term := &stubTerminal{out: session.Outcome{Receipt: &sale.Receipt{ID: "r-1"}}}
	New(term).Routes(r)

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		status      int
	}{
		{name: "scan as text", path: "/api/scans", contentType: "text/plain", body: `{"code":"MED-001"}`, status: http.StatusUnsupportedMediaType},
		{name: "scan as form", path: "/api/scans", contentType: "application/x-www-form-urlencoded", body: "code=MED-001", status: http.StatusUnsupportedMediaType},
		{name: "checkout without body", path: "/api/checkout", status: http.StatusUnsupportedMediaType},
		{name: "checkout as text", path: "/api/checkout", contentType: "text/plain;charset=UTF-8", status: http.StatusUnsupportedMediaType},
		{name: "scan error as text", path: "/api/scans/errors", contentType: "text/plain", body: `{"message":"x"}`, status: http.StatusUnsupportedMediaType},
		{name: "checkout with charset", path: "/api/checkout", contentType: "application/json; charset=utf-8", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term.events = nil
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Origin", "https://evil.example")
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnsupportedMediaType {
				assert.Empty(t, term.events)
				assert.JSONEq(t, `{"code":415,"message":"Content-Type must be application/json"}`, w.Body.String())
			}
		})
	}
}

func TestScanError(t *testing.T) {
	term := &stubTerminal{}
	w := serve(t, term, http.MethodPost, "/api/scans/errors", `{"message":"lens dirty"}`)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, term.events, 1)
	ev, ok := term.events[0].(session.ScanFailed)
	require.True(t, ok)
	assert.EqualError(t, ev.Err, "lens dirty")
}

func TestSetQuantity(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		term := &stubTerminal{}
		w := serve(t, term, http.MethodPut, "/api/cart/lines/7", `{"quantity":3}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, session.QuantityChanged{ProductID: 7, Quantity: 3}, term.events[0])
	})
	t.Run("MissingQuantity", func(t *testing.T) {
		w := serve(t, &stubTerminal{}, http.MethodPut, "/api/cart/lines/7", `{}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
	t.Run("FractionalQuantity", func(t *testing.T) {
		w := serve(t, &stubTerminal{}, http.MethodPut, "/api/cart/lines/7", `{"quantity":1.5}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
	t.Run("BadID", func(t *testing.T) {
		w := serve(t, &stubTerminal{}, http.MethodPut, "/api/cart/lines/abc", `{"quantity":1}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
	t.Run("UnknownLine", func(t *testing.T) {
		w := serve(t, &stubTerminal{err: cart.ErrLineNotFound}, http.MethodPut, "/api/cart/lines/7", `{"quantity":1}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "empty", err: sale.ErrEmptyCart, status: http.StatusBadRequest, message: "No items to sell."},
		{name: "in progress", err: cart.ErrCheckoutInProgress, status: http.StatusConflict, message: "checkout in progress"},
		{
			name:    "rejected with detail",
			err:     errors.Wrap(&sale.RejectedError{Status: 400, Detail: "Insufficient stock for MED-001"}, "commit sale"),
			status:  http.StatusUnprocessableEntity,
			message: "Insufficient stock for MED-001",
		},
		{
			name:    "rejected without detail",
			err:     &sale.RejectedError{Status: 500},
			status:  http.StatusUnprocessableEntity,
			message: "Failed to complete sale.",
		},
		{name: "transport", err: errors.New("timeout"), status: http.StatusBadGateway, message: "Failed to complete sale."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &stubTerminal{err: tt.err}, http.MethodPost, "/api/checkout", "")

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t,
				`{"code":`+strconv.Itoa(tt.status)+`,"message":"`+tt.message+`"}`,
				w.Body.String(),
			)
		})
	}
}

func TestNotices(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	term := &stubTerminal{notices: []notice.Notice{
		{Level: notice.LevelWarning, Code: notice.ProductNotFound, Message: "Product X not found.", At: at},
		{Level: notice.LevelInfo, Code: notice.CheckoutSucceeded, Message: "ok", At: at},
	}}

	w := serve(t, term, http.MethodGet, "/api/notices?limit=1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`[{"level":"warning","code":"product_not_found","message":"Product X not found.","at":"2024-03-01T09:00:00Z"}]`,
		w.Body.String(),
	)

	w = serve(t, term, http.MethodGet, "/api/notices?limit=zero", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// --- End to end over a real session ---

type catalog map[string]product.Product

func (c catalog) LookupSKU(_ context.Context, sku string) (*product.Product, error) {
	p, ok := c[sku]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

type committer struct{}

func (committer) Commit(context.Context, []sale.Item) (*sale.Result, error) {
	return &sale.Result{Message: "Payment successful! Stock updated."}, nil
}

type gatedCommitter struct {
	entered  chan struct{}
	release  chan struct{}
	canceled bool
}

func (c *gatedCommitter) Commit(ctx context.Context, _ []sale.Item) (*sale.Result, error) {
	close(c.entered)
	select {
	case <-c.release:
	case <-ctx.Done():
		c.canceled = true
		return nil, ctx.Err()
	}
	return &sale.Result{Message: "Payment successful! Stock updated."}, nil
}

func TestCheckout_ClientGoneMidCommit(t *testing.T) {
	commit := &gatedCommitter{entered: make(chan struct{}), release: make(chan struct{})}
	s, err := session.New(session.Config{NoticeCapacity: 8}, session.Deps{
		Catalog: catalog{
			"MED-001": {ID: 1, SKU: "MED-001", Name: "Paracetamol", Price: decimal.RequireFromString("10"), Stock: 2},
		},
		Committer:      commit,
		Journal:        memory.NewJournal(0),
		Logger:         zap.NewNop(),
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	defer s.Close()

	w := serve(t, s, http.MethodPost, "/api/scans", `{"code":"MED-001"}`)
	require.Equal(t, http.StatusOK, w.Code)

	r := chi.NewRouter()
	New(s).Routes(r)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(rec, req)
	}()

	<-commit.entered
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(commit.release)
	<-done

	assert.False(t, commit.canceled)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"Payment successful! Stock updated."`)
	assert.Empty(t, s.View().Lines)

	w = serve(t, s, http.MethodGet, "/api/receipts", "")
	assert.Contains(t, w.Body.String(), `"sku":"MED-001"`)
}

func TestSessionFlow(t *testing.T) {
	s, err := session.New(session.Config{NoticeCapacity: 8}, session.Deps{
		Catalog: catalog{
			"MED-001": {ID: 1, SKU: "MED-001", Name: "Paracetamol", Price: decimal.RequireFromString("10"), Stock: 2},
		},
		Committer:      committer{},
		Journal:        memory.NewJournal(0),
		Logger:         zap.NewNop(),
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	defer s.Close()

	w := serve(t, s, http.MethodPost, "/api/scans", `{"code":"MED-001"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"lines":[{"product_id":1,"sku":"MED-001","name":"Paracetamol","unit_price":"10.00","quantity":1,"stock":2,"subtotal":"10.00"}],
		"total":"10.00","items":1,"committing":false
	}`, w.Body.String())

	w = serve(t, s, http.MethodPut, "/api/cart/lines/1", `{"quantity":3}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"code":409,"message":"not enough stock for MED-001: 2 available"}`, w.Body.String())

	w = serve(t, s, http.MethodPost, "/api/scans", `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, s, http.MethodPost, "/api/checkout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":"10.00"`)
	assert.Contains(t, w.Body.String(), `"message":"Payment successful! Stock updated."`)

	w = serve(t, s, http.MethodGet, "/api/cart", "")
	assert.Contains(t, w.Body.String(), `"lines":[]`)

	w = serve(t, s, http.MethodGet, "/api/receipts", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sku":"MED-001"`)

	w = serve(t, s, http.MethodPost, "/api/checkout", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
