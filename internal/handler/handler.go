// Package handler exposes a terminal session over a local JSON API for the
// till UI.
package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/notice"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
	"github.com/xenking/meditrack-pos/internal/session"
)

const (
	maxRequestBody = 64 << 10
	defaultLimit   = 20
	maxLimit       = 500
)

// Terminal is the session surface served by the API.
type Terminal interface {
	Handle(ctx context.Context, ev session.Event) (session.Outcome, error)
	View() session.View
	Notices(limit int) []notice.Notice
	Receipts(ctx context.Context, limit int) ([]sale.Receipt, error)
}

var _ Terminal = (*session.Session)(nil)

// Handler serves the terminal API.
type Handler struct {
	term Terminal
}

// New creates a Handler.
func New(term Terminal) *Handler {
	return &Handler{term: term}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/cart", h.getCart)
		r.Delete("/cart", h.abandonCart)
		r.Put("/cart/lines/{productID}", h.setQuantity)
		r.Delete("/cart/lines/{productID}", h.removeLine)
		// POST is the only method a foreign page can send without a
		// preflight; a JSON content type forces one.
		r.With(requireJSON).Post("/scans", h.scan)
		r.With(requireJSON).Post("/scans/errors", h.scanError)
		r.With(requireJSON).Post("/checkout", h.checkout)
		r.Get("/notices", h.notices)
		r.Get("/receipts", h.receipts)
	})
}

// apiError is written as {"code": status, "message": msg}.
type apiError struct {
	status int
	msg    string
	cause  error
}

func (e *apiError) Error() string { return e.msg }

func (e *apiError) Unwrap() error { return e.cause }

func errorf(status int, msg string) *apiError {
	return &apiError{status: status, msg: msg}
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apiError
	if !errors.As(err, &ae) {
		ae = errorf(http.StatusInternalServerError, "internal error")
	}
	if ae.status >= http.StatusInternalServerError {
		cause := err
		if ae.cause != nil {
			cause = ae.cause
		}
		zctx.From(r.Context()).Warn("Request failed", zap.Int("status", ae.status), zap.Error(cause))
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(ae.status)
	e.FieldStart("message")
	e.Str(ae.msg)
	e.ObjEnd()
	writeJSON(w, ae.status, &e)
}

func writeView(w http.ResponseWriter, v session.View) {
	var e jx.Encoder
	encodeView(&e, v)
	writeJSON(w, http.StatusOK, &e)
}

// requireJSON rejects requests that do not declare an application/json body.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeError(w, r, errorf(http.StatusUnsupportedMediaType, "Content-Type must be application/json"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeBody reads a JSON object from the request, calling field for each
// key.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err != nil {
		return errorf(http.StatusRequestEntityTooLarge, "request body too large")
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return errorf(http.StatusUnprocessableEntity, "request body must be a JSON object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		var ae *apiError
		if errors.As(err, &ae) {
			return ae
		}
		return errorf(http.StatusUnprocessableEntity, "malformed JSON body")
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errorf(http.StatusUnprocessableEntity, "limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorf(http.StatusUnprocessableEntity, "invalid product id")
	}
	return id, nil
}
