package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/meditrack-pos/internal/domain/cart"
	"github.com/xenking/meditrack-pos/internal/domain/product"
	"github.com/xenking/meditrack-pos/internal/domain/scanner"
	"github.com/xenking/meditrack-pos/internal/session"
)

func (h *Handler) getCart(w http.ResponseWriter, _ *http.Request) {
	writeView(w, h.term.View())
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var code string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		if d.Next() != jx.String {
			return errorf(http.StatusUnprocessableEntity, "code must be a string")
		}
		v, err := d.Str()
		code = v
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.term.Handle(r.Context(), session.ScanDecoded{Text: code})
	if err != nil {
		writeError(w, r, mapCartError(err))
		return
	}
	writeView(w, out.View)
}

func (h *Handler) scanError(w http.ResponseWriter, r *http.Request) {
	msg := "scanner error"
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "message" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		if v != "" {
			msg = v
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.term.Handle(r.Context(), session.ScanFailed{Err: errors.New(msg)}); err != nil {
		writeError(w, r, mapCartError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	qty, seen := 0, false
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		if d.Next() != jx.Number {
			return errorf(http.StatusUnprocessableEntity, "quantity must be an integer")
		}
		v, err := d.Int()
		if err != nil {
			return errorf(http.StatusUnprocessableEntity, "quantity must be an integer")
		}
		qty, seen = v, true
		return nil
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if !seen {
		writeError(w, r, errorf(http.StatusUnprocessableEntity, "quantity is required"))
		return
	}

	out, err := h.term.Handle(r.Context(), session.QuantityChanged{ProductID: id, Quantity: qty})
	if err != nil {
		writeError(w, r, mapCartError(err))
		return
	}
	writeView(w, out.View)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.term.Handle(r.Context(), session.LineRemoved{ProductID: id})
	if err != nil {
		writeError(w, r, mapCartError(err))
		return
	}
	writeView(w, out.View)
}

func (h *Handler) abandonCart(w http.ResponseWriter, r *http.Request) {
	out, err := h.term.Handle(r.Context(), session.Abandoned{})
	if err != nil {
		writeError(w, r, mapCartError(err))
		return
	}
	writeView(w, out.View)
}

// mapCartError maps cart and scan failures to API errors.
func mapCartError(err error) error {
	switch {
	case errors.Is(err, scanner.ErrSuppressed):
		return errorf(http.StatusTooManyRequests, "scan suppressed")
	case errors.Is(err, scanner.ErrEmptyCode):
		return errorf(http.StatusUnprocessableEntity, "empty scan code")
	case errors.Is(err, product.ErrNotFound):
		return errorf(http.StatusNotFound, "product not found")
	case errors.Is(err, cart.ErrLineNotFound):
		return errorf(http.StatusNotFound, "cart line not found")
	case errors.Is(err, cart.ErrInsufficientStock):
		var se *cart.StockError
		if errors.As(err, &se) {
			return errorf(http.StatusConflict, se.Error())
		}
		return errorf(http.StatusConflict, "not enough stock")
	case errors.Is(err, cart.ErrCheckoutInProgress):
		return errorf(http.StatusConflict, "checkout in progress")
	case errors.Is(err, session.ErrClosed):
		return errorf(http.StatusServiceUnavailable, "session closed")
	default:
		return &apiError{status: http.StatusBadGateway, msg: "product lookup failed", cause: err}
	}
}
