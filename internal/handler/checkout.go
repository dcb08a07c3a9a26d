package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/meditrack-pos/internal/domain/cart"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
	"github.com/xenking/meditrack-pos/internal/session"
)

const saleFailedMessage = "Failed to complete sale."

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	out, err := h.term.Handle(r.Context(), session.CheckoutRequested{})
	if err != nil {
		writeError(w, r, mapCheckoutError(err))
		return
	}

	var e jx.Encoder
	encodeReceipt(&e, out.Receipt)
	writeJSON(w, http.StatusOK, &e)
}

func mapCheckoutError(err error) error {
	var rejected *sale.RejectedError
	switch {
	case errors.Is(err, sale.ErrEmptyCart):
		return errorf(http.StatusBadRequest, "No items to sell.")
	case errors.Is(err, cart.ErrCheckoutInProgress):
		return errorf(http.StatusConflict, "checkout in progress")
	case errors.Is(err, session.ErrClosed):
		return errorf(http.StatusServiceUnavailable, "session closed")
	case errors.As(err, &rejected):
		msg := rejected.Detail
		if msg == "" {
			msg = saleFailedMessage
		}
		return &apiError{status: http.StatusUnprocessableEntity, msg: msg, cause: err}
	default:
		return &apiError{status: http.StatusBadGateway, msg: saleFailedMessage, cause: err}
	}
}

func (h *Handler) notices(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, n := range h.term.Notices(limit) {
		encodeNotice(&e, n)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) receipts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.term.Receipts(r.Context(), limit)
	if err != nil {
		writeError(w, r, &apiError{status: http.StatusServiceUnavailable, msg: "receipt journal unavailable", cause: err})
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range list {
		encodeReceipt(&e, &list[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}
