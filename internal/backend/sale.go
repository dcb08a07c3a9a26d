package backend

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/sale"
)

// DefaultSuccessMessage is used when the service confirms a sale without a
// message.
const DefaultSuccessMessage = "Payment successful! Stock updated."

var _ sale.Committer = (*Client)(nil)

// Commit posts every item in one request. Each call carries a fresh
// Idempotency-Key header.
func (c *Client) Commit(ctx context.Context, items []sale.Item) (*sale.Result, error) {
	key := uuid.NewString()
	header := http.Header{"Idempotency-Key": []string{key}}

	resp, err := c.do(ctx, http.MethodPost, c.commit, encodeSale(items), header)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return nil, &sale.RejectedError{Status: se.Status, Detail: se.Detail}
		}
		return nil, errors.Wrap(err, "commit sale")
	}

	if resp.status < 200 || resp.status >= 300 {
		return nil, &sale.RejectedError{Status: resp.status, Detail: errorDetail(resp.body)}
	}

	msg := successMessage(resp.body)
	c.lg.Info("Sale committed",
		zap.String("idempotency_key", key),
		zap.Int("items", len(items)),
		zap.Int("status", resp.status),
	)
	return &sale.Result{Message: msg}, nil
}

func encodeSale(items []sale.Item) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("medicines")
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("sku")
		e.Str(it.SKU)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func successMessage(body []byte) string {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return DefaultSuccessMessage
	}

	var msg string
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "message" || d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		msg = s
		return nil
	})
	if msg == "" {
		return DefaultSuccessMessage
	}
	return msg
}
