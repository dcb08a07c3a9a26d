package backend

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/meditrack-pos/internal/domain/product"
)

var _ product.Catalog = (*Client)(nil)

// LookupSKU fetches the product registered under sku.
//
// A 404, an empty body and the {"error": ...} body the service answers
// with for unknown SKUs all map to product.ErrNotFound.
func (c *Client) LookupSKU(ctx context.Context, sku string) (*product.Product, error) {
	u := *c.lookup
	q := u.Query()
	q.Set("sku", sku)
	u.RawQuery = q.Encode()

	resp, err := c.do(ctx, http.MethodGet, &u, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "lookup sku")
	}

	switch {
	case resp.status == http.StatusNotFound:
		return nil, product.ErrNotFound
	case resp.status < 200 || resp.status >= 300:
		return nil, &StatusError{Status: resp.status, Detail: errorDetail(resp.body)}
	}

	p, err := parseProduct(resp.body)
	if err != nil {
		if !errors.Is(err, product.ErrNotFound) {
			c.lg.Warn("Invalid product payload", zap.String("sku", sku), zap.Error(err))
		}
		return nil, err
	}
	return p, nil
}

// parseProduct decodes and validates a product object. Unknown fields are
// ignored.
func parseProduct(body []byte) (*product.Product, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, product.ErrNotFound
	}

	d := jx.DecodeBytes(body)
	switch d.Next() {
	case jx.Object:
	case jx.Null:
		return nil, product.ErrNotFound
	default:
		return nil, &ParseError{Field: "$", Reason: "not an object"}
	}

	var (
		p    product.Product
		seen = map[string]bool{}
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := string(key)
		switch k {
		case "error":
			seen[k] = true
			return d.Skip()
		case "id":
			v, err := d.Int64()
			if err != nil || v <= 0 {
				return &ParseError{Field: k, Reason: "must be a positive integer"}
			}
			p.ID = v
		case "sku":
			v, err := str(d)
			if err != nil || v == "" {
				return &ParseError{Field: k, Reason: "must be a non-empty string"}
			}
			p.SKU = v
		case "name":
			v, err := str(d)
			if err != nil || v == "" {
				return &ParseError{Field: k, Reason: "must be a non-empty string"}
			}
			p.Name = v
		case "price":
			v, err := price(d)
			if err != nil || v.IsNegative() {
				return &ParseError{Field: k, Reason: "must be a non-negative decimal"}
			}
			p.Price = v
		case "quantity":
			v, err := d.Int()
			if err != nil || v < 0 {
				return &ParseError{Field: k, Reason: "must be a non-negative integer"}
			}
			p.Stock = v
		default:
			return d.Skip()
		}
		seen[k] = true
		return nil
	})
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, &ParseError{Field: "$", Reason: err.Error()}
	}

	if seen["error"] && !seen["id"] {
		return nil, product.ErrNotFound
	}
	for _, f := range []string{"id", "sku", "name", "price", "quantity"} {
		if !seen[f] {
			return nil, &ParseError{Field: f, Reason: "missing"}
		}
	}
	return &p, nil
}

func str(d *jx.Decoder) (string, error) {
	if d.Next() != jx.String {
		return "", errors.New("not a string")
	}
	return d.Str()
}

// price accepts both a JSON number and a decimal string.
func price(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("not a number")
	}
}
