package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/meditrack-pos/internal/domain/sale"
)

// summary aggregates an export.
type summary struct {
	Receipts int
	Items    int
	Revenue  decimal.Decimal
}

// export writes receipts created in [from, to) to w as gzip-compressed JSON
// lines, oldest first.
func export(ctx context.Context, j sale.Journal, from, to time.Time, w io.Writer) (summary, error) {
	receipts, err := j.Between(ctx, from, to)
	if err != nil {
		return summary{}, errors.Wrap(err, "load receipts")
	}

	gz := pgzip.NewWriter(w)
	enc := json.NewEncoder(gz)

	sum := summary{Revenue: decimal.Zero}
	for i := range receipts {
		if err := ctx.Err(); err != nil {
			_ = gz.Close()
			return summary{}, err
		}
		r := &receipts[i]
		if err := enc.Encode(r); err != nil {
			_ = gz.Close()
			return summary{}, errors.Wrapf(err, "encode receipt %q", r.ID)
		}
		sum.Receipts++
		sum.Revenue = sum.Revenue.Add(r.Total)
		for _, l := range r.Lines {
			sum.Items += l.Quantity
		}
	}

	if err := gz.Close(); err != nil {
		return summary{}, errors.Wrap(err, "flush gzip")
	}
	return sum, nil
}
