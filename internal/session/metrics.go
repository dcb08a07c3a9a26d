package session

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/meditrack-pos/internal/domain/product"
)

type metrics struct {
	scans     metric.Int64Counter
	lookups   metric.Int64Counter
	checkouts metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter("github.com/xenking/meditrack-pos/internal/session")

	scans, err := meter.Int64Counter("pos.scans",
		metric.WithDescription("Decoded scans by debounce result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "scans counter")
	}
	lookups, err := meter.Int64Counter("pos.lookups",
		metric.WithDescription("Product lookups by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "lookups counter")
	}
	checkouts, err := meter.Int64Counter("pos.checkouts",
		metric.WithDescription("Checkout commits by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkouts counter")
	}

	return &metrics{scans: scans, lookups: lookups, checkouts: checkouts}, nil
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter, result string) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// countingCatalog records the outcome of every lookup.
type countingCatalog struct {
	next    product.Catalog
	metrics *metrics
}

func (c *countingCatalog) LookupSKU(ctx context.Context, sku string) (*product.Product, error) {
	p, err := c.next.LookupSKU(ctx, sku)
	switch {
	case err == nil:
		c.metrics.add(ctx, c.metrics.lookups, "found")
	case errors.Is(err, product.ErrNotFound):
		c.metrics.add(ctx, c.metrics.lookups, "not_found")
	default:
		c.metrics.add(ctx, c.metrics.lookups, "error")
	}
	return p, err
}
