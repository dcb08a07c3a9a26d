// Package backend is the HTTP client of the pharmacy inventory service.
package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxBodySize bounds responses read from the backend.
const maxBodySize = 1 << 20

// Config configures the backend client.
type Config struct {
	BaseURL    string        `default:"http://127.0.0.1:8000/shop/api/" usage:"Inventory service base URL"`
	LookupPath string        `default:"product/sku/" usage:"SKU lookup path relative to the base URL"`
	CommitPath string        `default:"sell-medicine/" usage:"Sale commit path relative to the base URL"`
	Timeout    time.Duration `default:"10s" usage:"Per-request timeout"`
	Breaker    BreakerConfig
}

// BreakerConfig configures the circuit breaker guarding the backend.
type BreakerConfig struct {
	Failures uint32        `default:"5" usage:"Consecutive failures before the breaker opens"`
	Cooldown time.Duration `default:"30s" usage:"Open state duration before a trial request"`
}

// Client talks to the inventory service. It implements product.Catalog and
// sale.Committer.
type Client struct {
	base    *url.URL
	lookup  *url.URL
	commit  *url.URL
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[response]
	lg      *zap.Logger
}

type response struct {
	status int
	body   []byte
}

// New creates a Client.
func New(cfg Config, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("base url %q: unsupported scheme", cfg.BaseURL)
	}
	lookup, err := base.Parse(cfg.LookupPath)
	if err != nil {
		return nil, errors.Wrap(err, "parse lookup path")
	}
	commit, err := base.Parse(cfg.CommitPath)
	if err != nil {
		return nil, errors.Wrap(err, "parse commit path")
	}

	lg = lg.Named("backend")
	c := &Client{
		base:    base,
		lookup:  lookup,
		commit:  commit,
		timeout: cfg.Timeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		},
		lg: lg,
	}
	c.breaker = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.Breaker.Failures > 0 && counts.ConsecutiveFailures >= cfg.Breaker.Failures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation by the caller says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return c, nil
}

// do sends a request through the breaker. Transport failures and 5xx
// responses are errors; any other status is returned to the caller.
func (c *Client) do(ctx context.Context, method string, u *url.URL, body []byte, header http.Header) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.breaker.Execute(func() (response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
		if err != nil {
			return response{}, errors.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return response{}, errors.Wrap(err, "send request")
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return response{}, errors.Wrap(err, "read response")
		}
		r := response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, &StatusError{Status: resp.StatusCode, Detail: errorDetail(data)}
		}
		return r, nil
	})
}

// Ping reports whether the backend is up: any answer below 500 counts, as
// the API root may well be a 404. It bypasses the breaker so readiness
// reflects the backend rather than breaker state.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "ping backend")
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Wrap(&StatusError{Status: resp.StatusCode}, "ping backend")
	}
	return nil
}
