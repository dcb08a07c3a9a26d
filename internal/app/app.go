package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/meditrack-pos/internal/backend"
	"github.com/xenking/meditrack-pos/internal/domain/sale"
	"github.com/xenking/meditrack-pos/internal/domain/scanner"
	"github.com/xenking/meditrack-pos/internal/handler"
	"github.com/xenking/meditrack-pos/internal/session"
	"github.com/xenking/meditrack-pos/internal/storage/memory"
	"github.com/xenking/meditrack-pos/internal/storage/postgres"
	"github.com/xenking/meditrack-pos/pkg/health"
	"github.com/xenking/meditrack-pos/pkg/httpmiddleware"
)

// Run creates all dependencies, serves the local API, reads the scanner
// device and handles graceful shutdown. It is the single wiring point of the
// terminal.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	healthSvc := health.New()
	healthSvc.Add(health.Probe{
		Name:  "goroutines",
		Kind:  health.Liveness,
		Check: health.GoroutineCountCheck(10000),
	})

	client, err := backend.New(cfg.Backend, lg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create backend client")
	}
	healthSvc.Add(health.Probe{
		Name:    "backend",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Check:   client.Ping,
	})

	journal, closeJournal, err := openJournal(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeJournal()

	sess, err := session.New(session.Config{
		QuietWindow:    cfg.Scanner.QuietWindow,
		NoticeCapacity: cfg.Notices.Capacity,
	}, session.Deps{
		Catalog:        client,
		Committer:      client,
		Journal:        journal,
		Logger:         lg,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "open session")
	}
	defer sess.Close()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout waits for the backend.
		WriteTimeout:   cfg.Backend.Timeout + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        newHandler(zctx.From(ctx), m.TracerProvider(), m.MeterProvider(), cfg.CORS, healthSvc, sess),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gctx, cfg.Health.Interval)
	})
	if cfg.Scanner.Device != "" {
		g.Go(func() error {
			return readScanner(gctx, lg, cfg.Scanner.Device, sess)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		healthSvc.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// newHandler builds the HTTP stack. Per-request logging and tracing run
// inside the router so they see the matched route.
func newHandler(
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cors CORSConfig,
	h *health.Health,
	term handler.Terminal,
) http.Handler {
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Instrument("pos-terminal", tp, mp),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", h.LiveEndpoint)
	router.Get("/readyz", h.ReadyEndpoint)
	handler.New(term).Routes(router)

	return httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:     cors.Origins,
			Headers:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
			Expose:      []string{httpmiddleware.RequestIDHeader},
			Credentials: cors.AllowCredentials,
			MaxAge:      86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
	)
}

// openJournal connects the PostgreSQL journal, or falls back to memory when
// no database is configured.
func openJournal(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (sale.Journal, func(), error) {
	if cfg.DatabaseURL == "" {
		lg.Info("No database configured, keeping receipts in memory",
			zap.Int("capacity", cfg.Journal.Capacity),
		)
		return memory.NewJournal(cfg.Journal.Capacity), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	h.Add(health.Probe{
		Name:     "postgres",
		Kind:     health.Readiness,
		Timeout:  5 * time.Second,
		Optional: true,
		Check:    pool.Ping,
	})
	return postgres.NewJournal(pool), pool.Close, nil
}

// readScanner feeds a line-oriented scanner device into the session.
func readScanner(ctx context.Context, lg *zap.Logger, device string, sink scanner.Sink) error {
	lg = lg.Named("scanner")

	var src io.ReadCloser = os.Stdin
	if device != "-" {
		f, err := os.Open(device)
		if err != nil {
			// The display can still forward camera scans.
			lg.Error("Open scanner device", zap.String("device", device), zap.Error(err))
			sink.OnError(errors.Wrap(err, "open scanner device"))
			return nil
		}
		src = f
	}

	lg.Info("Reading scanner device", zap.String("device", device))
	return consumeScanner(ctx, lg, src, sink)
}

// consumeScanner runs the device reader until ctx is done. Closing stdin or a
// tty does not interrupt a blocked read, so on shutdown the reader goroutine
// is abandoned rather than awaited; it exits with the process.
func consumeScanner(ctx context.Context, lg *zap.Logger, src io.ReadCloser, sink scanner.Sink) error {
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- scanner.NewReader(src, sink, lg).Run(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}
