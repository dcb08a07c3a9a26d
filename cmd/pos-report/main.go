// Command pos-report exports journaled sales as gzip-compressed JSON lines
// for the back office.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/meditrack-pos/internal/storage/postgres"
)

const dateLayout = "2006-01-02"

func main() {
	_ = godotenv.Load()

	today := time.Now().Format(dateLayout)
	var (
		databaseURL string
		from, to    string
		out         string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&from, "from", today, "first day to export, inclusive (YYYY-MM-DD, local time)")
	flag.StringVar(&to, "to", "", "last day to export, inclusive (default: same as -from)")
	flag.StringVar(&out, "out", "", "output file (default receipts-<from>.jsonl.gz, '-' for stdout)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if to == "" {
		to = from
	}
	if out == "" {
		out = "receipts-" + from + ".jsonl.gz"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, from, to, out); err != nil {
		slog.Error("report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, fromDay, toDay, out string) error {
	from, to, err := parseRange(fromDay, toDay, time.Local)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer pool.Close()

	start := time.Now()
	var sum summary
	err = writeOutput(out, func(w io.Writer) error {
		var err error
		sum, err = export(ctx, postgres.NewJournal(pool), from, to, w)
		return errors.Wrap(err, "export")
	})
	if err != nil {
		return err
	}

	slog.Info("report written",
		slog.String("out", out),
		slog.Time("from", from),
		slog.Time("to", to),
		slog.Int("receipts", sum.Receipts),
		slog.Int("items", sum.Items),
		slog.String("revenue", sum.Revenue.StringFixed(2)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// writeOutput runs write against out, "-" meaning stdout.
func writeOutput(out string, write func(io.Writer) error) error {
	if out == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "create %s", out)
	}
	return closeAfter(f, write)
}

// closeAfter closes wc once write is done. A failed close loses data the
// gzip stream already handed over, so it fails the report.
func closeAfter(wc io.WriteCloser, write func(io.Writer) error) error {
	if err := write(wc); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return errors.Wrap(err, "close output")
	}
	return nil
}

// parseRange turns inclusive days into the half-open [from, to) interval.
func parseRange(fromDay, toDay string, loc *time.Location) (from, to time.Time, err error) {
	from, err = time.ParseInLocation(dateLayout, fromDay, loc)
	if err != nil {
		return from, to, errors.Wrap(err, "parse -from")
	}
	last, err := time.ParseInLocation(dateLayout, toDay, loc)
	if err != nil {
		return from, to, errors.Wrap(err, "parse -to")
	}
	if last.Before(from) {
		return from, to, errors.Errorf("-to %s is before -from %s", toDay, fromDay)
	}
	return from, last.AddDate(0, 0, 1), nil
}
