package scanner

import (
	"bufio"
	"context"
	"io"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// maxLineSize bounds a single decoded line.
const maxLineSize = 4 << 10

// ErrLineTooLong is reported for device lines longer than maxLineSize.
var ErrLineTooLong = errors.New("scan line too long")

// Reader feeds a line-oriented scanner device (keyboard wedge, serial tty,
// named pipe) into a Sink, one code per line.
type Reader struct {
	src  io.Reader
	sink Sink
	lg   *zap.Logger
}

// NewReader creates a Reader over src.
func NewReader(src io.Reader, sink Sink, lg *zap.Logger) *Reader {
	return &Reader{src: src, sink: sink, lg: lg}
}

// Run reads until EOF, a read failure or context cancellation. Per-line
// failures are reported to the sink and never stop the reader. A failing
// device is reported once and ends Run without error so the rest of the
// terminal keeps working.
func (r *Reader) Run(ctx context.Context) error {
	br := bufio.NewReaderSize(r.src, maxLineSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := br.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			r.sink.OnError(ErrLineTooLong)
			if err := discardLine(br); err != nil {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			if len(line) > 0 {
				r.dispatch(ctx, string(line))
			}
			r.lg.Info("Scanner device closed")
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			r.sink.OnError(errors.Wrap(err, "read scanner device"))
			return nil
		}

		r.dispatch(ctx, string(line))
	}
}

func (r *Reader) dispatch(ctx context.Context, line string) {
	if err := r.sink.OnDecode(ctx, line); err != nil {
		// Already surfaced as a notice by the cart or the adapter.
		r.lg.Debug("Scan not applied", zap.Error(err))
	}
}

// discardLine skips the remainder of an oversized line.
func discardLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}
