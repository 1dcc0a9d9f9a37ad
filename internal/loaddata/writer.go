package loaddata

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// RowsCopiedEvent is passed to the OnRowsCopied callback. The same event is
// reused for every notification of one load; setting Abort stops the load
// after the current row.
type RowsCopiedEvent struct {
	RowsCopied int64
	Abort      bool
}

// rowState is the per-row state of the stream writer.
type rowState int

const (
	stateStart rowState = iota
	stateEncoding
	stateOverflow
	stateCommitted
)

// streamWriter encodes rows into a fixed buffer and hands full buffers to
// the transport. Frames always end on a row boundary.
type streamWriter struct {
	enc          valueEncoder
	buf          []byte
	off          int
	notifyAfter  int
	onRowsCopied func(*RowsCopiedEvent)
	event        RowsCopiedEvent

	rows    *atomic.Int64
	aborted bool
	frames  int64
	bytes   int64
	hash    *xxh3.Hasher
}

func newStreamWriter(enc valueEncoder, buf []byte, notifyAfter int, cb func(*RowsCopiedEvent), rows *atomic.Int64) *streamWriter {
	return &streamWriter{
		enc:          enc,
		buf:          buf,
		notifyAfter:  notifyAfter,
		onRowsCopied: cb,
		rows:         rows,
		hash:         xxh3.New(),
	}
}

// run drains src into t. It returns after the last frame was sent, on
// abort, or on the first error.
func (w *streamWriter) run(ctx context.Context, src RowSource, t Transport) error {
	fieldCount := src.FieldCount()
	var (
		values  []any
		retried bool
		state   = stateStart
	)
	for {
		switch state {
		case stateStart:
			if err := ctx.Err(); err != nil {
				return err
			}
			if !src.Next(ctx) {
				if err := src.Err(); err != nil {
					return fmt.Errorf("row source: %w", err)
				}
				return w.finish(ctx, t)
			}
			values = src.Values()
			if len(values) != fieldCount {
				return encodingError("read row", fmt.Errorf("row has %d values, source declares %d fields", len(values), fieldCount))
			}
			retried = false
			state = stateEncoding

		case stateEncoding:
			n, err := w.encodeRow(w.buf[w.off:], values)
			switch {
			case err == nil:
				w.off += n
				state = stateCommitted
			case errors.Is(err, errInsufficientSpace):
				if w.off == 0 || retried {
					return encodingError("encode row", fmt.Errorf("%w: row %d exceeds %d bytes",
						ErrRowTooLarge, w.rows.Load()+1, len(w.buf)))
				}
				state = stateOverflow
			default:
				return encodingError("encode row", fmt.Errorf("row %d: %w", w.rows.Load()+1, err))
			}

		case stateOverflow:
			// Send everything before this row and encode it again from an
			// empty buffer.
			if err := w.flush(ctx, t); err != nil {
				return err
			}
			retried = true
			state = stateEncoding

		case stateCommitted:
			copied := w.rows.Add(1)
			if w.notifyAfter > 0 && copied%int64(w.notifyAfter) == 0 && w.notify(copied) {
				// Rows not yet flushed are dropped, not sent.
				w.aborted = true
				w.off = 0
				return w.finish(ctx, t)
			}
			state = stateStart
		}
	}
}

// encodeRow writes one tab-separated, newline-terminated row into dst.
func (w *streamWriter) encodeRow(dst []byte, values []any) (int, error) {
	off := 0
	for i, v := range values {
		if i > 0 {
			if off >= len(dst) {
				return 0, errInsufficientSpace
			}
			dst[off] = FieldTerminator
			off++
		}
		n, err := w.enc.encode(dst[off:], v)
		if err != nil {
			if errors.Is(err, errInsufficientSpace) {
				return 0, err
			}
			return 0, fmt.Errorf("field %d: %w", i, err)
		}
		off += n
	}
	if off >= len(dst) {
		return 0, errInsufficientSpace
	}
	dst[off] = LineTerminator
	return off + 1, nil
}

// notify invokes the callback and reports whether it asked to abort.
func (w *streamWriter) notify(copied int64) bool {
	if w.onRowsCopied == nil {
		return false
	}
	w.event.RowsCopied = copied
	w.onRowsCopied(&w.event)
	return w.event.Abort
}

// finish sends pending rows and, on a normal end, issues the final
// notification. An aborted writer has nothing pending.
func (w *streamWriter) finish(ctx context.Context, t Transport) error {
	if w.off > 0 {
		if err := w.flush(ctx, t); err != nil {
			return err
		}
	}
	if !w.aborted && w.notifyAfter > 0 {
		w.notify(w.rows.Load())
	}
	return nil
}

func (w *streamWriter) flush(ctx context.Context, t Transport) error {
	frame := w.buf[:w.off]
	if err := t.SendFrame(ctx, frame); err != nil {
		return transportError("send frame", err)
	}
	_, _ = w.hash.Write(frame)
	w.frames++
	w.bytes += int64(len(frame))
	w.off = 0
	return nil
}
