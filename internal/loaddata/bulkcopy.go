// Package loaddata streams rows into a MySQL table with LOAD DATA LOCAL
// INFILE.
//
// A BulkCopy resolves how source fields map onto destination columns (using
// the live table schema), encodes every row into the server's tab-separated
// load-data text, cuts the stream into frames no larger than the server's
// packet limit, and finally checks the server's inserted-row count against
// the rows it sent.
//
// Typical usage:
//
//	bc := loaddata.New(conn, loaddata.Options{
//	    DestinationTable: "shop.orders",
//	    NotifyAfter:      10_000,
//	    OnRowsCopied:     func(ev *loaddata.RowsCopiedEvent) { log.Printf("copied=%d", ev.RowsCopied) },
//	})
//	res, err := bc.WriteToServer(ctx, src)
package loaddata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"mysqlbulk/internal/metrics"
)

const (
	// MaxFrameSize is the largest payload handed to the transport in one
	// frame; it leaves room for packet framing below 16 MiB.
	MaxFrameSize = 16_777_200

	// DefaultBufferSize is used when Options.BufferSize is zero.
	DefaultBufferSize = MaxFrameSize
)

// Options configures one BulkCopy.
type Options struct {
	// DestinationTable is the target table, optionally schema-qualified.
	DestinationTable string

	// ColumnMappings are optional explicit bindings. Source positions that
	// no mapping covers are mapped by position to the destination schema.
	ColumnMappings []ColumnMapping

	// NotifyAfter > 0 calls OnRowsCopied every NotifyAfter rows and once
	// more when the stream completes normally.
	NotifyAfter  int
	OnRowsCopied func(*RowsCopiedEvent)

	// Timeout bounds the whole WriteToServer call; zero means no limit.
	Timeout time.Duration

	ConflictOption ConflictOption

	// BufferSize is the frame bound in bytes; zero means DefaultBufferSize.
	BufferSize int

	// Job labels metrics.
	Job string
}

// Result summarizes a finished load.
type Result struct {
	RowsCopied   int64
	RowsInserted int64
	Frames       int64
	Bytes        int64
	Aborted      bool
	// StreamHash is the xxh3 digest of every byte sent.
	StreamHash uint64
	Elapsed    time.Duration
}

// BulkCopy loads rows into one destination table. A BulkCopy must not run
// concurrent loads, and no other statement may use its Conn while a load
// runs.
type BulkCopy struct {
	conn       Conn
	opts       Options
	rowsCopied atomic.Int64
}

// New returns a BulkCopy bound to conn.
func New(conn Conn, opts Options) *BulkCopy {
	return &BulkCopy{conn: conn, opts: opts}
}

// RowsCopied returns the rows appended to the stream by the current or most
// recent load.
func (b *BulkCopy) RowsCopied() int64 { return b.rowsCopied.Load() }

// WriteToServer streams every row of src into the destination table.
func (b *BulkCopy) WriteToServer(ctx context.Context, src RowSource) (res Result, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStep(b.opts.Job, "bulkcopy", err, time.Since(start))
	}()

	table := strings.TrimSpace(b.opts.DestinationTable)
	if table == "" {
		return res, configError("validate", ErrNoDestination)
	}
	if src == nil {
		return res, configError("validate", errors.New("row source is nil"))
	}
	bufSize := b.opts.BufferSize
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if bufSize < 0 || bufSize > MaxFrameSize {
		return res, configError("validate", fmt.Errorf("buffer size %d not in (0, %d]", bufSize, MaxFrameSize))
	}
	b.rowsCopied.Store(0)

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	if !b.conn.IsOpen() {
		if err := b.conn.Open(ctx); err != nil {
			return res, transportError("open", err)
		}
		defer func() {
			if cerr := b.conn.Close(); cerr != nil {
				log.Printf("bulkcopy: close connection: %v", cerr)
			}
		}()
	}

	fieldCount := src.FieldCount()
	schemaStart := time.Now()
	columns, err := b.conn.ReadSchema(ctx, table)
	metrics.RecordStep(b.opts.Job, "read_schema", err, time.Since(schemaStart))
	if err != nil {
		return res, transportError("read schema", err)
	}
	mappings, err := resolveMappings(columns, fieldCount, b.opts.ColumnMappings)
	if err != nil {
		return res, configError("resolve mappings", err)
	}
	stmt := buildStatement(table, fieldCount, mappings, b.opts.ConflictOption)
	log.Printf("bulkcopy: start table=%s fields=%d columns=[%s] set=%d",
		stmt.Table, fieldCount, strings.Join(stmt.Columns, ","), len(stmt.Expressions))

	buf := getFrameBuffer(bufSize)
	defer buf.Free()

	w := newStreamWriter(valueEncoder{settings: b.conn.Settings()}, buf.B, b.opts.NotifyAfter, b.opts.OnRowsCopied, &b.rowsCopied)
	inserted, err := b.conn.LoadData(ctx, stmt, func(ctx context.Context, t Transport) error {
		return w.run(ctx, src, t)
	})

	res = Result{
		RowsCopied:   b.rowsCopied.Load(),
		RowsInserted: inserted,
		Frames:       w.frames,
		Bytes:        w.bytes,
		Aborted:      w.aborted,
		StreamHash:   w.hash.Sum64(),
		Elapsed:      time.Since(start),
	}
	metrics.RecordRows(b.opts.Job, "copied", res.RowsCopied)
	metrics.RecordFrames(b.opts.Job, res.Frames, res.Bytes)

	if err != nil {
		if KindOf(err) == 0 {
			err = transportError("load data", err)
		}
		log.Printf("bulkcopy: failed table=%s copied=%d frames=%d err=%v", stmt.Table, res.RowsCopied, res.Frames, err)
		return res, err
	}
	metrics.RecordRows(b.opts.Job, "inserted", inserted)

	if !res.Aborted && b.opts.ConflictOption == ConflictNone && inserted != res.RowsCopied {
		return res, &Error{
			Kind: KindIntegrity,
			Op:   "verify",
			Err:  &RowCountMismatchError{Copied: res.RowsCopied, Inserted: inserted},
		}
	}

	rps := float64(0)
	if s := res.Elapsed.Seconds(); s > 0 {
		rps = float64(res.RowsCopied) / s
	}
	log.Printf("bulkcopy: done table=%s copied=%d inserted=%d frames=%d bytes=%d aborted=%t rps=%.0f elapsed=%s hash=%016x",
		stmt.Table, res.RowsCopied, res.RowsInserted, res.Frames, res.Bytes, res.Aborted, rps,
		res.Elapsed.Truncate(time.Millisecond), res.StreamHash)
	return res, nil
}
