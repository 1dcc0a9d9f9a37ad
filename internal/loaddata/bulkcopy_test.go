package loaddata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zeebo/xxh3"
)

func TestWriteToServer_Basic(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{columns: cols("id:INT", "name:VARCHAR")}
	bc := New(conn, Options{DestinationTable: "shop.items"})

	res, err := bc.WriteToServer(context.Background(), newSliceSource(2, []any{1, "a"}, []any{2, "b\tc"}))
	if err != nil {
		t.Fatalf("WriteToServer() = %v", err)
	}
	stream := conn.transport.joined()
	if stream != "1\ta\n2\tb\\\tc\n" {
		t.Fatalf("stream = %q", stream)
	}
	if res.RowsCopied != 2 || res.RowsInserted != 2 || bc.RowsCopied() != 2 {
		t.Fatalf("Result = %+v RowsCopied() = %d; want 2/2/2", res, bc.RowsCopied())
	}
	if res.Frames != 1 || res.Bytes != int64(len(stream)) || res.Aborted {
		t.Fatalf("Result = %+v", res)
	}
	if res.StreamHash != xxh3.HashString(stream) {
		t.Fatalf("StreamHash = %x; want %x", res.StreamHash, xxh3.HashString(stream))
	}
	if conn.stmt.Table != "`shop`.`items`" {
		t.Fatalf("stmt.Table = %q", conn.stmt.Table)
	}
	if conn.opens != 1 || conn.closes != 1 || conn.open {
		t.Fatalf("opens=%d closes=%d open=%t; want the closed connection opened and closed once", conn.opens, conn.closes, conn.open)
	}
}

func TestWriteToServer_LeavesOpenConnectionOpen(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{open: true, columns: cols("id:INT")}
	if _, err := New(conn, Options{DestinationTable: "t"}).WriteToServer(context.Background(), newSliceSource(1, []any{1})); err != nil {
		t.Fatalf("WriteToServer() = %v", err)
	}
	if conn.opens != 0 || conn.closes != 0 || !conn.open {
		t.Fatalf("opens=%d closes=%d open=%t; want caller's connection untouched", conn.opens, conn.closes, conn.open)
	}
}

func TestWriteToServer_ConfigErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		conn *fakeConn
		opts Options
		src  RowSource
		want error
	}{
		{"no destination", &fakeConn{}, Options{DestinationTable: "  "}, newSliceSource(1), ErrNoDestination},
		{"year column", &fakeConn{columns: cols("y:YEAR")}, Options{DestinationTable: "t"}, newSliceSource(1), ErrUnsupportedColumnType},
		{"bad ordinal", &fakeConn{columns: cols("a:INT")}, Options{DestinationTable: "t", ColumnMappings: []ColumnMapping{{SourceOrdinal: 5, Destination: "a"}}}, newSliceSource(1), ErrOrdinalOutOfRange},
		{"buffer too large", &fakeConn{}, Options{DestinationTable: "t", BufferSize: MaxFrameSize + 1}, newSliceSource(1), nil},
		{"nil source", &fakeConn{}, Options{DestinationTable: "t"}, nil, nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.conn, tc.opts).WriteToServer(context.Background(), tc.src)
			if KindOf(err) != KindConfig {
				t.Fatalf("WriteToServer() error = %v; want config error", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("WriteToServer() error = %v; want %v", err, tc.want)
			}
			if len(tc.conn.transport.frames) != 0 {
				t.Fatalf("frames sent on config error")
			}
		})
	}
}

func TestWriteToServer_SchemaError(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{schemaErr: errors.New("no such table")}
	_, err := New(conn, Options{DestinationTable: "t"}).WriteToServer(context.Background(), newSliceSource(1))
	if KindOf(err) != KindTransport || !strings.Contains(err.Error(), "no such table") {
		t.Fatalf("WriteToServer() error = %v; want transport error", err)
	}
	if conn.open {
		t.Fatalf("connection left open after failure")
	}
}

func TestWriteToServer_IntegrityCheck(t *testing.T) {
	t.Parallel()

	one := int64(1)
	conn := &fakeConn{columns: cols("id:INT"), inserted: &one}
	res, err := New(conn, Options{DestinationTable: "t"}).WriteToServer(context.Background(), newSliceSource(1, []any{1}, []any{2}))
	if !errors.Is(err, ErrRowCountMismatch) || KindOf(err) != KindIntegrity {
		t.Fatalf("WriteToServer() error = %v; want integrity ErrRowCountMismatch", err)
	}
	var mm *RowCountMismatchError
	if !errors.As(err, &mm) || mm.Copied != 2 || mm.Inserted != 1 {
		t.Fatalf("mismatch = %+v; want copied=2 inserted=1", mm)
	}
	if res.RowsCopied != 2 {
		t.Fatalf("RowsCopied = %d; want 2", res.RowsCopied)
	}
}

func TestWriteToServer_IntegritySkipped(t *testing.T) {
	t.Parallel()

	t.Run("conflict option", func(t *testing.T) {
		t.Parallel()
		one := int64(1)
		conn := &fakeConn{columns: cols("id:INT"), inserted: &one}
		_, err := New(conn, Options{DestinationTable: "t", ConflictOption: ConflictIgnore}).
			WriteToServer(context.Background(), newSliceSource(1, []any{1}, []any{1}))
		if err != nil {
			t.Fatalf("WriteToServer() = %v; want nil under IGNORE", err)
		}
		if conn.stmt.Conflict != ConflictIgnore {
			t.Fatalf("stmt.Conflict = %v", conn.stmt.Conflict)
		}
	})
	t.Run("aborted", func(t *testing.T) {
		t.Parallel()
		conn := &fakeConn{columns: cols("id:INT", "name:TEXT")}
		res, err := New(conn, Options{
			DestinationTable: "t",
			NotifyAfter:      2,
			OnRowsCopied:     func(ev *RowsCopiedEvent) { ev.Abort = true },
		}).WriteToServer(context.Background(), newSliceSource(2, intRows(6)...))
		if err != nil {
			t.Fatalf("WriteToServer() = %v; want nil after abort", err)
		}
		if !res.Aborted || res.RowsCopied != 2 {
			t.Fatalf("Result = %+v; want aborted after 2 rows", res)
		}
		if got := conn.transport.joined(); got != "" {
			t.Fatalf("stream after abort = %q; want buffered rows dropped", got)
		}
	})
}

func TestWriteToServer_LoadErrorIsTransport(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{columns: cols("id:INT"), loadErr: errors.New("server gone away")}
	_, err := New(conn, Options{DestinationTable: "t"}).WriteToServer(context.Background(), newSliceSource(1, []any{1}))
	if KindOf(err) != KindTransport {
		t.Fatalf("WriteToServer() error = %v; want transport error", err)
	}
}

func TestWriteToServer_EncodingErrorKeepsKind(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{columns: cols("id:INT")}
	_, err := New(conn, Options{DestinationTable: "t"}).WriteToServer(context.Background(), newSliceSource(1, []any{map[int]int{}}))
	if KindOf(err) != KindEncoding || !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("WriteToServer() error = %v; want encoding ErrUnsupportedType", err)
	}
}

func TestWriteToServer_Timeout(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{columns: cols("id:INT")}
	src := &blockingSource{}
	_, err := New(conn, Options{DestinationTable: "t", Timeout: 20 * time.Millisecond}).WriteToServer(context.Background(), src)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WriteToServer() error = %v; want DeadlineExceeded", err)
	}
}

// blockingSource never yields a row until ctx is done.
type blockingSource struct{ err error }

func (s *blockingSource) FieldCount() int { return 1 }
func (s *blockingSource) Values() []any   { return nil }
func (s *blockingSource) Err() error      { return s.err }

func (s *blockingSource) Next(ctx context.Context) bool {
	<-ctx.Done()
	s.err = ctx.Err()
	return false
}

func TestWriteToServer_FramesRespectBufferSize(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{columns: cols("id:INT", "name:VARCHAR")}
	res, err := New(conn, Options{DestinationTable: "t", BufferSize: 12}).
		WriteToServer(context.Background(), newSliceSource(2, intRows(5)...))
	if err != nil {
		t.Fatalf("WriteToServer() = %v", err)
	}
	if res.Frames != 3 {
		t.Fatalf("Frames = %d; want 3", res.Frames)
	}
	for _, f := range conn.transport.frames {
		if len(f) > 12 {
			t.Fatalf("frame %q exceeds 12 bytes", f)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := configError("validate", ErrNoDestination)
	if got, want := err.Error(), "bulkcopy: config: validate: destination table is not set"; got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}
	if KindOf(errors.New("x")) != 0 {
		t.Fatalf("KindOf(foreign) != 0")
	}
	if KindIntegrity.String() != "integrity" || ErrorKind(99).String() != "unknown" {
		t.Fatalf("ErrorKind.String mismatch")
	}
}
