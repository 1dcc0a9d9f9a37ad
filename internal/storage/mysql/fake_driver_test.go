package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

// --- Test driver plumbing for exercising Session without a real server ---

// fakeServer is the shared state behind every connection the fake driver
// opens. Tests create one per *sql.DB via openFakeDB.
type fakeServer struct {
	mu sync.Mutex

	execs   []string
	loaded  []byte
	columns []fakeColumn

	execErr      map[string]error // keyed by statement prefix
	rowsAffected int64            // -1 counts loaded lines
}

type fakeColumn struct {
	name, typ string
}

func (s *fakeServer) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.execs...)
}

type fakeDriver struct{}

type fakeConn struct{ srv *fakeServer }

var (
	fakeDriverOnce sync.Once
	fakeDriverName = "mysqlbulk_fake"

	serversMu sync.Mutex
	servers   = map[string]*fakeServer{}
)

func (fakeDriver) Open(name string) (driver.Conn, error) {
	serversMu.Lock()
	defer serversMu.Unlock()
	srv, ok := servers[name]
	if !ok {
		return nil, fmt.Errorf("fake: unknown server %q", name)
	}
	return &fakeConn{srv: srv}, nil
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("unexpected Prepare call")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("begin (legacy) should not be called")
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	s := c.srv
	s.mu.Lock()
	s.execs = append(s.execs, query)
	var failure error
	for prefix, err := range s.execErr {
		if strings.HasPrefix(query, prefix) {
			failure = err
		}
	}
	s.mu.Unlock()

	if !strings.HasPrefix(query, "LOAD DATA") {
		if failure != nil {
			return nil, failure
		}
		return driver.RowsAffected(0), nil
	}

	// Pull the stream the way go-sql-driver does for Reader:: files.
	name := between(query, "'Reader::", "'")
	h := lookupReader(name)
	if h == nil {
		return nil, fmt.Errorf("fake: no reader handler %q", name)
	}
	r := h()
	if failure != nil {
		// Refuse the statement without consuming the stream.
		if c, ok := r.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, failure
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = append(s.loaded, data...)
	if s.rowsAffected >= 0 {
		return driver.RowsAffected(s.rowsAffected), nil
	}
	return driver.RowsAffected(strings.Count(string(data), "\n")), nil
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if !strings.HasPrefix(query, "SELECT * FROM ") {
		return nil, fmt.Errorf("fake: unexpected query %q", query)
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err := c.srv.execErr["SELECT"]; err != nil {
		return nil, err
	}
	return &fakeRows{cols: c.srv.columns}, nil
}

type fakeRows struct{ cols []fakeColumn }

func (r *fakeRows) Columns() []string {
	out := make([]string, len(r.cols))
	for i, c := range r.cols {
		out[i] = c.name
	}
	return out
}

func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Next(dest []driver.Value) error { return io.EOF }

func (r *fakeRows) ColumnTypeDatabaseTypeName(i int) string { return r.cols[i].typ }

func between(s, open, close string) string {
	i := strings.Index(s, open)
	if i < 0 {
		return ""
	}
	s = s[i+len(open):]
	if j := strings.Index(s, close); j >= 0 {
		return s[:j]
	}
	return s
}

// Reader handler registry replacing the driver's during tests.
var (
	readersMu sync.Mutex
	readers   = map[string]func() io.Reader{}
)

func lookupReader(name string) func() io.Reader {
	readersMu.Lock()
	defer readersMu.Unlock()
	return readers[name]
}

func init() {
	registerReaderHandler = func(name string, h func() io.Reader) {
		readersMu.Lock()
		defer readersMu.Unlock()
		readers[name] = h
	}
	deregisterReaderHandler = func(name string) {
		readersMu.Lock()
		defer readersMu.Unlock()
		delete(readers, name)
	}
}

// openFakeSession registers the fake driver and returns a Session over a
// fresh fakeServer.
func openFakeSession(t *testing.T, cfg Config) (*Session, *fakeServer) {
	t.Helper()

	fakeDriverOnce.Do(func() {
		sql.Register(fakeDriverName, fakeDriver{})
	})
	srv := &fakeServer{rowsAffected: -1, execErr: map[string]error{}}
	serversMu.Lock()
	servers[t.Name()] = srv
	serversMu.Unlock()

	db, err := sql.Open(fakeDriverName, t.Name())
	if err != nil {
		t.Fatalf("sql.Open(%q) error = %v", fakeDriverName, err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		serversMu.Lock()
		delete(servers, t.Name())
		serversMu.Unlock()
	})
	return newSession(db, cfg), srv
}
