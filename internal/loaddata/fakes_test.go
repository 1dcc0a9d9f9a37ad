package loaddata

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// sliceSource is a RowSource over fixed rows.
type sliceSource struct {
	fields int
	rows   [][]any
	pos    int
	err    error // returned after the rows are exhausted
}

func newSliceSource(fields int, rows ...[]any) *sliceSource {
	return &sliceSource{fields: fields, rows: rows, pos: -1}
}

func (s *sliceSource) FieldCount() int { return s.fields }
func (s *sliceSource) Values() []any   { return s.rows[s.pos] }

func (s *sliceSource) Next(ctx context.Context) bool {
	if ctx.Err() != nil || s.pos+1 >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Err() error {
	if s.pos+1 >= len(s.rows) {
		return s.err
	}
	return nil
}

// recordingTransport keeps a copy of every frame.
type recordingTransport struct {
	mu     sync.Mutex
	frames []string
	failAt int // 1-based frame index to fail on; 0 never fails
}

func (t *recordingTransport) SendFrame(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAt > 0 && len(t.frames)+1 == t.failAt {
		return errors.New("connection reset")
	}
	t.frames = append(t.frames, string(frame))
	return nil
}

func (t *recordingTransport) joined() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := ""
	for _, f := range t.frames {
		s += f
	}
	return s
}

// fakeConn is an in-memory Conn. LoadData drives the stream into a
// recordingTransport and reports one inserted row per line unless
// inserted is set.
type fakeConn struct {
	open     bool
	opens    int
	closes   int
	settings Settings
	columns  []Column

	schemaErr error
	loadErr   error
	inserted  *int64

	stmt      *Statement
	transport recordingTransport
}

func (c *fakeConn) IsOpen() bool { return c.open }

func (c *fakeConn) Open(ctx context.Context) error {
	c.opens++
	c.open = true
	return nil
}

func (c *fakeConn) Close() error {
	c.closes++
	c.open = false
	return nil
}

func (c *fakeConn) Settings() Settings { return c.settings }

func (c *fakeConn) ReadSchema(ctx context.Context, table string) ([]Column, error) {
	if c.schemaErr != nil {
		return nil, c.schemaErr
	}
	return c.columns, nil
}

func (c *fakeConn) LoadData(ctx context.Context, stmt *Statement, stream StreamFunc) (int64, error) {
	c.stmt = stmt
	if err := stream(ctx, &c.transport); err != nil {
		return 0, err
	}
	if c.loadErr != nil {
		return 0, c.loadErr
	}
	if c.inserted != nil {
		return *c.inserted, nil
	}
	var n int64
	for _, ch := range c.transport.joined() {
		if ch == '\n' {
			n++
		}
	}
	return n, nil
}

func intRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i + 1, fmt.Sprintf("r%d", i+1)}
	}
	return rows
}
