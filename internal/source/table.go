package source

import (
	"context"
	"fmt"
)

// Table is an in-memory snapshot of rows. It is the simplest Source and the
// one tests use.
type Table struct {
	columns []string
	rows    [][]any
	pos     int
	err     error
}

var _ Source = (*Table)(nil)

// NewTable returns a Table over rows. Every row must have len(columns)
// values; a short or long row surfaces as an error from Err.
func NewTable(columns []string, rows [][]any) *Table {
	return &Table{columns: columns, rows: rows, pos: -1}
}

func (t *Table) FieldCount() int   { return len(t.columns) }
func (t *Table) Columns() []string { return t.columns }
func (t *Table) Err() error        { return t.err }
func (t *Table) Close() error      { return nil }

func (t *Table) Next(ctx context.Context) bool {
	if t.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		t.err = err
		return false
	}
	if t.pos+1 >= len(t.rows) {
		return false
	}
	t.pos++
	if n := len(t.rows[t.pos]); n != len(t.columns) {
		t.err = fmt.Errorf("table: row %d has %d values, want %d", t.pos, n, len(t.columns))
		return false
	}
	return true
}

func (t *Table) Values() []any { return t.rows[t.pos] }

// Len returns the number of rows in the snapshot.
func (t *Table) Len() int { return len(t.rows) }
