package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ConvertFunc adjusts one scanned value of column ct before it is handed to
// the encoder.
type ConvertFunc func(ct *sql.ColumnType, v any) any

// SQLRows adapts a database/sql cursor. It owns rows and, when closeFn is
// set, whatever opened them.
type SQLRows struct {
	rows    *sql.Rows
	types   []*sql.ColumnType
	names   []string
	vals    []any
	ptrs    []any
	convert ConvertFunc
	closeFn func() error
	err     error
}

var _ Source = (*SQLRows)(nil)

// NewSQLRows wraps rows. convert may be nil, in which case
// DefaultConvert is used.
func NewSQLRows(rows *sql.Rows, convert ConvertFunc, closeFn func() error) (*SQLRows, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("column types: %w", err)
	}
	if convert == nil {
		convert = DefaultConvert
	}
	s := &SQLRows{
		rows:    rows,
		types:   types,
		names:   make([]string, len(types)),
		vals:    make([]any, len(types)),
		ptrs:    make([]any, len(types)),
		convert: convert,
		closeFn: closeFn,
	}
	for i, ct := range types {
		s.names[i] = ct.Name()
	}
	return s, nil
}

// OpenSQL opens a pool for driverName, runs query and wraps the cursor. The
// returned Source closes both on Close.
func OpenSQL(ctx context.Context, driverName, dsn, query string, convert ConvertFunc) (*SQLRows, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%s: query must not be empty", driverName)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", driverName, err)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: query: %w", driverName, err)
	}
	s, err := NewSQLRows(rows, convert, db.Close)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLRows) FieldCount() int   { return len(s.types) }
func (s *SQLRows) Columns() []string { return s.names }

func (s *SQLRows) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if !s.rows.Next() {
		return false
	}
	for i := range s.vals {
		s.vals[i] = nil
		s.ptrs[i] = &s.vals[i]
	}
	if err := s.rows.Scan(s.ptrs...); err != nil {
		s.err = fmt.Errorf("scan: %w", err)
		return false
	}
	for i, v := range s.vals {
		s.vals[i] = s.convert(s.types[i], v)
	}
	return true
}

func (s *SQLRows) Values() []any { return s.vals }

func (s *SQLRows) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

func (s *SQLRows) Close() error {
	err := s.rows.Close()
	if s.closeFn != nil {
		if cerr := s.closeFn(); err == nil {
			err = cerr
		}
	}
	return err
}

// DefaultConvert turns []byte into string unless the column holds binary
// data, so text columns are not hex encoded.
func DefaultConvert(ct *sql.ColumnType, v any) any {
	b, ok := v.([]byte)
	if !ok || IsBinaryType(ct.DatabaseTypeName()) {
		return v
	}
	return string(b)
}

// IsBinaryType reports whether a driver type name denotes raw bytes.
func IsBinaryType(name string) bool {
	switch strings.ToUpper(name) {
	case "BINARY", "VARBINARY", "BYTEA", "IMAGE", "GEOMETRY", "BIT":
		return true
	}
	return strings.HasSuffix(strings.ToUpper(name), "BLOB")
}
