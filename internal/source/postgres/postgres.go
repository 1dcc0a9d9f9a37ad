// Package postgres implements a Postgres row source using pgx v5 directly,
// without database/sql.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"mysqlbulk/internal/source"
)

func init() {
	source.Register("postgres", Open)
}

// Rows adapts a pgx result set.
type Rows struct {
	conn  *pgx.Conn
	rows  pgx.Rows
	names []string
	oids  []uint32
	vals  []any
	err   error
}

var _ source.Source = (*Rows)(nil)

// Open connects with cfg.DSN and runs cfg.Query.
func Open(ctx context.Context, cfg source.Config) (source.Source, error) {
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, fmt.Errorf("postgres: query must not be empty")
	}
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	rows, err := conn.Query(ctx, cfg.Query)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	fds := rows.FieldDescriptions()
	r := &Rows{
		conn:  conn,
		rows:  rows,
		names: make([]string, len(fds)),
		oids:  make([]uint32, len(fds)),
	}
	for i, fd := range fds {
		r.names[i] = fd.Name
		r.oids[i] = fd.DataTypeOID
	}
	return r, nil
}

func (r *Rows) FieldCount() int   { return len(r.names) }
func (r *Rows) Columns() []string { return r.names }

func (r *Rows) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	if !r.rows.Next() {
		return false
	}
	vals, err := r.rows.Values()
	if err != nil {
		r.err = fmt.Errorf("postgres: values: %w", err)
		return false
	}
	for i, v := range vals {
		vals[i] = convert(r.oids[i], v)
	}
	r.vals = vals
	return true
}

func (r *Rows) Values() []any { return r.vals }

func (r *Rows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *Rows) Close() error {
	r.rows.Close()
	return r.conn.Close(context.Background())
}

// convert maps pgx decoded values onto encoder-friendly types. pgx returns
// uuid columns as [16]byte and leaves numerics as pgtype.Numeric.
func convert(oid uint32, v any) any {
	switch x := v.(type) {
	case [16]byte:
		if oid == pgtype.UUIDOID {
			return uuid.UUID(x)
		}
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		dv, err := x.Value()
		if err != nil {
			return v
		}
		return dv
	}
	return v
}
