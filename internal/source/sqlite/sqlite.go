// Package sqlite implements a SQLite row source using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"mysqlbulk/internal/source"
)

func init() {
	source.Register("sqlite", Open)
}

// Open runs cfg.Query against the database at cfg.DSN, e.g.
//
//	"file:data.db?mode=ro"
//	"data.db"
func Open(ctx context.Context, cfg source.Config) (source.Source, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	return source.OpenSQL(ctx, "sqlite", cfg.DSN, cfg.Query, convert)
}

// convert keeps BLOB columns as bytes and hands everything else through
// DefaultConvert. SQLite reports declared types, which may be empty for
// expression columns.
func convert(ct *sql.ColumnType, v any) any {
	if b, ok := v.([]byte); ok && ct.DatabaseTypeName() == "" {
		return string(b)
	}
	return source.DefaultConvert(ct, v)
}
