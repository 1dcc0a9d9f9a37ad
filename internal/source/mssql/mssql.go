// Package mssql implements a SQL Server row source on go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"mysqlbulk/internal/source"
)

func init() {
	source.Register("mssql", Open)
}

// Open validates the DSN, then runs cfg.Query.
func Open(ctx context.Context, cfg source.Config) (source.Source, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	return source.OpenSQL(ctx, "sqlserver", cfg.DSN, cfg.Query, convert)
}

// convert maps SQL Server wire representations onto types the encoder
// understands natively.
func convert(ct *sql.ColumnType, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(ct.DatabaseTypeName()) {
	case "UNIQUEIDENTIFIER":
		return uniqueIdentifier(b)
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		if d, _, err := apd.NewFromString(string(b)); err == nil {
			return d
		}
		return string(b)
	}
	return source.DefaultConvert(ct, v)
}

// uniqueIdentifier converts the mixed-endian wire form into RFC byte order.
func uniqueIdentifier(b []byte) any {
	var u mssql.UniqueIdentifier
	if err := u.Scan(b); err != nil {
		return b
	}
	return uuid.UUID(u)
}
