// Package mysql implements a MySQL row source, which makes table-to-table
// copies between servers possible.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v2"
	"github.com/go-sql-driver/mysql"

	"mysqlbulk/internal/source"
)

func init() {
	source.Register("mysql", Open)
}

// Open parses the DSN and runs cfg.Query. parseTime is forced on so that
// temporal columns arrive as time.Time.
func Open(ctx context.Context, cfg source.Config) (source.Source, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	return source.OpenSQL(ctx, "mysql", mc.FormatDSN(), cfg.Query, convert)
}

func convert(ct *sql.ColumnType, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(ct.DatabaseTypeName()) {
	case "DECIMAL":
		if d, _, err := apd.NewFromString(string(b)); err == nil {
			return d
		}
	case "BIT":
		return bitValue(b)
	}
	return source.DefaultConvert(ct, v)
}

// bitValue decodes a big-endian BIT(n) payload.
func bitValue(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}
