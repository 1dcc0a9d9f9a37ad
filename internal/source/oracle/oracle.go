// Package oracle implements an Oracle row source on the pure-Go
// sijms/go-ora driver.
//
// The connection comes from cfg.DSN ("oracle://user:pw@host:1521/service")
// or, when the DSN is empty, from the options server, port, service, user
// and password.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v2"
	go_ora "github.com/sijms/go-ora/v2"

	"mysqlbulk/internal/source"
)

func init() {
	source.Register("oracle", Open)
}

// Open resolves the DSN and runs cfg.Query.
func Open(ctx context.Context, cfg source.Config) (source.Source, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	return source.OpenSQL(ctx, "oracle", dsn, cfg.Query, convert)
}

// DSN returns cfg.DSN or builds one from the connection options.
func DSN(cfg source.Config) (string, error) {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN, nil
	}
	o := cfg.Options
	server := o.String("server", "")
	service := o.String("service", "")
	if server == "" || service == "" {
		return "", fmt.Errorf("oracle: dsn or options server and service are required")
	}
	return go_ora.BuildUrl(server, o.Int("port", 1521), service, o.String("user", ""), o.String("password", ""), nil), nil
}

// convert keeps RAW payloads as bytes and turns textual NUMBER values into
// exact decimals.
func convert(ct *sql.ColumnType, v any) any {
	typ := strings.ToUpper(ct.DatabaseTypeName())
	switch x := v.(type) {
	case []byte:
		if typ == "RAW" || typ == "LONG RAW" {
			return x
		}
	case string:
		if typ == "NUMBER" {
			if d, _, err := apd.NewFromString(x); err == nil {
				return d
			}
		}
		return x
	}
	return source.DefaultConvert(ct, v)
}
