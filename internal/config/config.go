// Package config defines the JSON job model for mysqlbulk: where rows come
// from, which MySQL table they go to and how the load behaves.
//
// Example (trimmed):
//
//	{
//	  "job": "vehicles",
//	  "source": { "kind": "csv", "path": "data/vehicles.csv", "options": { "encoding": "windows-1250" } },
//	  "destination": {
//	    "dsn": "${MYSQL_DSN}",
//	    "table": "inventory.vehicles",
//	    "conflict": "replace",
//	    "column_mappings": [
//	      { "source_ordinal": 0, "destination": "vin" },
//	      { "source_ordinal": 1, "destination": "@reg", "expression": "registered = STR_TO_DATE(@reg, '%d.%m.%Y')" }
//	    ]
//	  },
//	  "runtime": { "notify_after": 10000, "timeout_seconds": 600 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"mysqlbulk/internal/loaddata"
)

// Job is the top-level object decoded from a job file.
type Job struct {
	// Job names the run for logs and metrics.
	Job string `json:"job"`

	Source      Source      `json:"source"`
	Destination Destination `json:"destination"`
	Runtime     Runtime     `json:"runtime"`
}

// Source selects the row source.
type Source struct {
	// Kind is a registered source kind: csv, sqlite, mssql, mysql,
	// postgres, oracle.
	Kind string `json:"kind"`

	// DSN and Query are used by database kinds.
	DSN   string `json:"dsn"`
	Query string `json:"query"`

	// Path is used by file kinds.
	Path string `json:"path"`

	// Options is interpreted by the source implementation.
	// For CSV: has_header, comma, trim_space, empty_as_null, encoding,
	// expected_fields.
	Options Options `json:"options"`
}

// Destination configures the MySQL side.
type Destination struct {
	// DSN is a go-sql-driver DSN. ${VAR} references are expanded from the
	// environment before use.
	DSN string `json:"dsn"`

	// Table may be schema-qualified ("db.table").
	Table string `json:"table"`

	// ColumnMappings is optional; when empty source positions map 1:1 onto
	// the table's columns.
	ColumnMappings []loaddata.ColumnMapping `json:"column_mappings"`

	// Conflict is one of "", "none", "replace", "ignore".
	Conflict string `json:"conflict"`

	// GUIDFormat is one of char36 (default), char32, binary16,
	// timeswapbinary16, littleendianbinary16.
	GUIDFormat string `json:"guid_format"`

	// DateTimeKind is one of unspecified (default), utc, local.
	DateTimeKind string `json:"datetime_kind"`

	// Transaction wraps the load in START TRANSACTION / COMMIT.
	Transaction bool `json:"transaction"`
}

// Runtime controls notification, framing and time limits.
type Runtime struct {
	NotifyAfter    int `json:"notify_after"`
	BufferSize     int `json:"buffer_size"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Load reads and decodes a job file.
func Load(path string) (Job, error) {
	var j Job
	b, err := os.ReadFile(path)
	if err != nil {
		return j, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &j); err != nil {
		return j, fmt.Errorf("decode config %s: %w", path, err)
	}
	return j, nil
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs only minimal type coercion and returns the provided default
// when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. encoding/json decodes numbers as
// float64, so both float64 and int are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// UnmarshalJSON makes a missing or null "options" object decode to an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
