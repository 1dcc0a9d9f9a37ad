package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"
)

func TestJob_Decode(t *testing.T) {
	t.Parallel()

	const js = `{
	  "job": "vehicles",
	  "source": {
	    "kind": "csv",
	    "path": "testdata/vehicles.csv",
	    "options": { "has_header": true, "comma": ";", "encoding": "windows-1250" }
	  },
	  "destination": {
	    "dsn": "loader:secret@tcp(db:3306)/inventory",
	    "table": "inventory.vehicles",
	    "conflict": "replace",
	    "guid_format": "binary16",
	    "datetime_kind": "utc",
	    "transaction": true,
	    "column_mappings": [
	      { "source_ordinal": 0, "destination": "vin" },
	      { "source_ordinal": 2, "destination": "@reg", "expression": "registered = STR_TO_DATE(@reg, '%d.%m.%Y')" }
	    ]
	  },
	  "runtime": { "notify_after": 1000, "buffer_size": 65536, "timeout_seconds": 30 }
	}`

	var j Job
	if err := json.Unmarshal([]byte(js), &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if j.Job != "vehicles" {
		t.Fatalf("Job = %q, want vehicles", j.Job)
	}
	if j.Source.Kind != "csv" || j.Source.Path != "testdata/vehicles.csv" {
		t.Fatalf("Source = %+v", j.Source)
	}
	if got := j.Source.Options.Rune("comma", ','); got != ';' {
		t.Fatalf("comma = %q, want ';'", got)
	}
	d := j.Destination
	if d.Table != "inventory.vehicles" || d.Conflict != "replace" || d.GUIDFormat != "binary16" || !d.Transaction {
		t.Fatalf("Destination = %+v", d)
	}
	if len(d.ColumnMappings) != 2 {
		t.Fatalf("len(ColumnMappings) = %d, want 2", len(d.ColumnMappings))
	}
	if m := d.ColumnMappings[1]; m.SourceOrdinal != 2 || m.Destination != "@reg" || m.Expression == "" {
		t.Fatalf("ColumnMappings[1] = %+v", m)
	}
	if j.Runtime.NotifyAfter != 1000 || j.Runtime.BufferSize != 65536 || j.Runtime.TimeoutSeconds != 30 {
		t.Fatalf("Runtime = %+v", j.Runtime)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	if err := os.WriteFile(path, []byte(`{"job":"x","source":{"kind":"sqlite"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if j.Job != "x" || j.Source.Kind != "sqlite" {
		t.Fatalf("Load = %+v", j)
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("Load(missing) expected error")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"job":`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("Load(bad) expected error")
	}
}

func TestOptions_DefaultsAndCoercion(t *testing.T) {
	t.Parallel()

	o := Options{
		"s": "hello",
		"b": true,
		"i": float64(42), // encoding/json decodes numbers as float64
		"r": ",",
	}

	if got := o.String("s", "def"); got != "hello" {
		t.Fatalf("String(s) = %q, want hello", got)
	}
	if got := o.String("missing", "def"); got != "def" {
		t.Fatalf("String(missing) = %q, want def", got)
	}
	if got := o.Bool("b", false); got != true {
		t.Fatalf("Bool(b) = %v, want true", got)
	}
	if got := o.Bool("s", true); got != true {
		t.Fatalf("Bool(s) = %v, want default true for non-bool", got)
	}
	if got := o.Int("i", 0); got != 42 {
		t.Fatalf("Int(i) = %d, want 42", got)
	}
	if got := o.Int("missing", 7); got != 7 {
		t.Fatalf("Int(missing) = %d, want 7", got)
	}
	if got := o.Rune("r", ';'); got != ',' {
		t.Fatalf("Rune(r) = %q, want ','", got)
	}
	if got := o.Rune("missing", 'X'); got != 'X' {
		t.Fatalf("Rune(missing) = %q, want 'X'", got)
	}

	o["r2"] = "ž"
	r := o.Rune("r2", 'x')
	if !utf8.ValidRune(r) || string(r) != "ž" {
		t.Fatalf("Rune(r2) = %#U, want ž", r)
	}
}

func TestOptions_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Opts Options `json:"options"`
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"options": null}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Opts == nil || len(w.Opts) != 0 {
		t.Fatalf("Opts after null = %#v, want non-nil empty map", w.Opts)
	}

	w = wrapper{}
	if err := json.Unmarshal([]byte(`{"options": {"a":"x","b":true,"n": 3}}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Opts.String("a", "") != "x" || !w.Opts.Bool("b", false) || w.Opts.Int("n", 0) != 3 {
		t.Fatalf("Opts = %#v", w.Opts)
	}
}
