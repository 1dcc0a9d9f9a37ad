// Package csv implements a streaming CSV row source.
//
// Recognized options:
//
//	has_header (bool, default true)   first record names the columns
//	expected_fields (int)              column count when has_header=false
//	comma (string, default ",")        field delimiter
//	trim_space (bool, default true)    trim cells
//	empty_as_null (bool, default true) load empty cells as NULL
//	encoding (string, default "utf-8") any WHATWG label, e.g. "windows-1250"
package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"mysqlbulk/internal/source"
)

const utf8BOM = "\uFEFF"

func init() {
	source.Register("csv", Open)
}

// Reader is a CSV Source over one file.
type Reader struct {
	f       io.Closer
	cr      *csv.Reader
	columns []string
	row     []any
	trim    bool
	empty   bool
	line    int
	err     error
}

var _ source.Source = (*Reader)(nil)

// Open opens cfg.Path and reads the header when configured to.
func Open(_ context.Context, cfg source.Config) (source.Source, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("csv: path must not be empty")
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("csv: open: %w", err)
	}
	r, err := NewReader(f, cfg)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.f = f
	return r, nil
}

// NewReader builds a Reader over rd. The caller keeps ownership of rd.
func NewReader(rd io.Reader, cfg source.Config) (*Reader, error) {
	opts := cfg.Options
	var in io.Reader = bufio.NewReaderSize(rd, 1<<20)
	if name := opts.String("encoding", ""); name != "" && !strings.EqualFold(name, "utf-8") && !strings.EqualFold(name, "utf8") {
		enc, err := htmlindex.Get(name)
		if err != nil {
			return nil, fmt.Errorf("csv: encoding %q: %w", name, err)
		}
		in = transform.NewReader(in, enc.NewDecoder())
	}

	cr := csv.NewReader(in)
	cr.Comma = opts.Rune("comma", ',')
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	r := &Reader{
		cr:    cr,
		trim:  opts.Bool("trim_space", true),
		empty: opts.Bool("empty_as_null", true),
	}
	if opts.Bool("has_header", true) {
		h, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("csv: read header: %w", err)
		}
		r.line = 1
		r.columns = normalizeHeader(h)
	} else {
		n := opts.Int("expected_fields", 0)
		if n <= 0 {
			return nil, fmt.Errorf("csv: expected_fields is required when has_header=false")
		}
		r.columns = make([]string, n)
		for i := range r.columns {
			r.columns[i] = fmt.Sprintf("col_%d", i)
		}
	}
	r.row = make([]any, len(r.columns))
	return r, nil
}

func normalizeHeader(h []string) []string {
	out := make([]string, len(h))
	for i, s := range h {
		if i == 0 {
			s = strings.TrimPrefix(s, utf8BOM)
		}
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func (r *Reader) FieldCount() int   { return len(r.columns) }
func (r *Reader) Columns() []string { return r.columns }
func (r *Reader) Values() []any     { return r.row }
func (r *Reader) Err() error        { return r.err }

func (r *Reader) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	rec, err := r.cr.Read()
	if errors.Is(err, io.EOF) {
		return false
	}
	r.line++
	if err != nil {
		r.err = fmt.Errorf("csv: line %d: %w", r.line, err)
		return false
	}
	if len(rec) != len(r.columns) {
		r.err = fmt.Errorf("csv: line %d: incorrect number of fields: expected %d, got %d", r.line, len(r.columns), len(rec))
		return false
	}
	for i, v := range rec {
		if r.trim {
			v = strings.TrimSpace(v)
		}
		if v == "" && r.empty {
			r.row[i] = nil
			continue
		}
		r.row[i] = v
	}
	return true
}

func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}
