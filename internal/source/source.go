// Package source contains the row sources a bulk copy can read from and a
// small factory that backends register with at init time.
//
// Backends (sqlite, mssql, postgres, mysql, oracle, csv) live in subpackages
// and call Register from init. Importing mysqlbulk/internal/source/all enables
// all of them.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mysqlbulk/internal/config"
	"mysqlbulk/internal/loaddata"
)

// Source is a loaddata.RowSource that knows its column names and owns
// resources that must be released.
type Source interface {
	loaddata.RowSource
	Columns() []string
	Close() error
}

// Config is the backend-agnostic source configuration.
type Config struct {
	Kind string
	// DSN and Query are used by database backends.
	DSN   string
	Query string
	// Path is used by file backends.
	Path string
	// Options carries backend-specific settings (e.g. CSV has_header).
	Options config.Options
}

// Factory opens a Source for cfg.
type Factory func(ctx context.Context, cfg Config) (Source, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Source of cfg.Kind.
func New(ctx context.Context, cfg Config) (Source, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported source.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
