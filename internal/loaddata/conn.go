package loaddata

import "context"

// RowSource is a single forward pass over rows. Next may block when the
// source itself is asynchronous; it returns false when the source is
// exhausted or failed, after which Err reports the failure (nil on clean
// exhaustion).
type RowSource interface {
	FieldCount() int
	Next(ctx context.Context) bool
	// Values returns the current row; len must equal FieldCount. The slice is
	// only valid until the next call to Next.
	Values() []any
	Err() error
}

// Transport accepts one complete frame for transmission.
type Transport interface {
	SendFrame(ctx context.Context, frame []byte) error
}

// StreamFunc writes the whole load-data stream to t and returns when the
// stream is complete.
type StreamFunc func(ctx context.Context, t Transport) error

// Column is one destination column as reported by schema introspection.
type Column struct {
	Name string
	// DatabaseType is the upper-case declared type family, e.g. "BIT",
	// "VARBINARY", "INT".
	DatabaseType string
}

// Conn is the session a BulkCopy runs on.
type Conn interface {
	IsOpen() bool
	Open(ctx context.Context) error
	Close() error

	// Settings returns the connection-wide encoding settings.
	Settings() Settings

	// ReadSchema returns the ordered columns of table from a no-row query.
	ReadSchema(ctx context.Context, table string) ([]Column, error)

	// LoadData issues stmt and feeds it the stream produced by stream. It
	// returns the number of rows the server reports as inserted.
	LoadData(ctx context.Context, stmt *Statement, stream StreamFunc) (int64, error)
}
