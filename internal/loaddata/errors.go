package loaddata

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a bulk copy failure.
type ErrorKind int

const (
	// KindConfig is raised before any network I/O: missing destination,
	// bad mappings, unsupported destination column types.
	KindConfig ErrorKind = iota + 1
	// KindEncoding aborts the stream: unsupported value type, a single row
	// larger than the frame bound, a time value violating the connection's
	// DateTimeKind policy, text that is not valid UTF-8.
	KindEncoding
	// KindTransport wraps frame send failures and server rejections.
	KindTransport
	// KindIntegrity reports a server row count that disagrees with the rows
	// streamed.
	KindIntegrity
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindEncoding:
		return "encoding"
	case KindTransport:
		return "transport"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

var (
	ErrNoDestination         = errors.New("destination table is not set")
	ErrEmptyMapping          = errors.New("column mapping destination is empty")
	ErrOrdinalOutOfRange     = errors.New("column mapping source ordinal out of range")
	ErrDuplicateOrdinal      = errors.New("column mapping source ordinal used more than once")
	ErrUnsupportedColumnType = errors.New("unsupported destination column type")
	ErrUnsupportedType       = errors.New("unsupported value type")
	ErrRowTooLarge           = errors.New("row does not fit in a single frame")
	ErrDateTimeKind          = errors.New("time value conflicts with connection DateTimeKind")
	ErrInvalidUTF8           = errors.New("text value is not valid UTF-8")
	ErrRowCountMismatch      = errors.New("inserted row count does not match copied row count")
)

// Error is returned by BulkCopy for every fatal condition.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("bulkcopy: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("bulkcopy: %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RowCountMismatchError names both counts of a failed integrity check.
type RowCountMismatchError struct {
	Copied   int64
	Inserted int64
}

func (e *RowCountMismatchError) Error() string {
	return fmt.Sprintf("copied %d rows but server reported %d inserted", e.Copied, e.Inserted)
}

func (e *RowCountMismatchError) Is(target error) bool { return target == ErrRowCountMismatch }

// KindOf returns the ErrorKind of err, or 0 when err did not come from this
// package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func configError(op string, err error) error    { return &Error{Kind: KindConfig, Op: op, Err: err} }
func encodingError(op string, err error) error  { return &Error{Kind: KindEncoding, Op: op, Err: err} }
func transportError(op string, err error) error { return &Error{Kind: KindTransport, Op: op, Err: err} }
