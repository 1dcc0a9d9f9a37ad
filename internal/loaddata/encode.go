package loaddata

import (
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v2"
	"github.com/golang-sql/civil"
	"github.com/google/uuid"
)

// DateTimeKind is the connection's policy for time.Time values. A value whose
// location contradicts the policy is rejected instead of reinterpreted.
type DateTimeKind int

const (
	DateTimeUnspecified DateTimeKind = iota
	DateTimeUTC
	DateTimeLocal
)

func (k DateTimeKind) String() string {
	switch k {
	case DateTimeUTC:
		return "utc"
	case DateTimeLocal:
		return "local"
	default:
		return "unspecified"
	}
}

// ParseDateTimeKind parses "unspecified", "utc" or "local" (case-insensitive).
func ParseDateTimeKind(s string) (DateTimeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unspecified":
		return DateTimeUnspecified, nil
	case "utc":
		return DateTimeUTC, nil
	case "local":
		return DateTimeLocal, nil
	}
	return 0, fmt.Errorf("unknown datetime kind %q", s)
}

// Settings are the connection-wide options that change how values encode.
type Settings struct {
	GUIDFormat   GUIDFormat
	DateTimeKind DateTimeKind
}

// Geometry holds a MySQL geometry value in the server's internal format
// (4-byte SRID followed by WKB). It is sent hex encoded.
type Geometry []byte

const (
	timeLayout  = "2006-01-02 15:04:05.000000"
	invalidDate = "0000-00-00"
)

var (
	nullToken = []byte(`\N`)

	errInsufficientSpace = errors.New("insufficient buffer space")
)

// valueEncoder turns one field value into its LOAD DATA text form. It writes
// straight into the destination slice and never grows it: when the encoded
// value does not fit, errInsufficientSpace is returned and dst may hold
// garbage that the caller discards.
type valueEncoder struct {
	settings Settings
}

func (e valueEncoder) encode(dst []byte, v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return putBytes(dst, nullToken)
	case string:
		return putEscaped(dst, x)
	case []byte:
		if x == nil {
			return putBytes(dst, nullToken)
		}
		return putHex(dst, x)
	case Geometry:
		if x == nil {
			return putBytes(dst, nullToken)
		}
		return putHex(dst, x)
	case bool:
		if x {
			return putByte(dst, '1')
		}
		return putByte(dst, '0')
	case int:
		return fit(dst, strconv.AppendInt(scratch(dst), int64(x), 10))
	case int8:
		return fit(dst, strconv.AppendInt(scratch(dst), int64(x), 10))
	case int16:
		return fit(dst, strconv.AppendInt(scratch(dst), int64(x), 10))
	case int32:
		return fit(dst, strconv.AppendInt(scratch(dst), int64(x), 10))
	case int64:
		return fit(dst, strconv.AppendInt(scratch(dst), x, 10))
	case uint:
		return fit(dst, strconv.AppendUint(scratch(dst), uint64(x), 10))
	case uint8:
		return fit(dst, strconv.AppendUint(scratch(dst), uint64(x), 10))
	case uint16:
		return fit(dst, strconv.AppendUint(scratch(dst), uint64(x), 10))
	case uint32:
		return fit(dst, strconv.AppendUint(scratch(dst), uint64(x), 10))
	case uint64:
		return fit(dst, strconv.AppendUint(scratch(dst), x, 10))
	case float32:
		return putFloat(dst, float64(x), 32)
	case float64:
		return putFloat(dst, x, 64)
	case *big.Int:
		if x == nil {
			return putBytes(dst, nullToken)
		}
		return putBigInt(dst, x)
	case apd.Decimal:
		return putDecimal(dst, &x)
	case *apd.Decimal:
		if x == nil {
			return putBytes(dst, nullToken)
		}
		return putDecimal(dst, x)
	case time.Time:
		return e.putTime(dst, x)
	case time.Duration:
		return putDuration(dst, x)
	case civil.Date:
		if x == (civil.Date{}) {
			return putString(dst, invalidDate)
		}
		t := x.In(time.UTC)
		return fit(dst, t.AppendFormat(scratch(dst), "2006-01-02"))
	case civil.DateTime:
		if x.Date == (civil.Date{}) {
			return putString(dst, invalidDate)
		}
		t := x.In(time.UTC)
		return fit(dst, t.AppendFormat(scratch(dst), timeLayout))
	case civil.Time:
		d := time.Duration(x.Hour)*time.Hour + time.Duration(x.Minute)*time.Minute +
			time.Duration(x.Second)*time.Second + time.Duration(x.Nanosecond)
		return putDuration(dst, d)
	case uuid.UUID:
		n, ok := appendGUID(dst, x, e.settings.GUIDFormat)
		if !ok {
			return 0, errInsufficientSpace
		}
		return n, nil
	case *uuid.UUID:
		if x == nil {
			return putBytes(dst, nullToken)
		}
		return e.encode(dst, *x)
	case uuid.NullUUID:
		if !x.Valid {
			return putBytes(dst, nullToken)
		}
		return e.encode(dst, x.UUID)
	case driver.Valuer:
		return e.encodeValuer(dst, x)
	}
	return e.encodeReflect(dst, v)
}

func (e valueEncoder) encodeValuer(dst []byte, vr driver.Valuer) (int, error) {
	if rv := reflect.ValueOf(vr); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return putBytes(dst, nullToken)
	}
	dv, err := vr.Value()
	if err != nil {
		return 0, fmt.Errorf("%T.Value: %w", vr, err)
	}
	if _, again := dv.(driver.Valuer); again {
		return 0, fmt.Errorf("%w: %T returned another driver.Valuer", ErrUnsupportedType, vr)
	}
	return e.encode(dst, dv)
}

// encodeReflect handles pointers to supported values and named integer
// types such as enums.
func (e valueEncoder) encodeReflect(dst []byte, v any) (int, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return putBytes(dst, nullToken)
		}
		return e.encode(dst, rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fit(dst, strconv.AppendInt(scratch(dst), rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fit(dst, strconv.AppendUint(scratch(dst), rv.Uint(), 10))
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func (e valueEncoder) putTime(dst []byte, t time.Time) (int, error) {
	if t.IsZero() {
		return putString(dst, invalidDate)
	}
	switch loc := t.Location(); {
	case loc == time.UTC:
		if e.settings.DateTimeKind == DateTimeLocal {
			return 0, fmt.Errorf("%w: got UTC time, connection requires local", ErrDateTimeKind)
		}
	case loc == time.Local:
		if e.settings.DateTimeKind == DateTimeUTC {
			return 0, fmt.Errorf("%w: got local time, connection requires UTC", ErrDateTimeKind)
		}
	default:
		t = t.UTC()
	}
	return fit(dst, t.AppendFormat(scratch(dst), timeLayout))
}

// putDuration writes [-]H:MM:SS.ffffff with unbounded hours.
func putDuration(dst []byte, d time.Duration) (int, error) {
	b := scratch(dst)
	var mag uint64
	if d < 0 {
		b = append(b, '-')
		mag = uint64(-(d + 1)) + 1
	} else {
		mag = uint64(d)
	}
	hours := mag / uint64(time.Hour)
	mag %= uint64(time.Hour)
	minutes := mag / uint64(time.Minute)
	mag %= uint64(time.Minute)
	seconds := mag / uint64(time.Second)
	micros := (mag % uint64(time.Second)) / uint64(time.Microsecond)

	b = strconv.AppendUint(b, hours, 10)
	b = append(b, ':')
	b = appendPadded(b, minutes, 2)
	b = append(b, ':')
	b = appendPadded(b, seconds, 2)
	b = append(b, '.')
	b = appendPadded(b, micros, 6)
	return fit(dst, b)
}

func appendPadded(b []byte, v uint64, width int) []byte {
	var tmp [20]byte
	s := strconv.AppendUint(tmp[:0], v, 10)
	for i := len(s); i < width; i++ {
		b = append(b, '0')
	}
	return append(b, s...)
}

func putFloat(dst []byte, f float64, bits int) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite float %v", ErrUnsupportedType, f)
	}
	return fit(dst, strconv.AppendFloat(scratch(dst), f, 'g', -1, bits))
}

func putBigInt(dst []byte, x *big.Int) (int, error) {
	switch {
	case x.IsInt64():
		return fit(dst, strconv.AppendInt(scratch(dst), x.Int64(), 10))
	case x.IsUint64():
		return fit(dst, strconv.AppendUint(scratch(dst), x.Uint64(), 10))
	}
	return fit(dst, x.Append(scratch(dst), 10))
}

// putDecimal writes d in plain (non-exponent) notation. Coefficients up to
// 64 bits are formatted without allocating; larger ones go through apd.
func putDecimal(dst []byte, d *apd.Decimal) (int, error) {
	if d.Form != apd.Finite {
		return 0, fmt.Errorf("%w: non-finite decimal %s", ErrUnsupportedType, d.String())
	}
	if !d.Coeff.IsUint64() {
		return fit(dst, d.Append(scratch(dst), 'f'))
	}
	var tmp [20]byte
	digits := strconv.AppendUint(tmp[:0], d.Coeff.Uint64(), 10)
	exp := int(d.Exponent)

	var n int
	switch {
	case exp >= 0:
		n = len(digits) + exp
	case -exp >= len(digits):
		n = len("0.") - exp
	default:
		n = len(digits) + 1
	}
	if d.Negative {
		n++
	}
	if n > len(dst) {
		return 0, errInsufficientSpace
	}

	b := scratch(dst)
	if d.Negative {
		b = append(b, '-')
	}
	switch {
	case exp >= 0:
		b = append(b, digits...)
		for i := 0; i < exp; i++ {
			b = append(b, '0')
		}
	case -exp >= len(digits):
		b = append(b, "0."...)
		for i := len(digits); i < -exp; i++ {
			b = append(b, '0')
		}
		b = append(b, digits...)
	default:
		p := len(digits) + exp
		b = append(b, digits[:p]...)
		b = append(b, '.')
		b = append(b, digits[p:]...)
	}
	return len(b), nil
}

// putEscaped writes s with tab, backslash and newline preceded by a
// backslash. The full escaped length is checked before the first byte is
// written so a multi-byte sequence is never cut. The statement declares
// utf8mb4, so s must be valid UTF-8.
func putEscaped(dst []byte, s string) (int, error) {
	if !utf8.ValidString(s) {
		return 0, ErrInvalidUTF8
	}
	n := len(s)
	for i := 0; i < len(s); i++ {
		if needsEscape(s[i]) {
			n++
		}
	}
	if n > len(dst) {
		return 0, errInsufficientSpace
	}
	j := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape(c) {
			dst[j] = '\\'
			j++
		}
		dst[j] = c
		j++
	}
	return n, nil
}

func needsEscape(c byte) bool { return c == '\t' || c == '\\' || c == '\n' }

func putHex(dst, src []byte) (int, error) {
	n := hex.EncodedLen(len(src))
	if n > len(dst) {
		return 0, errInsufficientSpace
	}
	hex.Encode(dst, src)
	return n, nil
}

func putBytes(dst, src []byte) (int, error) {
	if len(src) > len(dst) {
		return 0, errInsufficientSpace
	}
	return copy(dst, src), nil
}

func putString(dst []byte, s string) (int, error) {
	if len(s) > len(dst) {
		return 0, errInsufficientSpace
	}
	return copy(dst, s), nil
}

func putByte(dst []byte, c byte) (int, error) {
	if len(dst) < 1 {
		return 0, errInsufficientSpace
	}
	dst[0] = c
	return 1, nil
}

// scratch returns dst emptied but with its capacity capped at its length, so
// appends either land in place or reallocate (which fit then rejects).
func scratch(dst []byte) []byte { return dst[:0:len(dst)] }

func fit(dst, out []byte) (int, error) {
	if len(out) > len(dst) {
		return 0, errInsufficientSpace
	}
	return len(out), nil
}
