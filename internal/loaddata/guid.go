package loaddata

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GUIDFormat selects how uuid.UUID values are stored by the destination
// server. It is a connection-wide setting.
type GUIDFormat int

const (
	// GUIDChar36 writes the canonical 36-character text form.
	GUIDChar36 GUIDFormat = iota
	// GUIDChar32 writes the 32 hex digits without separators.
	GUIDChar32
	// GUIDBinary16 writes the 16 RFC 4122 bytes, hex encoded.
	GUIDBinary16
	// GUIDTimeSwapBinary16 moves time-high and time-mid ahead of time-low so
	// that version-1 UUIDs sort by time.
	GUIDTimeSwapBinary16
	// GUIDLittleEndianBinary16 stores the first three fields little-endian.
	GUIDLittleEndianBinary16
)

var guidFormatNames = map[GUIDFormat]string{
	GUIDChar36:               "char36",
	GUIDChar32:               "char32",
	GUIDBinary16:             "binary16",
	GUIDTimeSwapBinary16:     "timeswapbinary16",
	GUIDLittleEndianBinary16: "littleendianbinary16",
}

func (f GUIDFormat) String() string {
	if s, ok := guidFormatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("GUIDFormat(%d)", int(f))
}

// Binary reports whether GUIDs are stored as 16 raw bytes.
func (f GUIDFormat) Binary() bool {
	return f == GUIDBinary16 || f == GUIDTimeSwapBinary16 || f == GUIDLittleEndianBinary16
}

// ParseGUIDFormat parses a case-insensitive format name. The empty string
// means GUIDChar36.
func ParseGUIDFormat(s string) (GUIDFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return GUIDChar36, nil
	}
	for f, name := range guidFormatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown guid format %q", s)
}

// guidBytes returns the 16 stored bytes of u for a binary format.
func guidBytes(u uuid.UUID, f GUIDFormat) [16]byte {
	b := [16]byte(u)
	switch f {
	case GUIDLittleEndianBinary16:
		swap(&b, 0, 3)
		swap(&b, 1, 2)
		swap(&b, 4, 5)
		swap(&b, 6, 7)
	case GUIDTimeSwapBinary16:
		swap(&b, 0, 4)
		swap(&b, 1, 5)
		swap(&b, 2, 6)
		swap(&b, 3, 7)
		swap(&b, 0, 2)
		swap(&b, 1, 3)
	}
	return b
}

func swap(b *[16]byte, i, j int) { b[i], b[j] = b[j], b[i] }

// appendGUID writes u into dst in format f. It reports false when dst is too
// small.
func appendGUID(dst []byte, u uuid.UUID, f GUIDFormat) (int, bool) {
	switch f {
	case GUIDChar36:
		if len(dst) < 36 {
			return 0, false
		}
		hex.Encode(dst[0:8], u[0:4])
		dst[8] = '-'
		hex.Encode(dst[9:13], u[4:6])
		dst[13] = '-'
		hex.Encode(dst[14:18], u[6:8])
		dst[18] = '-'
		hex.Encode(dst[19:23], u[8:10])
		dst[23] = '-'
		hex.Encode(dst[24:36], u[10:16])
		return 36, true
	case GUIDChar32:
		if len(dst) < 32 {
			return 0, false
		}
		hex.Encode(dst, u[:])
		return 32, true
	default:
		if len(dst) < 32 {
			return 0, false
		}
		b := guidBytes(u, f)
		hex.Encode(dst, b[:])
		return 32, true
	}
}
