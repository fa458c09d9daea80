package avustore

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/zeebo/errs"
)

// EncodingError is returned for values that cannot be encoded or decoded.
var EncodingError = errs.Class("attribute encoding")

// Type codes prefixed to every encoded attribute value.
const (
	codeString   = "STR"
	codeInt      = "INT"
	codeFloat    = "FLT"
	codeDateTime = "DTM"
	codeDate     = "DAT"
	codeNull     = "NUL"
)

const codeLen = 3

// Date is a calendar day. It encodes as midnight UTC.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Encode renders v as a type-tagged string whose byte order matches the
// natural order of values of the same type. Supported values are nil,
// string, int64, float64, time.Time (second precision) and Date.
func Encode(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return codeNull, nil
	case string:
		return codeString + v, nil
	case int64:
		return codeInt + encodeInt(v), nil
	case float64:
		return codeFloat + encodeFloat(v), nil
	case time.Time:
		return codeDateTime + encodeInt(v.Unix()), nil
	case Date:
		return codeDate + encodeInt(v.Time().Unix()), nil
	}
	return "", EncodingError.New("unsupported value type %T", v)
}

// Decode parses a string produced by Encode.
func Decode(s string) (any, error) {
	if len(s) < codeLen {
		return nil, EncodingError.New("value %q has no type code", s)
	}
	code, body := s[:codeLen], s[codeLen:]
	switch code {
	case codeNull:
		if body != "" {
			return nil, EncodingError.New("null value %q has a body", s)
		}
		return nil, nil
	case codeString:
		return body, nil
	case codeInt:
		return decodeInt(body)
	case codeFloat:
		return decodeFloat(body)
	case codeDateTime:
		sec, err := decodeInt(body)
		if err != nil {
			return nil, err
		}
		return time.Unix(sec, 0).UTC(), nil
	case codeDate:
		sec, err := decodeInt(body)
		if err != nil {
			return nil, err
		}
		return DateOf(time.Unix(sec, 0)), nil
	}
	return nil, EncodingError.New("unknown type code %q", code)
}

// encodeInt writes v in offset binary as 20 decimal digits so that negative
// values sort before positive ones.
func encodeInt(v int64) string {
	return fmt.Sprintf("%020d", uint64(v)^(1<<63))
}

func decodeInt(s string) (int64, error) {
	if len(s) != 20 {
		return 0, EncodingError.New("integer %q is not 20 digits", s)
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, EncodingError.Wrap(err)
	}
	return int64(u ^ (1 << 63)), nil
}

// encodeFloat writes the IEEE-754 bits of v as 16 hex digits, flipped so
// that unsigned comparison follows numeric order. Negative zero is written
// as zero.
func encodeFloat(v float64) string {
	if v == 0 {
		v = 0
	}
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return fmt.Sprintf("%016x", bits)
}

func decodeFloat(s string) (float64, error) {
	if len(s) != 16 {
		return 0, EncodingError.New("float %q is not 16 hex digits", s)
	}
	bits, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, EncodingError.Wrap(err)
	}
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

// lowest and highest bracket every encoded value carrying code, so a range
// with an open end still excludes other types and nulls.
func lowest(code string) string  { return code }
func highest(code string) string { return code + "~" }
