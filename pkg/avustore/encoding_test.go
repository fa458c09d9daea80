package avustore

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	for _, v := range []any{
		nil,
		"",
		"plain text",
		"STRlooks like a code",
		int64(0),
		int64(-1),
		int64(math.MinInt64),
		int64(math.MaxInt64),
		0.0,
		-273.15,
		29.97,
		math.MaxFloat64,
		-math.SmallestNonzeroFloat64,
		math.Inf(1),
		time.Date(1969, time.July, 20, 20, 17, 40, 0, time.UTC),
		time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC),
		Date{Year: 2021, Month: time.June, Day: 1},
		Date{Year: 1900, Month: time.January, Day: 1},
	} {
		enc, err := Encode(v)
		require.NoError(t, err)
		got, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got, "%q", enc)
	}
}

func TestEncodeTags(t *testing.T) {
	for v, code := range map[any]string{
		nil:                       "NUL",
		"s":                       "STR",
		int64(1):                  "INT",
		1.5:                       "FLT",
		time.Unix(0, 0).UTC():     "DTM",
		Date{1970, time.March, 3}: "DAT",
	} {
		enc, err := Encode(v)
		require.NoError(t, err)
		assert.Equal(t, code, enc[:codeLen])
	}

	_, err := Encode(42)
	assert.True(t, EncodingError.Has(err), "plain int is not a supported value type")
	_, err = Encode(true)
	assert.True(t, EncodingError.Has(err))
}

func TestEncodePreservesOrder(t *testing.T) {
	ints := []int64{math.MinInt64, -1 << 40, -12, -1, 0, 1, 9, 10, 100, 1 << 40, math.MaxInt64}
	floats := []float64{math.Inf(-1), -1e300, -2.5, -1, -0.001, math.Copysign(0, -1), 0, 0.001, 0.5, 1, 10, 1e300, math.Inf(1)}
	times := []time.Time{
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	check := func(values []any) {
		t.Helper()
		encoded := make([]string, len(values))
		for i, v := range values {
			enc, err := Encode(v)
			require.NoError(t, err)
			encoded[i] = enc
		}
		assert.True(t, sort.StringsAreSorted(encoded), "%q", encoded)
	}
	check(anys(ints))
	check(anys(floats))
	check(anys(times))

	negZero, err := Encode(math.Copysign(0, -1))
	require.NoError(t, err)
	zero, err := Encode(0.0)
	require.NoError(t, err)
	assert.Equal(t, zero, negZero)
}

func TestBracketsExcludeOtherCodes(t *testing.T) {
	null, err := Encode(nil)
	require.NoError(t, err)
	for _, v := range []any{int64(math.MaxInt64), math.Inf(1), time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)} {
		enc, err := Encode(v)
		require.NoError(t, err)
		code := enc[:codeLen]
		assert.LessOrEqual(t, lowest(code), enc)
		assert.LessOrEqual(t, enc, highest(code))
		assert.Greater(t, null, highest(code), "null sorts above every %s value", code)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "ST", "XYZ1", "NULx", "INT12", "INTabcdefghijklmnopqrst", "FLT123", "FLTzzzzzzzzzzzzzzzz", "DTM1"} {
		_, err := Decode(s)
		assert.True(t, EncodingError.Has(err), "%q", s)
	}
}

func anys[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
