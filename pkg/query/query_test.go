// ABOUTME: Tests for query value objects
// ABOUTME: Covers range validation, filter dispatch and the builder

package query

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/assetcatalog/pkg/metadata"
)

type recorder struct {
	calls []string
}

func (r *recorder) Unset(f Field) {}

func (r *recorder) Contains(f Field, s string) {
	r.calls = append(r.calls, fmt.Sprintf("%v contains %q", f, s))
}

func (r *recorder) OneOf(f Field, values []string) {
	r.calls = append(r.calls, fmt.Sprintf("%v in %v", f, values))
}

func (r *recorder) Bounds(f Field, b Bounds) {
	r.calls = append(r.calls, fmt.Sprintf("%v in [%v, %v]", f, b.Min, b.Max))
}

func (r *recorder) Box(f Field, box BoundingBox) {
	lat, lon := box.Latitude(), box.Longitude()
	r.calls = append(r.calls, fmt.Sprintf("lat in [%v, %v] lon in [%v, %v]", lat.Min, lat.Max, lon.Min, lon.Max))
}

func TestRangeValidation(t *testing.T) {
	_, err := NewRange[int64](nil, nil)
	require.True(t, metadata.ErrValidation.Has(err))

	_, err = Between[int64](5, 1)
	require.True(t, metadata.ErrValidation.Has(err))

	_, err = Between(2.5, 1.0)
	require.True(t, metadata.ErrValidation.Has(err))

	nan := math.NaN()
	_, err = NewRange(&nan, metadata.Ptr(1.0))
	require.True(t, metadata.ErrValidation.Has(err))
	_, err = NewRange(metadata.Ptr(1.0), &nan)
	require.True(t, metadata.ErrValidation.Has(err))
	require.True(t, metadata.ErrValidation.Has((&Range[float64]{Min: &nan}).Validate()))

	later := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = Between(later, later.Add(-time.Hour))
	require.True(t, metadata.ErrValidation.Has(err))

	r, err := Between[int64](1, 1)
	require.NoError(t, err)
	assert.True(t, r.Contains(1))
	assert.False(t, r.Contains(2))

	assert.NoError(t, AtLeast(3.0).Validate())
	assert.NoError(t, AtMost(later).Validate())
	assert.True(t, AtMost[int64](0).Contains(-100))
}

func TestLiteralQueryValidation(t *testing.T) {
	q := Query{SequenceNumbers: &Range[int64]{}}
	require.True(t, metadata.ErrValidation.Has(q.Validate()))

	q = Query{PlatformTypes: []metadata.PlatformType{"orbital"}}
	require.True(t, metadata.ErrValidation.Has(q.Validate()))

	q = Query{BoundingBox: &BoundingBox{NorthEast: metadata.GeoPoint{LatitudeDeg: 91}}}
	require.True(t, metadata.ErrValidation.Has(q.Validate()))

	require.NoError(t, Query{}.Validate())
}

func TestTranslateDispatch(t *testing.T) {
	box, err := NewBoundingBox(metadata.GeoPoint{LatitudeDeg: 10, LongitudeDeg: 10}, metadata.GeoPoint{LatitudeDeg: 20, LongitudeDeg: 20})
	require.NoError(t, err)

	q := Query{
		PlatformTypes:   []metadata.PlatformType{metadata.PlatformAerial},
		Name:            "first",
		Camera:          "nikon",
		SequenceNumbers: AtLeast[int64](3),
		BoundingBox:     box,
	}

	var rec recorder
	Translate(q, &rec)
	assert.Equal(t, []string{
		`platform_type in [aerial]`,
		`name contains "first"`,
		`camera contains "nikon"`,
		`sequence_numbers in [3, <nil>]`,
		`lat in [10, 20] lon in [10, 20]`,
	}, rec.calls)
	assert.True(t, q.ReferencesRaster())
	assert.False(t, Query{Name: "x"}.ReferencesRaster())
}

func TestTimeBoundsNormalized(t *testing.T) {
	local := time.Date(2021, 6, 1, 14, 0, 0, 500, time.FixedZone("x", 2*3600))
	b := Query{CaptureDates: AtLeast(local)}.Filter(FieldCaptureDate).(Bounds)
	min, ok := b.Min.(time.Time)
	require.True(t, ok)
	assert.True(t, min.Equal(time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)), min)
	assert.Equal(t, time.UTC, min.Location())
	assert.Nil(t, b.Max)
}

func TestBuilder(t *testing.T) {
	q, err := NewBuilder().
		Name("first").
		Session("a").
		SequenceNumbers(metadata.Ptr(int64(0)), metadata.Ptr(int64(10))).
		Within(metadata.GeoPoint{LatitudeDeg: -1, LongitudeDeg: -1}, metadata.GeoPoint{LatitudeDeg: 1, LongitudeDeg: 1}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "first", q.Name)
	assert.Equal(t, "a", q.Session)
	assert.Equal(t, int64(10), *q.SequenceNumbers.Max)
	assert.Equal(t, 1.0, q.BoundingBox.NorthEast.LatitudeDeg)

	_, err = NewBuilder().
		GSDCmPx(metadata.Ptr(3.0), metadata.Ptr(1.0)).
		Name("ignored").
		Build()
	require.True(t, metadata.ErrValidation.Has(err))

	_, err = NewBuilder().CaptureDates(nil, nil).Build()
	require.True(t, metadata.ErrValidation.Has(err))
}

func TestOrderFields(t *testing.T) {
	for name, want := range map[string]Field{
		"name":         FieldName,
		"session":      FieldSession,
		"sequence_num": FieldSequenceNumber,
		"capture_date": FieldCaptureDate,
		"camera":       FieldCamera,
	} {
		of, err := ParseOrderField(name)
		require.NoError(t, err)
		assert.Equal(t, want, of.Field())
	}

	_, err := ParseOrderField("size")
	require.True(t, metadata.ErrValidation.Has(err))

	assert.Panics(t, func() { OrderField(42).Field() })
	assert.Panics(t, func() { Query{}.Filter(Field(99)) })
}

func TestAntimeridianBoxIsNotWrapped(t *testing.T) {
	// A box crossing the antimeridian is decomposed verbatim; the longitude
	// bounds end up inverted rather than split.
	box, err := NewBoundingBox(metadata.GeoPoint{LatitudeDeg: -10, LongitudeDeg: 170}, metadata.GeoPoint{LatitudeDeg: 10, LongitudeDeg: -170})
	require.NoError(t, err)
	lon := box.Longitude()
	assert.Equal(t, 170.0, lon.Min)
	assert.Equal(t, -170.0, lon.Max)
}
