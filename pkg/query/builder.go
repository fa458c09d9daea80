package query

import (
	"time"

	"github.com/nainya/assetcatalog/pkg/metadata"
)

// Builder provides a fluent interface for building queries. The first
// invalid filter is reported by Build.
type Builder struct {
	query Query
	err   error
}

// NewBuilder creates an empty query builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PlatformTypes restricts results to the given platforms.
func (b *Builder) PlatformTypes(types ...metadata.PlatformType) *Builder {
	b.query.PlatformTypes = append(b.query.PlatformTypes, types...)
	return b
}

// Name matches records whose name contains s.
func (b *Builder) Name(s string) *Builder {
	b.query.Name = s
	return b
}

// Notes matches records whose notes contain s.
func (b *Builder) Notes(s string) *Builder {
	b.query.Notes = s
	return b
}

// Camera matches rasters whose camera contains s.
func (b *Builder) Camera(s string) *Builder {
	b.query.Camera = s
	return b
}

// Session matches records whose session name contains s.
func (b *Builder) Session(s string) *Builder {
	b.query.Session = s
	return b
}

// LocationDescription matches records whose location description contains s.
func (b *Builder) LocationDescription(s string) *Builder {
	b.query.LocationDescription = s
	return b
}

// SequenceNumbers bounds the sequence number. Either end may be nil.
func (b *Builder) SequenceNumbers(min, max *int64) *Builder {
	v, err := NewRange(min, max)
	b.fail(err)
	b.query.SequenceNumbers = v
	return b
}

// CaptureDates bounds the capture date. Either end may be nil.
func (b *Builder) CaptureDates(min, max *time.Time) *Builder {
	v, err := NewRange(min, max)
	b.fail(err)
	b.query.CaptureDates = v
	return b
}

// AltitudeMeters bounds the UAV altitude. Either end may be nil.
func (b *Builder) AltitudeMeters(min, max *float64) *Builder {
	v, err := NewRange(min, max)
	b.fail(err)
	b.query.AltitudeMeters = v
	return b
}

// GSDCmPx bounds the ground sample distance. Either end may be nil.
func (b *Builder) GSDCmPx(min, max *float64) *Builder {
	v, err := NewRange(min, max)
	b.fail(err)
	b.query.GSDCmPx = v
	return b
}

// Within restricts results to records located inside the box.
func (b *Builder) Within(southWest, northEast metadata.GeoPoint) *Builder {
	v, err := NewBoundingBox(southWest, northEast)
	b.fail(err)
	b.query.BoundingBox = v
	return b
}

// Build returns the constructed query.
func (b *Builder) Build() (Query, error) {
	if b.err != nil {
		return Query{}, b.err
	}
	return b.query, b.query.Validate()
}

func (b *Builder) fail(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}
