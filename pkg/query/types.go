// ABOUTME: Declarative query value objects for the metadata catalog
// ABOUTME: Query filters, bounding boxes and result orderings shared by every backend

package query

import (
	"fmt"
	"time"

	"github.com/nainya/assetcatalog/pkg/metadata"
)

// Field identifies a logical query field. Backends map every Field to a
// native column or attribute name.
type Field int

const (
	FieldPlatformType Field = iota
	FieldName
	FieldNotes
	FieldCamera
	FieldSession
	FieldSequenceNumber
	FieldCaptureDate
	FieldLocationDescription
	FieldAltitudeMeters
	FieldGSDCmPx
	FieldBoundingBox
)

// Fields lists every Field in translation order.
var Fields = []Field{
	FieldPlatformType,
	FieldName,
	FieldNotes,
	FieldCamera,
	FieldSession,
	FieldSequenceNumber,
	FieldCaptureDate,
	FieldLocationDescription,
	FieldAltitudeMeters,
	FieldGSDCmPx,
	FieldBoundingBox,
}

var fieldNames = map[Field]string{
	FieldPlatformType:        "platform_type",
	FieldName:                "name",
	FieldNotes:               "notes",
	FieldCamera:              "camera",
	FieldSession:             "session",
	FieldSequenceNumber:      "sequence_numbers",
	FieldCaptureDate:         "capture_dates",
	FieldLocationDescription: "location_description",
	FieldAltitudeMeters:      "altitude_meters",
	FieldGSDCmPx:             "gsd_cm_px",
	FieldBoundingBox:         "bounding_box",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// RasterLevel reports whether the field lives on the raster extension rather
// than on the base record.
func (f Field) RasterLevel() bool {
	switch f {
	case FieldCamera, FieldAltitudeMeters, FieldGSDCmPx:
		return true
	}
	return false
}

// Query is one AND-group of filters. Zero-valued fields contribute no
// constraint. Several queries passed to one store call are ORed.
type Query struct {
	PlatformTypes       []metadata.PlatformType
	Name                string
	Notes               string
	Camera              string
	Session             string
	SequenceNumbers     *Range[int64]
	CaptureDates        *Range[time.Time]
	LocationDescription string
	AltitudeMeters      *Range[float64]
	GSDCmPx             *Range[float64]
	BoundingBox         *BoundingBox
}

// Validate rechecks every set filter. Queries built through Builder are
// already valid; literal Query values may not be.
func (q Query) Validate() error {
	for _, p := range q.PlatformTypes {
		if !p.Valid() {
			return metadata.ErrValidation.New("unknown platform type %q", p)
		}
	}
	if err := validateRange(q.SequenceNumbers); err != nil {
		return err
	}
	if err := validateRange(q.CaptureDates); err != nil {
		return err
	}
	if err := validateRange(q.AltitudeMeters); err != nil {
		return err
	}
	if err := validateRange(q.GSDCmPx); err != nil {
		return err
	}
	if q.BoundingBox != nil {
		return q.BoundingBox.Validate()
	}
	return nil
}

func validateRange[T Bound](r *Range[T]) error {
	if r == nil {
		return nil
	}
	return r.Validate()
}

// Filter returns the filter the query holds for field f.
func (q Query) Filter(f Field) Filter {
	switch f {
	case FieldPlatformType:
		if len(q.PlatformTypes) == 0 {
			return Unset{}
		}
		values := make([]string, len(q.PlatformTypes))
		for i, p := range q.PlatformTypes {
			values[i] = string(p)
		}
		return OneOf{Values: values}
	case FieldName:
		return contains(q.Name)
	case FieldNotes:
		return contains(q.Notes)
	case FieldCamera:
		return contains(q.Camera)
	case FieldSession:
		return contains(q.Session)
	case FieldLocationDescription:
		return contains(q.LocationDescription)
	case FieldSequenceNumber:
		return rangeFilter(q.SequenceNumbers)
	case FieldCaptureDate:
		return rangeFilter(q.CaptureDates)
	case FieldAltitudeMeters:
		return rangeFilter(q.AltitudeMeters)
	case FieldGSDCmPx:
		return rangeFilter(q.GSDCmPx)
	case FieldBoundingBox:
		if q.BoundingBox == nil {
			return Unset{}
		}
		return Box{BoundingBox: *q.BoundingBox}
	}
	panic(fmt.Sprintf("query: unmapped field %v", f))
}

// ReferencesRaster reports whether any raster-level field is constrained.
func (q Query) ReferencesRaster() bool {
	for _, f := range Fields {
		if !f.RasterLevel() {
			continue
		}
		if _, unset := q.Filter(f).(Unset); !unset {
			return true
		}
	}
	return false
}

func contains(s string) Filter {
	if s == "" {
		return Unset{}
	}
	return Contains{Substring: s}
}

func rangeFilter[T Bound](r *Range[T]) Filter {
	if r == nil {
		return Unset{}
	}
	return r.bounds()
}

// BoundingBox is a latitude/longitude rectangle. It is not a geodesic box: a
// south-west longitude greater than the north-east longitude does not wrap
// around the antimeridian and matches nothing.
type BoundingBox struct {
	SouthWest metadata.GeoPoint `json:"south_west"`
	NorthEast metadata.GeoPoint `json:"north_east"`
}

// NewBoundingBox creates a validated bounding box.
func NewBoundingBox(southWest, northEast metadata.GeoPoint) (*BoundingBox, error) {
	b := &BoundingBox{SouthWest: southWest, NorthEast: northEast}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks both corners.
func (b BoundingBox) Validate() error {
	if err := b.SouthWest.Validate(); err != nil {
		return err
	}
	return b.NorthEast.Validate()
}

// Latitude returns the independent latitude constraint of the box.
func (b BoundingBox) Latitude() Bounds {
	return Bounds{Min: b.SouthWest.LatitudeDeg, Max: b.NorthEast.LatitudeDeg}
}

// Longitude returns the independent longitude constraint of the box.
func (b BoundingBox) Longitude() Bounds {
	return Bounds{Min: b.SouthWest.LongitudeDeg, Max: b.NorthEast.LongitudeDeg}
}

// OrderField is a field results can be sorted by.
type OrderField int

const (
	OrderName OrderField = iota
	OrderSession
	OrderSequenceNumber
	OrderCaptureDate
	OrderCamera
)

// Field returns the query field the ordering sorts on.
func (o OrderField) Field() Field {
	switch o {
	case OrderName:
		return FieldName
	case OrderSession:
		return FieldSession
	case OrderSequenceNumber:
		return FieldSequenceNumber
	case OrderCaptureDate:
		return FieldCaptureDate
	case OrderCamera:
		return FieldCamera
	}
	panic(fmt.Sprintf("query: unmapped order field %d", int(o)))
}

// ParseOrderField accepts the names used on the command line.
func ParseOrderField(s string) (OrderField, error) {
	switch s {
	case "name":
		return OrderName, nil
	case "session":
		return OrderSession, nil
	case "sequence_num", "sequence_number":
		return OrderSequenceNumber, nil
	case "capture_date":
		return OrderCaptureDate, nil
	case "camera":
		return OrderCamera, nil
	}
	return 0, metadata.ErrValidation.New("unknown order field %q", s)
}

// Ordering is one sort key. A list of orderings sorts primary key first.
type Ordering struct {
	Field     OrderField
	Ascending bool
}

// Asc sorts by f ascending.
func Asc(f OrderField) Ordering { return Ordering{Field: f, Ascending: true} }

// Desc sorts by f descending.
func Desc(f OrderField) Ordering { return Ordering{Field: f} }
