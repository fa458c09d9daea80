package avustore

import (
	"github.com/nainya/assetcatalog/pkg/avu"
	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
)

// Attribute names. Nested fields are joined with underscores.
const (
	AttrSize                = "size"
	AttrName                = "name"
	AttrPlatformType        = "platform_type"
	AttrNotes               = "notes"
	AttrSessionName         = "session_name"
	AttrSequenceNumber      = "sequence_number"
	AttrCaptureDate         = "capture_date"
	AttrLatitude            = "location_latitude_deg"
	AttrLongitude           = "location_longitude_deg"
	AttrLocationDescription = "location_description"
	AttrCamera              = "camera"
	AttrFormat              = "format"
	AttrFrameRate           = "frame_rate"
	AttrNumFrames           = "num_frames"
	AttrAltitudeMeters      = "altitude_meters"
	AttrGSDCmPx             = "gsd_cm_px"

	// AttrJSON holds the canonical serialization of the whole record.
	AttrJSON = "json"
	// AttrObjectType holds the record's object type.
	AttrObjectType = "object_type"
)

// attribute maps a scalar query field to the attribute it filters.
func attribute(f query.Field) string {
	switch f {
	case query.FieldPlatformType:
		return AttrPlatformType
	case query.FieldName:
		return AttrName
	case query.FieldNotes:
		return AttrNotes
	case query.FieldCamera:
		return AttrCamera
	case query.FieldSession:
		return AttrSessionName
	case query.FieldSequenceNumber:
		return AttrSequenceNumber
	case query.FieldCaptureDate:
		return AttrCaptureDate
	case query.FieldLocationDescription:
		return AttrLocationDescription
	case query.FieldAltitudeMeters:
		return AttrAltitudeMeters
	case query.FieldGSDCmPx:
		return AttrGSDCmPx
	}
	panic("avustore: no attribute for query field " + f.String())
}

type flattener struct {
	avus []avu.AVU
	err  error
}

func (fl *flattener) add(attr, units string, v any) {
	if fl.err != nil {
		return
	}
	enc, err := Encode(v)
	if err != nil {
		fl.err = err
		return
	}
	fl.avus = append(fl.avus, avu.AVU{Attribute: attr, Value: enc, Units: units})
}

// deref turns a typed nil pointer into an untyped nil for Encode.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// flatten renders every field of m's type as an attribute, with unset fields
// stored as nulls, followed by the object type and the canonical record.
func flatten(m *metadata.Metadata) ([]avu.AVU, error) {
	var fl flattener
	fl.add(AttrSize, "bytes", deref(m.Size))
	fl.add(AttrName, "", deref(m.Name))
	fl.add(AttrPlatformType, "", string(m.PlatformType))
	fl.add(AttrNotes, "", deref(m.Notes))
	fl.add(AttrSessionName, "", deref(m.SessionName))
	fl.add(AttrSequenceNumber, "", deref(m.SequenceNumber))
	fl.add(AttrCaptureDate, "", deref(m.CaptureDate))
	if m.Location != nil {
		fl.add(AttrLatitude, "deg", m.Location.LatitudeDeg)
		fl.add(AttrLongitude, "deg", m.Location.LongitudeDeg)
	} else {
		fl.add(AttrLatitude, "deg", nil)
		fl.add(AttrLongitude, "deg", nil)
	}
	fl.add(AttrLocationDescription, "", deref(m.LocationDescription))

	if m.Raster != nil {
		fl.add(AttrCamera, "", deref(m.Raster.Camera))
	}
	switch {
	case m.Image != nil:
		fl.add(AttrFormat, "", string(m.Image.Format))
	case m.Video != nil:
		fl.add(AttrFormat, "", string(m.Video.Format))
		fl.add(AttrFrameRate, "fps", deref(m.Video.FrameRate))
		fl.add(AttrNumFrames, "", deref(m.Video.NumFrames))
	}
	if m.UAV != nil {
		fl.add(AttrAltitudeMeters, "m", deref(m.UAV.AltitudeMeters))
		fl.add(AttrGSDCmPx, "cm/px", deref(m.UAV.GSDCmPx))
	}
	fl.add(AttrObjectType, "", string(m.Type()))
	if fl.err != nil {
		return nil, fl.err
	}

	blob, err := metadata.MarshalCanonical(m)
	if err != nil {
		return nil, err
	}
	return append(fl.avus, avu.AVU{Attribute: AttrJSON, Value: string(blob)}), nil
}
