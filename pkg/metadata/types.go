// ABOUTME: Metadata data model for catalogued media artifacts
// ABOUTME: A base record composed with optional raster, image, video and UAV extensions

package metadata

import (
	"math"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

// ErrValidation is returned when a value object is malformed.
var ErrValidation = errs.Class("validation")

// ObjectRef is the immutable identity of a stored artifact.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// String returns "bucket/name".
func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Name
}

// Verify checks that both parts of the reference are usable.
func (r ObjectRef) Verify() error {
	switch {
	case r.Bucket == "":
		return ErrValidation.New("bucket is required")
	case r.Name == "":
		return ErrValidation.New("name is required")
	case strings.Contains(r.Bucket, "/"):
		return ErrValidation.New("bucket %q must not contain '/'", r.Bucket)
	}
	return nil
}

// ObjectType records how far down the specialization hierarchy a record goes.
type ObjectType string

// Object types, widest first.
const (
	TypeArtifact ObjectType = "artifact"
	TypeRaster   ObjectType = "raster"
	TypeImage    ObjectType = "image"
	TypeVideo    ObjectType = "video"
)

// ObjectTypes lists every object type.
var ObjectTypes = []ObjectType{TypeArtifact, TypeRaster, TypeImage, TypeVideo}

// ParseObjectType converts a stored type tag back into an ObjectType.
func ParseObjectType(s string) (ObjectType, error) {
	for _, t := range ObjectTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", ErrValidation.New("unknown object type %q", s)
}

// TypedObjectRef is an ObjectRef tagged with the stored record's type.
type TypedObjectRef struct {
	ObjectRef
	Type ObjectType `json:"type"`
}

// PlatformType is the kind of platform that captured an artifact.
type PlatformType string

// Platform types. Ground is the schema default.
const (
	PlatformGround PlatformType = "ground"
	PlatformAerial PlatformType = "aerial"
)

// Valid reports whether p is a known platform type.
func (p PlatformType) Valid() bool {
	return p == PlatformGround || p == PlatformAerial
}

// ImageFormat is the container format of a still image.
type ImageFormat string

// Supported image formats.
const (
	ImageGIF  ImageFormat = "gif"
	ImageTIFF ImageFormat = "tiff"
	ImageJPEG ImageFormat = "jpeg"
	ImageBMP  ImageFormat = "bmp"
	ImagePNG  ImageFormat = "png"
)

// Valid reports whether f is a known image format.
func (f ImageFormat) Valid() bool {
	switch f {
	case ImageGIF, ImageTIFF, ImageJPEG, ImageBMP, ImagePNG:
		return true
	}
	return false
}

// VideoFormat is the codec of a video stream.
type VideoFormat string

// Supported video codecs.
const (
	VideoH264  VideoFormat = "h264"
	VideoHEVC  VideoFormat = "hevc"
	VideoVP8   VideoFormat = "vp8"
	VideoVP9   VideoFormat = "vp9"
	VideoAV1   VideoFormat = "av1"
	VideoMPEG4 VideoFormat = "mpeg4"
)

// Valid reports whether f is a known video codec.
func (f VideoFormat) Valid() bool {
	switch f {
	case VideoH264, VideoHEVC, VideoVP8, VideoVP9, VideoAV1, VideoMPEG4:
		return true
	}
	return false
}

// GeoPoint is a WGS84 coordinate. A record either has both coordinates or none.
type GeoPoint struct {
	LatitudeDeg  float64 `json:"latitude_deg" msgpack:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg" msgpack:"longitude_deg"`
}

// NewGeoPoint creates a validated GeoPoint.
func NewGeoPoint(lat, lon float64) (GeoPoint, error) {
	p := GeoPoint{LatitudeDeg: lat, LongitudeDeg: lon}
	return p, p.Validate()
}

// Validate checks coordinate bounds. NaN is out of every bound.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.LatitudeDeg) || math.IsNaN(p.LongitudeDeg) {
		return ErrValidation.New("coordinates must be numbers, got (%v, %v)", p.LatitudeDeg, p.LongitudeDeg)
	}
	if p.LatitudeDeg < -90 || p.LatitudeDeg > 90 {
		return ErrValidation.New("latitude %v out of range [-90, 90]", p.LatitudeDeg)
	}
	if p.LongitudeDeg < -180 || p.LongitudeDeg > 180 {
		return ErrValidation.New("longitude %v out of range [-180, 180]", p.LongitudeDeg)
	}
	return nil
}

// Metadata is the record attached to an artifact. All fields except the
// platform type are optional; nil means unset.
type Metadata struct {
	Size                *int64       `json:"size,omitempty" msgpack:"size"`
	Name                *string      `json:"name,omitempty" msgpack:"name"`
	PlatformType        PlatformType `json:"platform_type" msgpack:"platform_type"`
	Notes               *string      `json:"notes,omitempty" msgpack:"notes"`
	SessionName         *string      `json:"session_name,omitempty" msgpack:"session_name"`
	SequenceNumber      *int64       `json:"sequence_number,omitempty" msgpack:"sequence_number"`
	CaptureDate         *time.Time   `json:"capture_date,omitempty" msgpack:"capture_date"`
	Location            *GeoPoint    `json:"location,omitempty" msgpack:"location"`
	LocationDescription *string      `json:"location_description,omitempty" msgpack:"location_description"`

	Raster *RasterExt `json:"raster,omitempty" msgpack:"raster"`
	Image  *ImageExt  `json:"image,omitempty" msgpack:"image"`
	Video  *VideoExt  `json:"video,omitempty" msgpack:"video"`
	UAV    *UAVExt    `json:"uav,omitempty" msgpack:"uav"`
}

// RasterExt holds the fields a 2D pixel grid adds to an artifact.
type RasterExt struct {
	Camera *string `json:"camera,omitempty" msgpack:"camera"`
}

// ImageExt holds still-image fields.
type ImageExt struct {
	Format ImageFormat `json:"format,omitempty" msgpack:"format"`
}

// VideoExt holds video-stream fields.
type VideoExt struct {
	Format    VideoFormat `json:"format,omitempty" msgpack:"format"`
	FrameRate *float64    `json:"frame_rate,omitempty" msgpack:"frame_rate"`
	NumFrames *int64      `json:"num_frames,omitempty" msgpack:"num_frames"`
}

// UAVExt holds fields only aerial image and video captures carry.
type UAVExt struct {
	AltitudeMeters *float64 `json:"altitude_meters,omitempty" msgpack:"altitude_meters"`
	GSDCmPx        *float64 `json:"gsd_cm_px,omitempty" msgpack:"gsd_cm_px"`
}

// NewArtifact returns an empty artifact-only record.
func NewArtifact() *Metadata {
	return &Metadata{PlatformType: PlatformGround}
}

// NewRaster returns an empty raster record.
func NewRaster() *Metadata {
	return &Metadata{PlatformType: PlatformGround, Raster: &RasterExt{}}
}

// NewImage returns an image record in the given format.
func NewImage(format ImageFormat) *Metadata {
	return &Metadata{PlatformType: PlatformGround, Raster: &RasterExt{}, Image: &ImageExt{Format: format}}
}

// NewVideo returns a video record with the given codec.
func NewVideo(format VideoFormat) *Metadata {
	return &Metadata{PlatformType: PlatformGround, Raster: &RasterExt{}, Video: &VideoExt{Format: format}}
}

// WithUAV marks the record as an aerial capture with the given survey figures.
func (m *Metadata) WithUAV(altitudeMeters, gsdCmPx *float64) *Metadata {
	m.UAV = &UAVExt{AltitudeMeters: altitudeMeters, GSDCmPx: gsdCmPx}
	m.PlatformType = PlatformAerial
	return m
}

// Type returns the narrowest object type the record carries.
func (m *Metadata) Type() ObjectType {
	switch {
	case m.Image != nil:
		return TypeImage
	case m.Video != nil:
		return TypeVideo
	case m.Raster != nil:
		return TypeRaster
	default:
		return TypeArtifact
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
