package metadata

import (
	"math"
	"time"
)

// Validate checks field bounds and that the extensions form a legal type.
func (m *Metadata) Validate() error {
	if m == nil {
		return ErrValidation.New("metadata is required")
	}
	if m.PlatformType != "" && !m.PlatformType.Valid() {
		return ErrValidation.New("unknown platform type %q", m.PlatformType)
	}
	if m.Size != nil && *m.Size < 0 {
		return ErrValidation.New("size %d is negative", *m.Size)
	}
	if m.Location != nil {
		if err := m.Location.Validate(); err != nil {
			return err
		}
	}
	if m.Image != nil && m.Video != nil {
		return ErrValidation.New("record cannot be both image and video")
	}
	if m.Image != nil && m.Image.Format != "" && !m.Image.Format.Valid() {
		return ErrValidation.New("unknown image format %q", m.Image.Format)
	}
	if m.Video != nil {
		if m.Video.Format != "" && !m.Video.Format.Valid() {
			return ErrValidation.New("unknown video format %q", m.Video.Format)
		}
		if m.Video.FrameRate != nil && (*m.Video.FrameRate < 0 || math.IsNaN(*m.Video.FrameRate)) {
			return ErrValidation.New("frame rate %v is negative", *m.Video.FrameRate)
		}
		if m.Video.NumFrames != nil && *m.Video.NumFrames < 0 {
			return ErrValidation.New("frame count %d is negative", *m.Video.NumFrames)
		}
	}
	if m.UAV != nil {
		for _, v := range []*float64{m.UAV.AltitudeMeters, m.UAV.GSDCmPx} {
			if v != nil && math.IsNaN(*v) {
				return ErrValidation.New("uav figures must be numbers")
			}
		}
		if m.Image == nil && m.Video == nil {
			return ErrValidation.New("uav fields require an image or video record")
		}
		if m.PlatformType == PlatformGround {
			return ErrValidation.New("uav records must use the aerial platform")
		}
	}
	return nil
}

// Normalize fills defaults and canonicalizes values in place: the platform
// defaults to ground (aerial for UAV records), image and video records always
// carry a raster extension, and the capture date is stored as UTC seconds.
func (m *Metadata) Normalize() {
	if m.PlatformType == "" {
		m.PlatformType = PlatformGround
	}
	if m.UAV != nil {
		m.PlatformType = PlatformAerial
	}
	if (m.Image != nil || m.Video != nil) && m.Raster == nil {
		m.Raster = &RasterExt{}
	}
	if m.CaptureDate != nil {
		t := NormalizeTime(*m.CaptureDate)
		m.CaptureDate = &t
	}
}

// NormalizeTime truncates t to whole seconds in UTC.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Clone returns a deep copy of m.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	out.Size = clonePtr(m.Size)
	out.Name = clonePtr(m.Name)
	out.Notes = clonePtr(m.Notes)
	out.SessionName = clonePtr(m.SessionName)
	out.SequenceNumber = clonePtr(m.SequenceNumber)
	out.CaptureDate = clonePtr(m.CaptureDate)
	out.Location = clonePtr(m.Location)
	out.LocationDescription = clonePtr(m.LocationDescription)
	if m.Raster != nil {
		out.Raster = &RasterExt{Camera: clonePtr(m.Raster.Camera)}
	}
	if m.Image != nil {
		img := *m.Image
		out.Image = &img
	}
	if m.Video != nil {
		out.Video = &VideoExt{
			Format:    m.Video.Format,
			FrameRate: clonePtr(m.Video.FrameRate),
			NumFrames: clonePtr(m.Video.NumFrames),
		}
	}
	if m.UAV != nil {
		out.UAV = &UAVExt{
			AltitudeMeters: clonePtr(m.UAV.AltitudeMeters),
			GSDCmPx:        clonePtr(m.UAV.GSDCmPx),
		}
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
