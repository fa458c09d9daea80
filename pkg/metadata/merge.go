package metadata

// Merge returns existing updated with every field incoming sets to a
// non-default value. Unset fields, and the platform type left at its ground
// default, keep the existing value. An incoming image extension replaces an
// existing video extension and vice versa.
func Merge(existing, incoming *Metadata) *Metadata {
	out := existing.Clone()
	in := incoming.Clone()

	setIf(&out.Size, in.Size)
	setIf(&out.Name, in.Name)
	setIf(&out.Notes, in.Notes)
	setIf(&out.SessionName, in.SessionName)
	setIf(&out.SequenceNumber, in.SequenceNumber)
	setIf(&out.CaptureDate, in.CaptureDate)
	setIf(&out.Location, in.Location)
	setIf(&out.LocationDescription, in.LocationDescription)
	if in.PlatformType != "" && in.PlatformType != PlatformGround {
		out.PlatformType = in.PlatformType
	}

	if in.Raster != nil {
		if out.Raster == nil {
			out.Raster = &RasterExt{}
		}
		setIf(&out.Raster.Camera, in.Raster.Camera)
	}

	if in.Image != nil {
		out.Video = nil
		if out.Image == nil {
			out.Image = &ImageExt{}
		}
		if in.Image.Format != "" {
			out.Image.Format = in.Image.Format
		}
	}

	if in.Video != nil {
		out.Image = nil
		if out.Video == nil {
			out.Video = &VideoExt{}
		}
		if in.Video.Format != "" {
			out.Video.Format = in.Video.Format
		}
		setIf(&out.Video.FrameRate, in.Video.FrameRate)
		setIf(&out.Video.NumFrames, in.Video.NumFrames)
	}

	if in.UAV != nil {
		if out.UAV == nil {
			out.UAV = &UAVExt{}
		}
		setIf(&out.UAV.AltitudeMeters, in.UAV.AltitudeMeters)
		setIf(&out.UAV.GSDCmPx, in.UAV.GSDCmPx)
	}

	out.Normalize()
	return out
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
