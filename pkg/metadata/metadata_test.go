package metadata

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullImage() *Metadata {
	m := NewImage(ImageJPEG)
	m.Size = Ptr(int64(2048))
	m.Name = Ptr("first artifact")
	m.Notes = Ptr("overcast")
	m.SessionName = Ptr("a")
	m.SequenceNumber = Ptr(int64(3))
	m.CaptureDate = Ptr(time.Date(2021, 6, 1, 12, 30, 0, 0, time.UTC))
	m.Location = &GeoPoint{LatitudeDeg: 15, LongitudeDeg: -15}
	m.LocationDescription = Ptr("field 7")
	m.Raster.Camera = Ptr("nikon")
	return m
}

func TestObjectRefVerify(t *testing.T) {
	assert.NoError(t, ObjectRef{Bucket: "2021-06-01-image", Name: "a.jpg"}.Verify())
	assert.True(t, ErrValidation.Has(ObjectRef{Name: "a.jpg"}.Verify()))
	assert.True(t, ErrValidation.Has(ObjectRef{Bucket: "b"}.Verify()))
	assert.True(t, ErrValidation.Has(ObjectRef{Bucket: "b/c", Name: "a"}.Verify()))
}

func TestGeoPointBounds(t *testing.T) {
	_, err := NewGeoPoint(90, 180)
	require.NoError(t, err)
	_, err = NewGeoPoint(-90, -180)
	require.NoError(t, err)

	_, err = NewGeoPoint(90.5, 0)
	require.True(t, ErrValidation.Has(err))
	_, err = NewGeoPoint(0, -180.1)
	require.True(t, ErrValidation.Has(err))

	_, err = NewGeoPoint(math.NaN(), 0)
	require.True(t, ErrValidation.Has(err))
	_, err = NewGeoPoint(0, math.NaN())
	require.True(t, ErrValidation.Has(err))
}

func TestType(t *testing.T) {
	assert.Equal(t, TypeArtifact, NewArtifact().Type())
	assert.Equal(t, TypeRaster, NewRaster().Type())
	assert.Equal(t, TypeImage, NewImage(ImagePNG).Type())
	assert.Equal(t, TypeVideo, NewVideo(VideoH264).Type())
}

func TestValidate(t *testing.T) {
	require.NoError(t, fullImage().Validate())

	both := NewImage(ImagePNG)
	both.Video = &VideoExt{}
	require.True(t, ErrValidation.Has(both.Validate()))

	uavArtifact := NewArtifact()
	uavArtifact.UAV = &UAVExt{}
	require.True(t, ErrValidation.Has(uavArtifact.Validate()))

	badFormat := NewImage("heic")
	require.True(t, ErrValidation.Has(badFormat.Validate()))

	negative := NewVideo(VideoVP9)
	negative.Video.NumFrames = Ptr(int64(-1))
	require.True(t, ErrValidation.Has(negative.Validate()))

	nanRate := NewVideo(VideoVP9)
	nanRate.Video.FrameRate = Ptr(math.NaN())
	require.True(t, ErrValidation.Has(nanRate.Validate()))

	nanAltitude := NewImage(ImagePNG).WithUAV(Ptr(math.NaN()), nil)
	require.True(t, ErrValidation.Has(nanAltitude.Validate()))
}

func TestNormalize(t *testing.T) {
	m := &Metadata{
		Video:       &VideoExt{Format: VideoAV1},
		CaptureDate: Ptr(time.Date(2020, 1, 1, 10, 0, 0, 999, time.FixedZone("x", 3600))),
	}
	m.WithUAV(Ptr(120.0), nil)
	m.Normalize()

	assert.Equal(t, PlatformAerial, m.PlatformType)
	assert.NotNil(t, m.Raster)
	assert.Equal(t, time.UTC, m.CaptureDate.Location())
	assert.Equal(t, 9, m.CaptureDate.Hour())
	assert.Equal(t, 0, m.CaptureDate.Nanosecond())
}

func TestMergeKeepsUnsetFields(t *testing.T) {
	existing := fullImage()

	update := fullImage()
	update.Name = nil
	update.Raster.Camera = nil
	update.Size = Ptr(int64(4096))
	update.Notes = Ptr("sunny")
	update.SessionName = Ptr("b")
	update.SequenceNumber = Ptr(int64(9))
	update.CaptureDate = Ptr(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
	update.Location = &GeoPoint{LatitudeDeg: 1, LongitudeDeg: 2}
	update.LocationDescription = Ptr("field 8")
	update.Image.Format = ImagePNG

	merged := Merge(existing, update)

	want := update.Clone()
	want.Name = existing.Name
	want.Raster.Camera = existing.Raster.Camera
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("merged record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "first artifact", *existing.Name, "existing record must not be mutated")
}

func TestMergePlatformDefault(t *testing.T) {
	existing := NewImage(ImageJPEG)
	existing.PlatformType = PlatformAerial

	merged := Merge(existing, NewArtifact())
	assert.Equal(t, PlatformAerial, merged.PlatformType)
	assert.Equal(t, TypeImage, merged.Type())
}

func TestMergeSwitchesImageToVideo(t *testing.T) {
	existing := fullImage()
	incoming := NewVideo(VideoH264)
	incoming.Video.FrameRate = Ptr(29.97)

	merged := Merge(existing, incoming)
	assert.Equal(t, TypeVideo, merged.Type())
	assert.Nil(t, merged.Image)
	assert.Equal(t, "nikon", *merged.Raster.Camera)
	assert.Equal(t, 29.97, *merged.Video.FrameRate)
}

func TestCloneIsDeep(t *testing.T) {
	m := fullImage().WithUAV(Ptr(50.0), Ptr(1.5))
	c := m.Clone()
	*c.Name = "changed"
	*c.Raster.Camera = "changed"
	*c.UAV.GSDCmPx = 9

	assert.Equal(t, "first artifact", *m.Name)
	assert.Equal(t, "nikon", *m.Raster.Camera)
	assert.Equal(t, 1.5, *m.UAV.GSDCmPx)
}

func TestCanonicalRoundTrip(t *testing.T) {
	for _, m := range []*Metadata{
		NewArtifact(),
		fullImage(),
		fullImage().WithUAV(Ptr(80.5), Ptr(2.25)),
		NewVideo(VideoHEVC),
	} {
		data, err := MarshalCanonical(m)
		require.NoError(t, err)

		got, err := UnmarshalCanonical(data)
		require.NoError(t, err)
		if diff := cmp.Diff(m, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}
