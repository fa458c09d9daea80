// ABOUTME: Conformance tests every metadata store backend must pass
// ABOUTME: Round-trips, merge updates, idempotent deletes, unions, ordering and pagination

// Package storetest holds the behaviour shared by all store.Store
// implementations, run from each backend's own tests.
package storetest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
	"github.com/nainya/assetcatalog/pkg/store"
)

// Capabilities describes where a backend legitimately differs.
type Capabilities struct {
	// GlobalPagination is set when skip and limit apply to the combined
	// result of several queries rather than to each query.
	GlobalPagination bool
}

// Opener returns a fresh, empty store. It is called once per subtest.
type Opener func(t *testing.T) store.Store

// Run executes the conformance suite against the stores open returns.
func Run(t *testing.T, open Opener, caps Capabilities) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"RoundTrip", testRoundTrip},
		{"AddExisting", testAddExisting},
		{"OverwriteChangesType", testOverwriteChangesType},
		{"GetMissing", testGetMissing},
		{"MergeUpdate", testMergeUpdate},
		{"ReplaceUpdate", testReplaceUpdate},
		{"IdempotentDelete", testIdempotentDelete},
		{"ConcurrentAdds", testConcurrentAdds},
		{"UnionDeduplicates", testUnionDeduplicates},
		{"BoundingBox", testBoundingBox},
		{"SequenceOrdering", testSequenceOrdering},
		{"MultiKeyOrdering", testMultiKeyOrdering},
		{"UnsetSortsLast", testUnsetSortsLast},
		{"RangeFilters", testRangeFilters},
		{"StringFilters", testStringFilters},
		{"TypedResults", testTypedResults},
		{"Window", testWindow},
		{"InvalidQuery", testInvalidQuery},
	}
	if caps.GlobalPagination {
		tests = append(tests, struct {
			name string
			fn   func(t *testing.T, s store.Store)
		}{"PaginationStability", testPaginationStability})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer func() { require.NoError(t, s.Close()) }()
			tt.fn(t, s)
		})
	}
}

func ref(bucket, name string) metadata.ObjectRef {
	return metadata.ObjectRef{Bucket: bucket, Name: name}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 30, 15, 0, time.UTC)
}

func add(t *testing.T, s store.Store, r metadata.ObjectRef, m *metadata.Metadata) {
	t.Helper()
	require.NoError(t, s.Add(context.Background(), r, m, false))
}

func run(t *testing.T, s store.Store, queries []query.Query, opts store.Options) []metadata.TypedObjectRef {
	t.Helper()
	it, err := s.Query(context.Background(), queries, opts)
	require.NoError(t, err)
	refs, err := store.Collect(it)
	require.NoError(t, err)
	return refs
}

func names(refs []metadata.TypedObjectRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return out
}

func sorted(refs []metadata.TypedObjectRef) []string {
	out := names(refs)
	sort.Strings(out)
	return out
}

func fullArtifact() *metadata.Metadata {
	m := metadata.NewArtifact()
	m.Size = metadata.Ptr(int64(1 << 40))
	m.Name = metadata.Ptr("survey export")
	m.Notes = metadata.Ptr("zipped, 100% complete_")
	m.SessionName = metadata.Ptr("s-1")
	m.SequenceNumber = metadata.Ptr(int64(-7))
	m.CaptureDate = metadata.Ptr(date(1969, 7, 20))
	m.Location = &metadata.GeoPoint{LatitudeDeg: -33.8688, LongitudeDeg: 151.2093}
	m.LocationDescription = metadata.Ptr("Sydney")
	return m
}

func fullImage() *metadata.Metadata {
	m := metadata.NewImage(metadata.ImageTIFF)
	m.Size = metadata.Ptr(int64(2048))
	m.Name = metadata.Ptr("plot 4 north")
	m.Notes = metadata.Ptr("wet leaves")
	m.SessionName = metadata.Ptr("field-day")
	m.SequenceNumber = metadata.Ptr(int64(12))
	m.CaptureDate = metadata.Ptr(date(2021, 6, 1))
	m.Location = &metadata.GeoPoint{LatitudeDeg: 40.1, LongitudeDeg: -88.2}
	m.LocationDescription = metadata.Ptr("plot 4")
	m.Raster.Camera = metadata.Ptr("sony a7")
	return m
}

func fullVideo() *metadata.Metadata {
	m := metadata.NewVideo(metadata.VideoAV1)
	m.Name = metadata.Ptr("flyover")
	m.SessionName = metadata.Ptr("field-day")
	m.SequenceNumber = metadata.Ptr(int64(0))
	m.Raster.Camera = metadata.Ptr("gopro")
	m.Video.FrameRate = metadata.Ptr(29.97)
	m.Video.NumFrames = metadata.Ptr(int64(17982))
	return m
}

func testRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	cases := map[string]*metadata.Metadata{
		"empty-artifact": metadata.NewArtifact(),
		"artifact":       fullArtifact(),
		"raster":         metadata.NewRaster(),
		"raster-camera": func() *metadata.Metadata {
			m := metadata.NewRaster()
			m.Raster.Camera = metadata.Ptr("canon")
			m.PlatformType = metadata.PlatformAerial
			return m
		}(),
		"image":     fullImage(),
		"video":     fullVideo(),
		"uav-image": fullImage().WithUAV(metadata.Ptr(120.5), metadata.Ptr(1.25)),
		"uav-video": fullVideo().WithUAV(nil, metadata.Ptr(0.8)),
		"uav-empty": metadata.NewImage(metadata.ImagePNG).WithUAV(nil, nil),
	}

	for name, m := range cases {
		r := ref("roundtrip", name)
		require.NoError(t, s.Add(ctx, r, m, false), name)

		got, err := s.Get(ctx, r)
		require.NoError(t, err, name)

		want, err := store.PrepareWrite(r, m)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: round trip mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func testAddExisting(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := ref("b", "dup")
	add(t, s, r, fullArtifact())

	err := s.Add(ctx, r, metadata.NewArtifact(), false)
	require.Error(t, err)
	assert.True(t, store.ErrOperation.Has(err))
	assert.True(t, store.ErrAlreadyExists.Has(err))

	got, err := s.Get(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "survey export", *got.Name)

	replacement := metadata.NewArtifact()
	replacement.Notes = metadata.Ptr("replaced")
	require.NoError(t, s.Add(ctx, r, replacement, true))

	got, err = s.Get(ctx, r)
	require.NoError(t, err)
	assert.Nil(t, got.Name)
	assert.Equal(t, "replaced", *got.Notes)

	err = s.Add(ctx, ref("", "x"), metadata.NewArtifact(), false)
	assert.True(t, metadata.ErrValidation.Has(err))
}

func testOverwriteChangesType(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := ref("b", "morph")
	add(t, s, r, fullImage().WithUAV(metadata.Ptr(10.0), nil))

	require.NoError(t, s.Add(ctx, r, fullVideo(), true))
	got, err := s.Get(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, metadata.TypeVideo, got.Type())
	assert.Nil(t, got.Image)
	assert.Nil(t, got.UAV)

	require.NoError(t, s.Add(ctx, r, fullArtifact(), true))
	got, err = s.Get(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, metadata.TypeArtifact, got.Type())
	assert.Nil(t, got.Raster)

	refs := run(t, s, []query.Query{{Camera: "gopro"}}, store.Options{})
	assert.Empty(t, refs)
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), ref("b", "nothing"))
	require.Error(t, err)
	assert.True(t, store.ErrNotFound.Has(err))
	assert.False(t, store.ErrOperation.Has(err))
}

func testMergeUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := ref("b", "merge")
	existing := fullImage()
	add(t, s, r, existing)

	update := metadata.NewImage(metadata.ImageJPEG)
	update.Size = metadata.Ptr(int64(4096))
	update.PlatformType = metadata.PlatformAerial
	update.Notes = metadata.Ptr("dry leaves")
	update.SessionName = metadata.Ptr("field-night")
	update.SequenceNumber = metadata.Ptr(int64(13))
	update.CaptureDate = metadata.Ptr(date(2021, 6, 2))
	update.Location = &metadata.GeoPoint{LatitudeDeg: 40.2, LongitudeDeg: -88.3}
	update.LocationDescription = metadata.Ptr("plot 5")
	require.NoError(t, s.Update(ctx, r, update, true))

	got, err := s.Get(ctx, r)
	require.NoError(t, err)

	want, err := store.PrepareWrite(r, update)
	require.NoError(t, err)
	want.Name = existing.Name
	want.Raster.Camera = existing.Raster.Camera
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged record mismatch (-want +got):\n%s", diff)
	}

	err = s.Update(ctx, ref("b", "absent"), update, true)
	assert.True(t, store.ErrNotFound.Has(err))
}

func testReplaceUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := ref("b", "replace")
	add(t, s, r, fullImage())

	replacement := metadata.NewArtifact()
	replacement.Notes = metadata.Ptr("just notes")
	require.NoError(t, s.Update(ctx, r, replacement, false))

	got, err := s.Get(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, metadata.TypeArtifact, got.Type())
	assert.Nil(t, got.Name)
	assert.Equal(t, "just notes", *got.Notes)
}

func testIdempotentDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, ref("b", "never-existed")))

	r := ref("b", "doomed")
	add(t, s, r, fullVideo())

	var group errgroup.Group
	for i := 0; i < 2; i++ {
		group.Go(func() error { return s.Delete(ctx, r) })
	}
	require.NoError(t, group.Wait())

	_, err := s.Get(ctx, r)
	assert.True(t, store.ErrNotFound.Has(err))
	assert.Empty(t, run(t, s, []query.Query{{Name: "flyover"}}, store.Options{}))

	add(t, s, r, fullVideo())
}

func testConcurrentAdds(t *testing.T, s store.Store) {
	ctx := context.Background()
	var group errgroup.Group
	for i := 0; i < 16; i++ {
		group.Go(func() error {
			m := fullImage()
			m.SequenceNumber = metadata.Ptr(int64(i))
			return s.Add(ctx, ref("concurrent", fmt.Sprintf("img-%02d", i)), m, false)
		})
	}
	require.NoError(t, group.Wait())

	refs := run(t, s, nil, store.Options{})
	assert.Len(t, refs, 16)
}

// unionFixture stores three records named "first artifact", "second
// artifact" and "first artifact" in sessions a, a and b.
func unionFixture(t *testing.T, s store.Store) {
	for i, rec := range []struct{ name, session string }{
		{"first artifact", "a"},
		{"second artifact", "a"},
		{"first artifact", "b"},
	} {
		m := metadata.NewArtifact()
		m.Name = metadata.Ptr(rec.name)
		m.SessionName = metadata.Ptr(rec.session)
		m.SequenceNumber = metadata.Ptr(int64(i))
		add(t, s, ref("union", fmt.Sprintf("obj-%d", i)), m)
	}
}

func testUnionDeduplicates(t *testing.T, s store.Store) {
	unionFixture(t, s)
	q1 := query.Query{Name: "first"}
	q2 := query.Query{Name: "second"}
	all := []string{"obj-0", "obj-1", "obj-2"}

	refs := run(t, s, []query.Query{q1, q2}, store.Options{})
	assert.Equal(t, all, sorted(refs))

	refs = run(t, s, []query.Query{q2, q1}, store.Options{})
	assert.Equal(t, all, sorted(refs))

	refs = run(t, s, []query.Query{q1, q1, {Session: "b"}}, store.Options{})
	assert.Equal(t, []string{"obj-0", "obj-2"}, sorted(refs))

	refs = run(t, s, []query.Query{{Name: "first", Session: "a"}}, store.Options{})
	assert.Equal(t, []string{"obj-0"}, names(refs))
}

func testBoundingBox(t *testing.T, s store.Store) {
	for name, p := range map[string]metadata.GeoPoint{
		"inside":  {LatitudeDeg: 15, LongitudeDeg: 15},
		"outside": {LatitudeDeg: 25, LongitudeDeg: 25},
		"below":   {LatitudeDeg: 5, LongitudeDeg: 5},
		"edge":    {LatitudeDeg: 20, LongitudeDeg: 10},
		"lat-ok":  {LatitudeDeg: 15, LongitudeDeg: 30},
		"negzero": {LatitudeDeg: 5, LongitudeDeg: math.Copysign(0, -1)},
	} {
		m := metadata.NewArtifact()
		m.Location = &p
		add(t, s, ref("geo", name), m)
	}
	add(t, s, ref("geo", "nowhere"), metadata.NewArtifact())

	box, err := query.NewBoundingBox(
		metadata.GeoPoint{LatitudeDeg: 10, LongitudeDeg: 10},
		metadata.GeoPoint{LatitudeDeg: 20, LongitudeDeg: 20},
	)
	require.NoError(t, err)

	refs := run(t, s, []query.Query{{BoundingBox: box}}, store.Options{})
	assert.Equal(t, []string{"edge", "inside"}, sorted(refs))

	box, err = query.NewBoundingBox(
		metadata.GeoPoint{LatitudeDeg: 0, LongitudeDeg: 0},
		metadata.GeoPoint{LatitudeDeg: 10, LongitudeDeg: 10},
	)
	require.NoError(t, err)
	refs = run(t, s, []query.Query{{BoundingBox: box}}, store.Options{})
	assert.Equal(t, []string{"below", "negzero"}, sorted(refs), "negative zero equals the zero bound")
}

func testSequenceOrdering(t *testing.T, s store.Store) {
	for _, seq := range []int64{1, 0} {
		m := metadata.NewArtifact()
		m.SessionName = metadata.Ptr("a")
		m.SequenceNumber = metadata.Ptr(seq)
		add(t, s, ref("seq", fmt.Sprintf("frame-%d", seq)), m)
	}
	other := metadata.NewArtifact()
	other.SessionName = metadata.Ptr("b")
	other.SequenceNumber = metadata.Ptr(int64(-1))
	add(t, s, ref("seq", "elsewhere"), other)

	q := []query.Query{{Session: "a"}}
	refs := run(t, s, q, store.Options{Orderings: []query.Ordering{query.Asc(query.OrderSequenceNumber)}})
	assert.Equal(t, []string{"frame-0", "frame-1"}, names(refs))

	refs = run(t, s, q, store.Options{Orderings: []query.Ordering{query.Desc(query.OrderSequenceNumber)}})
	assert.Equal(t, []string{"frame-1", "frame-0"}, names(refs))
}

func testMultiKeyOrdering(t *testing.T, s store.Store) {
	for i, rec := range []struct {
		session string
		seq     int64
		camera  string
	}{
		{"b", 1, "x"},
		{"a", 1, "y"},
		{"b", 2, "x"},
		{"a", 3, "x"},
	} {
		m := metadata.NewImage(metadata.ImagePNG)
		m.SessionName = metadata.Ptr(rec.session)
		m.SequenceNumber = metadata.Ptr(rec.seq)
		m.Raster.Camera = metadata.Ptr(rec.camera)
		add(t, s, ref("multi", fmt.Sprintf("r%d", i)), m)
	}

	refs := run(t, s, nil, store.Options{Orderings: []query.Ordering{
		query.Asc(query.OrderSession),
		query.Desc(query.OrderSequenceNumber),
	}})
	assert.Equal(t, []string{"r3", "r1", "r2", "r0"}, names(refs))

	refs = run(t, s, nil, store.Options{Orderings: []query.Ordering{
		query.Desc(query.OrderCamera),
		query.Asc(query.OrderSequenceNumber),
	}})
	assert.Equal(t, []string{"r1", "r0", "r2", "r3"}, names(refs))
}

func testUnsetSortsLast(t *testing.T, s store.Store) {
	named := metadata.NewArtifact()
	named.Name = metadata.Ptr("zeta")
	named.CaptureDate = metadata.Ptr(date(2020, 1, 1))
	add(t, s, ref("nulls", "named"), named)
	add(t, s, ref("nulls", "bare"), metadata.NewArtifact())

	for _, o := range []query.Ordering{
		query.Asc(query.OrderName),
		query.Desc(query.OrderName),
		query.Asc(query.OrderCaptureDate),
		query.Desc(query.OrderCaptureDate),
	} {
		refs := run(t, s, nil, store.Options{Orderings: []query.Ordering{o}})
		assert.Equal(t, []string{"named", "bare"}, names(refs), "ordering %+v", o)
	}
}

func testRangeFilters(t *testing.T, s store.Store) {
	for i := 0; i < 5; i++ {
		m := metadata.NewImage(metadata.ImageJPEG).WithUAV(metadata.Ptr(float64(i*50)), metadata.Ptr(float64(i)*0.5))
		m.SequenceNumber = metadata.Ptr(int64(i - 2))
		m.CaptureDate = metadata.Ptr(date(2020, time.January, 1+i))
		add(t, s, ref("range", fmt.Sprintf("uav-%d", i)), m)
	}
	ground := metadata.NewImage(metadata.ImageJPEG)
	ground.SequenceNumber = metadata.Ptr(int64(100))
	add(t, s, ref("range", "ground"), ground)

	seq, err := query.Between[int64](-1, 1)
	require.NoError(t, err)
	refs := run(t, s, []query.Query{{SequenceNumbers: seq}}, store.Options{})
	assert.Equal(t, []string{"uav-1", "uav-2", "uav-3"}, sorted(refs))

	refs = run(t, s, []query.Query{{SequenceNumbers: query.AtLeast[int64](2)}}, store.Options{})
	assert.Equal(t, []string{"ground", "uav-4"}, sorted(refs))

	refs = run(t, s, []query.Query{{CaptureDates: query.AtMost(date(2020, time.January, 2))}}, store.Options{})
	assert.Equal(t, []string{"uav-0", "uav-1"}, sorted(refs))

	refs = run(t, s, []query.Query{{AltitudeMeters: query.AtLeast(100.0)}}, store.Options{})
	assert.Equal(t, []string{"uav-2", "uav-3", "uav-4"}, sorted(refs))

	gsd, err := query.Between(0.4, 1.0)
	require.NoError(t, err)
	refs = run(t, s, []query.Query{{GSDCmPx: gsd}}, store.Options{})
	assert.Equal(t, []string{"uav-1", "uav-2"}, sorted(refs))

	refs = run(t, s, []query.Query{{PlatformTypes: []metadata.PlatformType{metadata.PlatformGround}}}, store.Options{})
	assert.Equal(t, []string{"ground"}, sorted(refs))

	refs = run(t, s, []query.Query{{PlatformTypes: []metadata.PlatformType{metadata.PlatformGround, metadata.PlatformAerial}}}, store.Options{})
	assert.Len(t, refs, 6)
}

func testStringFilters(t *testing.T, s store.Store) {
	add(t, s, ref("str", "artifact"), fullArtifact())
	add(t, s, ref("str", "image"), fullImage())
	add(t, s, ref("str", "video"), fullVideo())

	for _, tc := range []struct {
		q    query.Query
		want []string
	}{
		{query.Query{Name: "plot"}, []string{"image"}},
		{query.Query{Notes: "100%"}, []string{"artifact"}},
		{query.Query{Notes: "complete_"}, []string{"artifact"}},
		{query.Query{Notes: "e_"}, []string{"artifact"}},
		{query.Query{Notes: "%"}, []string{"artifact"}},
		{query.Query{Camera: "o"}, []string{"image", "video"}},
		{query.Query{Camera: "gopro", Session: "field"}, []string{"video"}},
		{query.Query{Session: "field-day"}, []string{"image", "video"}},
		{query.Query{LocationDescription: "Sydney"}, []string{"artifact"}},
		{query.Query{Name: "nothing like it"}, nil},
	} {
		refs := run(t, s, []query.Query{tc.q}, store.Options{})
		if tc.want == nil {
			assert.Empty(t, refs, "%+v", tc.q)
			continue
		}
		assert.Equal(t, tc.want, sorted(refs), "%+v", tc.q)
	}
}

func testTypedResults(t *testing.T, s store.Store) {
	add(t, s, ref("typed", "a"), fullArtifact())
	add(t, s, ref("typed", "r"), metadata.NewRaster())
	add(t, s, ref("typed", "i"), fullImage())
	add(t, s, ref("typed", "v"), fullVideo())

	got := map[string]metadata.ObjectType{}
	for _, r := range run(t, s, nil, store.Options{}) {
		assert.Equal(t, "typed", r.Bucket)
		got[r.Name] = r.Type
	}
	assert.Equal(t, map[string]metadata.ObjectType{
		"a": metadata.TypeArtifact,
		"r": metadata.TypeRaster,
		"i": metadata.TypeImage,
		"v": metadata.TypeVideo,
	}, got)
}

func testWindow(t *testing.T, s store.Store) {
	for i := 0; i < 12; i++ {
		m := metadata.NewArtifact()
		m.SequenceNumber = metadata.Ptr(int64(i))
		add(t, s, ref("window", fmt.Sprintf("n%02d", i)), m)
	}
	order := []query.Ordering{query.Asc(query.OrderSequenceNumber)}

	refs := run(t, s, nil, store.Options{Orderings: order, MaxResults: 5})
	assert.Equal(t, []string{"n00", "n01", "n02", "n03", "n04"}, names(refs))

	refs = run(t, s, nil, store.Options{Orderings: order, SkipFirst: 10})
	assert.Equal(t, []string{"n10", "n11"}, names(refs))

	refs = run(t, s, nil, store.Options{Orderings: order, SkipFirst: 20})
	assert.Empty(t, refs)

	it, err := s.Query(context.Background(), nil, store.Options{Orderings: order})
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, "n00", it.Ref().Name)
	require.NoError(t, it.Close())
	assert.False(t, it.Next())
}

func testInvalidQuery(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Query(ctx, []query.Query{{GSDCmPx: &query.Range[float64]{}}}, store.Options{})
	assert.True(t, metadata.ErrValidation.Has(err))

	_, err = s.Query(ctx, nil, store.Options{MaxResults: -1})
	assert.True(t, metadata.ErrValidation.Has(err))
}

func testPaginationStability(t *testing.T, s store.Store) {
	for i := 0; i < 11; i++ {
		m := metadata.NewArtifact()
		m.SessionName = metadata.Ptr(fmt.Sprintf("s%d", i%3))
		m.Name = metadata.Ptr(fmt.Sprintf("item %d", i))
		add(t, s, ref("page", fmt.Sprintf("p%02d", i)), m)
	}
	queries := []query.Query{{Session: "s0"}, {Session: "s1"}, {Name: "item 1"}}
	opts := store.Options{Orderings: []query.Ordering{query.Desc(query.OrderSession)}}

	full := run(t, s, queries, opts)
	require.Len(t, full, 8)

	var paged []metadata.TypedObjectRef
	for skip := 0; ; skip += 3 {
		opts.SkipFirst, opts.MaxResults = skip, 3
		page := run(t, s, queries, opts)
		paged = append(paged, page...)
		if len(page) < 3 {
			break
		}
	}
	assert.Equal(t, full, paged)
}
