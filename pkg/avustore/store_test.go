package avustore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/assetcatalog/internal/logger"
	"github.com/nainya/assetcatalog/pkg/avu"
	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
	"github.com/nainya/assetcatalog/pkg/store"
	"github.com/nainya/assetcatalog/pkg/store/storetest"
)

func fastRetry() store.RetryPolicy {
	return store.RetryPolicy{MaxAttempts: 50, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func openCatalog(t *testing.T) *avu.Catalog {
	t.Helper()
	c, err := avu.Open(filepath.Join(t.TempDir(), "catalog.avu"), logger.Nop())
	require.NoError(t, err)
	return c
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:     filepath.Join(t.TempDir(), "catalog.avu"),
		PageSize: 2,
		Retry:    fastRetry(),
	}, logger.Nop())
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestStore(t)
	}, storetest.Capabilities{GlobalPagination: false})
}

func TestPersistedLayout(t *testing.T) {
	ctx := context.Background()
	catalog := openCatalog(t)
	s := New(catalog, Config{RootCollection: "/zone/home/"}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	m := metadata.NewVideo(metadata.VideoH264).WithUAV(metadata.Ptr(120.0), nil)
	m.Location = &metadata.GeoPoint{LatitudeDeg: 1.5, LongitudeDeg: -2}
	m.Video.FrameRate = metadata.Ptr(25.0)
	require.NoError(t, s.Add(ctx, metadata.ObjectRef{Bucket: "b", Name: "dir/clip.mp4"}, m, false))

	avus, err := catalog.GetAVUs(ctx, "/zone/home/b/dir/clip.mp4")
	require.NoError(t, err)
	got := map[string]avu.AVU{}
	for _, a := range avus {
		got[a.Attribute] = a
	}

	assert.Len(t, got, 18)
	assert.Equal(t, "NUL", got[AttrName].Value)
	assert.Equal(t, "NUL", got[AttrCamera].Value)
	assert.Equal(t, "NUL", got[AttrGSDCmPx].Value)
	assert.Equal(t, "STRaerial", got[AttrPlatformType].Value)
	assert.Equal(t, "STRh264", got[AttrFormat].Value)
	assert.Equal(t, "STRvideo", got[AttrObjectType].Value)
	assert.Equal(t, "fps", got[AttrFrameRate].Units)
	assert.Equal(t, "deg", got[AttrLatitude].Units)

	lat, err := Decode(got[AttrLatitude].Value)
	require.NoError(t, err)
	assert.Equal(t, 1.5, lat)
	alt, err := Decode(got[AttrAltitudeMeters].Value)
	require.NoError(t, err)
	assert.Equal(t, 120.0, alt)

	blob, err := metadata.MarshalCanonical(m)
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), got[AttrJSON].Value)

	refs, err := store.Collect(must(s.Query(ctx, nil, store.Options{})))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, metadata.TypedObjectRef{
		ObjectRef: metadata.ObjectRef{Bucket: "b", Name: "dir/clip.mp4"},
		Type:      metadata.TypeVideo,
	}, refs[0])
}

func TestDeleteKeepsObject(t *testing.T) {
	ctx := context.Background()
	catalog := openCatalog(t)
	s := New(catalog, Config{}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	ref := metadata.ObjectRef{Bucket: "b", Name: "n"}
	require.NoError(t, s.Add(ctx, ref, metadata.NewRaster(), false))
	require.NoError(t, s.Delete(ctx, ref))

	exists, err := catalog.ObjectExists(ctx, DefaultRootCollection+"/b/n")
	require.NoError(t, err)
	assert.True(t, exists)
	avus, err := catalog.GetAVUs(ctx, DefaultRootCollection+"/b/n")
	require.NoError(t, err)
	assert.Empty(t, avus)

	_, err = s.Get(ctx, ref)
	assert.True(t, store.ErrNotFound.Has(err))
}

func TestDeleteMissingRecord(t *testing.T) {
	ctx := context.Background()
	catalog := openCatalog(t)
	s := New(catalog, Config{}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	require.NoError(t, s.Delete(ctx, metadata.ObjectRef{Bucket: "b", Name: "never-written"}))
	exists, err := catalog.ObjectExists(ctx, DefaultRootCollection+"/b/never-written")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteRetriesBusyCatalog(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyCatalog{Catalog: openCatalog(t)}
	s := New(flaky, Config{Retry: fastRetry()}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	ref := metadata.ObjectRef{Bucket: "b", Name: "n"}
	require.NoError(t, s.Add(ctx, ref, metadata.NewArtifact(), false))

	flaky.mu.Lock()
	flaky.busy = flaky.writes + 2
	flaky.mu.Unlock()
	require.NoError(t, s.Delete(ctx, ref))
	assert.Equal(t, 4, flaky.writes)

	_, err := s.Get(ctx, ref)
	assert.True(t, store.ErrNotFound.Has(err))
}

// countingCatalog counts the scans issued against it.
type countingCatalog struct {
	Catalog
	selects []avu.GenQuery
}

func (c *countingCatalog) Select(ctx context.Context, q avu.GenQuery) ([]avu.Row, error) {
	c.selects = append(c.selects, q)
	return c.Catalog.Select(ctx, q)
}

func TestQueryScansOncePerStream(t *testing.T) {
	ctx := context.Background()
	counting := &countingCatalog{Catalog: openCatalog(t)}
	s := New(counting, Config{PageSize: 2}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		m := metadata.NewArtifact()
		m.SessionName = metadata.Ptr("scan")
		m.SequenceNumber = metadata.Ptr(int64(i))
		require.NoError(t, s.Add(ctx, metadata.ObjectRef{Bucket: "scan", Name: name}, m, false))
	}

	refs, err := store.Collect(must(s.Query(ctx, nil, store.Options{
		SkipFirst:  1,
		MaxResults: 5,
		Orderings:  []query.Ordering{query.Asc(query.OrderSequenceNumber)},
	})))
	require.NoError(t, err)
	var got []string
	for _, r := range refs {
		got = append(got, r.Name)
	}
	assert.Equal(t, []string{"b", "c", "d", "e", "f"}, got)
	require.Len(t, counting.selects, 1)
	assert.Equal(t, 1, counting.selects[0].Offset)
	assert.Equal(t, 5, counting.selects[0].Limit)

	counting.selects = nil
	refs, err = store.Collect(must(s.Query(ctx, []query.Query{{Session: "scan"}, {Session: "scan"}}, store.Options{})))
	require.NoError(t, err)
	assert.Len(t, refs, 7)
	assert.Len(t, counting.selects, 2)
}

func TestQueryIgnoresForeignObjects(t *testing.T) {
	ctx := context.Background()
	catalog := openCatalog(t)
	s := New(catalog, Config{}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	require.NoError(t, catalog.CreateObject(ctx, "/catalog/b/plain"))
	require.NoError(t, catalog.SetAVUs(ctx, "/catalog/b/plain", avu.AVU{Attribute: "owner", Value: "someone"}))
	require.NoError(t, catalog.CreateObject(ctx, "/elsewhere/b/typed"))
	require.NoError(t, catalog.SetAVUs(ctx, "/elsewhere/b/typed", avu.AVU{Attribute: AttrObjectType, Value: "STRimage"}))
	require.NoError(t, s.Add(ctx, metadata.ObjectRef{Bucket: "b", Name: "mine"}, metadata.NewArtifact(), false))

	refs, err := store.Collect(must(s.Query(ctx, nil, store.Options{})))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "mine", refs[0].Name)

	_, err = s.Get(ctx, metadata.ObjectRef{Bucket: "b", Name: "plain"})
	assert.True(t, store.ErrNotFound.Has(err))
}

func TestSkipAppliesPerQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	defer func() { require.NoError(t, s.Close()) }()

	for _, rec := range []struct{ name, session string }{
		{"a0", "a"}, {"a1", "a"}, {"b0", "b"}, {"b1", "b"},
	} {
		m := metadata.NewArtifact()
		m.SessionName = metadata.Ptr(rec.session)
		require.NoError(t, s.Add(ctx, metadata.ObjectRef{Bucket: "skip", Name: rec.name}, m, false))
	}

	refs, err := store.Collect(must(s.Query(ctx, []query.Query{{Session: "a"}, {Session: "b"}}, store.Options{SkipFirst: 1})))
	require.NoError(t, err)
	var got []string
	for _, r := range refs {
		got = append(got, r.Name)
	}
	assert.Equal(t, []string{"a1", "b1"}, got)

	refs, err = store.Collect(must(s.Query(ctx, []query.Query{{Session: "a"}, {Session: "b"}}, store.Options{MaxResults: 3})))
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestRacingStoresRetry(t *testing.T) {
	ctx := context.Background()
	catalog := openCatalog(t)
	policy := fastRetry()
	policy.MaxAttempts = 1000
	var stores []*Store
	for i := 0; i < 4; i++ {
		stores = append(stores, New(catalog, Config{Retry: policy}, logger.Nop()))
	}

	ref := metadata.ObjectRef{Bucket: "race", Name: "new-record"}
	var group errgroup.Group
	for i, s := range stores {
		group.Go(func() error {
			m := metadata.NewImage(metadata.ImagePNG)
			m.SequenceNumber = metadata.Ptr(int64(i))
			for j := 0; j < 5; j++ {
				if err := s.Add(ctx, ref, m, true); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	got, err := stores[0].Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, metadata.TypeImage, got.Type())
	require.NoError(t, catalog.Close())
}

// flakyCatalog reports the object busy for the first busy writes.
type flakyCatalog struct {
	Catalog
	mu     sync.Mutex
	busy   int
	writes int
}

func (c *flakyCatalog) busyNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	return c.writes <= c.busy
}

func (c *flakyCatalog) Write(ctx context.Context, path string, fn func(w *avu.Writer) error) error {
	if c.busyNow() {
		return avu.ErrBusy.New("%s", path)
	}
	return c.Catalog.Write(ctx, path, fn)
}

func (c *flakyCatalog) ClearAVUs(ctx context.Context, path string) error {
	if c.busyNow() {
		return avu.ErrBusy.New("%s", path)
	}
	return c.Catalog.ClearAVUs(ctx, path)
}

func TestAddRetriesBusyCatalog(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyCatalog{Catalog: openCatalog(t), busy: 3}
	var notified int
	policy := fastRetry()
	policy.OnRetry = func(err error, _ time.Duration) {
		assert.True(t, avu.ErrBusy.Has(err))
		notified++
	}
	s := New(flaky, Config{Retry: policy}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	ref := metadata.ObjectRef{Bucket: "b", Name: "n"}
	require.NoError(t, s.Add(ctx, ref, metadata.NewArtifact(), false))
	assert.Equal(t, 4, flaky.writes)
	assert.Equal(t, 3, notified)

	err := s.Add(ctx, ref, metadata.NewArtifact(), false)
	assert.True(t, store.ErrAlreadyExists.Has(err))
	assert.True(t, store.ErrOperation.Has(err))
	assert.Equal(t, 5, flaky.writes, "already exists is not retried")
}

func TestAddGivesUpWhenAlwaysBusy(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyCatalog{Catalog: openCatalog(t), busy: 1 << 30}
	policy := fastRetry()
	policy.MaxAttempts = 4
	s := New(flaky, Config{Retry: policy}, logger.Nop())
	defer func() { require.NoError(t, s.Close()) }()

	err := s.Add(ctx, metadata.ObjectRef{Bucket: "b", Name: "n"}, metadata.NewArtifact(), false)
	assert.True(t, store.ErrOperation.Has(err))
	assert.True(t, avu.ErrBusy.Has(err))
	assert.Equal(t, 4, flaky.writes)
}

func TestGenQuery(t *testing.T) {
	box, err := query.NewBoundingBox(
		metadata.GeoPoint{LatitudeDeg: -10, LongitudeDeg: 170},
		metadata.GeoPoint{LatitudeDeg: 10, LongitudeDeg: -170},
	)
	require.NoError(t, err)
	q := query.Query{
		Name:            "50%",
		PlatformTypes:   []metadata.PlatformType{metadata.PlatformAerial},
		SequenceNumbers: query.AtMost[int64](3),
		BoundingBox:     box,
	}
	gq, err := genQuery("/catalog", q, []query.Ordering{query.Desc(query.OrderCamera)})
	require.NoError(t, err)

	three, _ := Encode(int64(3))
	lo, _ := Encode(-10.0)
	hi, _ := Encode(10.0)
	west, _ := Encode(170.0)
	east, _ := Encode(-170.0)
	assert.Equal(t, []avu.Condition{
		objectTypes(),
		{Attribute: AttrPlatformType, Op: avu.OpIn, Values: []string{"STRaerial"}},
		{Attribute: AttrName, Op: avu.OpLike, Value: `STR%50\%%`},
		{Attribute: AttrSequenceNumber, Op: avu.OpGe, Value: "INT"},
		{Attribute: AttrSequenceNumber, Op: avu.OpLe, Value: three},
		{Attribute: AttrLatitude, Op: avu.OpGe, Value: lo},
		{Attribute: AttrLatitude, Op: avu.OpLe, Value: hi},
		// an antimeridian box is passed through as two plain ranges
		{Attribute: AttrLongitude, Op: avu.OpGe, Value: west},
		{Attribute: AttrLongitude, Op: avu.OpLe, Value: east},
	}, gq.Conditions)
	assert.Equal(t, []avu.Order{{Attribute: AttrCamera, Desc: true, Null: codeNull}}, gq.OrderBy)
	assert.Equal(t, "/catalog", gq.Collection)
}

func TestUnmappedFieldPanics(t *testing.T) {
	assert.Panics(t, func() { attribute(query.FieldBoundingBox) })
}

func must(it store.Iterator, err error) store.Iterator {
	if err != nil {
		panic(err)
	}
	return it
}
