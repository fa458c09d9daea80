// ABOUTME: Attribute-store metadata backend on top of the AVU catalog
// ABOUTME: Records are flattened into type-tagged attributes; multi-query results are unioned client-side

package avustore

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nainya/assetcatalog/internal/logger"
	"github.com/nainya/assetcatalog/pkg/avu"
	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
	"github.com/nainya/assetcatalog/pkg/store"
)

// DefaultRootCollection is the collection records are stored below.
const DefaultRootCollection = "/catalog"

// Catalog is the attribute facility the store runs on. *avu.Catalog
// implements it.
type Catalog interface {
	Write(ctx context.Context, path string, fn func(w *avu.Writer) error) error
	GetAVUs(ctx context.Context, path string) ([]avu.AVU, error)
	ClearAVUs(ctx context.Context, path string) error
	Select(ctx context.Context, q avu.GenQuery) ([]avu.Row, error)
	Close() error
}

var _ Catalog = (*avu.Catalog)(nil)

// Config configures an attribute-store backend.
type Config struct {
	// Path is the catalog file opened by Open.
	Path string
	// RootCollection holds one sub-collection per bucket.
	RootCollection string
	// PageSize is the number of references a result stream hands out at a
	// time. Each sub-query still runs a single catalog scan.
	PageSize int
	// Retry bounds the retries of writes that lose a creation race.
	Retry store.RetryPolicy
}

// Store is the attribute-store backend.
type Store struct {
	log      *logger.Logger
	catalog  Catalog
	root     string
	pageSize int
	retry    store.RetryPolicy
	gate     *semaphore.Weighted
}

var _ store.Store = (*Store)(nil)

// Open opens the catalog at cfg.Path and returns a store over it.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.ErrOperation.Wrap(err)
	}
	if log == nil {
		log = logger.Nop()
	}
	catalog, err := avu.Open(cfg.Path, log)
	if err != nil {
		return nil, store.ErrOperation.Wrap(err)
	}
	return New(catalog, cfg, log), nil
}

// New returns a store over catalog. The store owns the catalog and closes it.
func New(catalog Catalog, cfg Config, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	log = log.StoreLogger("avu")
	root := strings.TrimSuffix(cfg.RootCollection, "/")
	if root == "" {
		root = DefaultRootCollection
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = store.DefaultRetryPolicy()
		policy.OnRetry = cfg.Retry.OnRetry
	}
	notify := policy.OnRetry
	policy.OnRetry = func(err error, wait time.Duration) {
		log.Debug("Retrying catalog write").Err(err).Dur("wait", wait).Send()
		if notify != nil {
			notify(err, wait)
		}
	}
	return &Store{
		log:      log,
		catalog:  catalog,
		root:     root,
		pageSize: cfg.PageSize,
		retry:    policy,
		gate:     semaphore.NewWeighted(1),
	}
}

// Close closes the catalog.
func (s *Store) Close() error {
	return store.ErrOperation.Wrap(s.catalog.Close())
}

func (s *Store) path(ref metadata.ObjectRef) string {
	return s.root + "/" + ref.Bucket + "/" + ref.Name
}

func (s *Store) ref(path string) (metadata.ObjectRef, error) {
	rest, ok := strings.CutPrefix(path, s.root+"/")
	if !ok {
		return metadata.ObjectRef{}, store.ErrOperation.New("path %q is outside %q", path, s.root)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return metadata.ObjectRef{}, store.ErrOperation.New("path %q names no object", path)
	}
	return metadata.ObjectRef{Bucket: bucket, Name: name}, nil
}

// withSession runs fn while holding the session gate.
func (s *Store) withSession(ctx context.Context, fn func() error) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return store.ErrOperation.Wrap(err)
	}
	defer s.gate.Release(1)
	return fn()
}

// retrying runs fn under the session gate, retrying while another writer
// holds the object. The gate is released between attempts.
func (s *Store) retrying(ctx context.Context, fn func() error) error {
	err := store.Retry(ctx, s.retry, avu.ErrBusy.Has, func() error {
		return s.withSession(ctx, fn)
	})
	return operationError(err)
}

func (s *Store) write(ctx context.Context, path string, fn func(w *avu.Writer) error) error {
	return s.retrying(ctx, func() error {
		return s.catalog.Write(ctx, path, fn)
	})
}

// operationError passes store errors through and wraps everything else.
func operationError(err error) error {
	switch {
	case err == nil:
		return nil
	case store.ErrOperation.Has(err), store.ErrNotFound.Has(err), metadata.ErrValidation.Has(err):
		return err
	}
	return store.ErrOperation.Wrap(err)
}

// Get decodes the canonical record attribute.
func (s *Store) Get(ctx context.Context, ref metadata.ObjectRef) (*metadata.Metadata, error) {
	if err := ref.Verify(); err != nil {
		return nil, err
	}
	var avus []avu.AVU
	err := s.withSession(ctx, func() (err error) {
		avus, err = s.catalog.GetAVUs(ctx, s.path(ref))
		return err
	})
	switch {
	case avu.ErrObjectNotFound.Has(err):
		return nil, store.NotFound(ref)
	case err != nil:
		return nil, operationError(err)
	}
	for _, a := range avus {
		if a.Attribute == AttrJSON {
			m, err := metadata.UnmarshalCanonical([]byte(a.Value))
			if err != nil {
				return nil, store.ErrOperation.Wrap(err)
			}
			return m, nil
		}
	}
	return nil, store.NotFound(ref)
}

// Delete clears the record's attributes. The object itself belongs to the
// blob store and stays.
func (s *Store) Delete(ctx context.Context, ref metadata.ObjectRef) error {
	if err := ref.Verify(); err != nil {
		return err
	}
	return s.retrying(ctx, func() error {
		err := s.catalog.ClearAVUs(ctx, s.path(ref))
		if avu.ErrObjectNotFound.Has(err) {
			return nil
		}
		return err
	})
}

// Add creates the object if needed and replaces its attributes with the
// flattened record.
func (s *Store) Add(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, overwrite bool) error {
	m, err := store.PrepareWrite(ref, m)
	if err != nil {
		return err
	}
	avus, err := flatten(m)
	if err != nil {
		return store.ErrOperation.Wrap(err)
	}
	return s.write(ctx, s.path(ref), func(w *avu.Writer) error {
		if err := w.EnsureObject(); err != nil {
			return err
		}
		_, exists, err := w.Get(AttrJSON)
		if err != nil {
			return err
		}
		if exists && !overwrite {
			return store.AlreadyExists(ref)
		}
		if err := w.Clear(); err != nil {
			return err
		}
		return w.Set(avus...)
	})
}

// Update merges or replaces through Get and Add.
func (s *Store) Update(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, merge bool) error {
	return store.UpdateRecord(ctx, s, ref, m, merge)
}

// Query issues one catalog scan per query, each ordered and windowed on its
// own, and concatenates them dropping repeated objects. SkipFirst therefore
// applies to every scan rather than to the combined result. A scan runs when
// its stream is first read and the window it returns is paged from memory.
func (s *Store) Query(ctx context.Context, queries []query.Query, opts store.Options) (store.Iterator, error) {
	queries, opts, err := store.PrepareQueries(queries, opts)
	if err != nil {
		return nil, err
	}
	streams := make([]store.Iterator, 0, len(queries))
	for _, q := range queries {
		gq, err := genQuery(s.root, q, opts.Orderings)
		if err != nil {
			return nil, store.ErrOperation.Wrap(err)
		}
		streams = append(streams, store.NewPagedIterator(ctx, s.pager(gq, opts.MaxResults), opts.SkipFirst, opts.MaxResults, s.pageSize))
	}
	return store.Union(opts.MaxResults, streams...), nil
}

// pager runs one scan for up to window rows on its first call and serves
// every page from that result.
func (s *Store) pager(gq avu.GenQuery, window int) store.PageFunc {
	var (
		loaded bool
		start  int
		refs   []metadata.TypedObjectRef
	)
	return func(ctx context.Context, offset, limit int) ([]metadata.TypedObjectRef, error) {
		if !loaded {
			var err error
			refs, err = s.selectRefs(ctx, gq, offset, window)
			if err != nil {
				return nil, err
			}
			loaded, start = true, offset
		}
		from := min(max(offset-start, 0), len(refs))
		to := min(from+limit, len(refs))
		return refs[from:to], nil
	}
}

func (s *Store) selectRefs(ctx context.Context, gq avu.GenQuery, offset, limit int) ([]metadata.TypedObjectRef, error) {
	gq.Offset, gq.Limit = offset, limit

	var rows []avu.Row
	err := s.withSession(ctx, func() (err error) {
		rows, err = s.catalog.Select(ctx, gq)
		return err
	})
	if err != nil {
		return nil, operationError(err)
	}

	refs := make([]metadata.TypedObjectRef, 0, len(rows))
	for _, row := range rows {
		ref, err := s.ref(row.Path)
		if err != nil {
			return nil, err
		}
		kind, err := Decode(row.Attrs[AttrObjectType])
		if err != nil {
			return nil, store.ErrOperation.Wrap(err)
		}
		name, _ := kind.(string)
		typ, err := metadata.ParseObjectType(name)
		if err != nil {
			return nil, store.ErrOperation.Wrap(err)
		}
		refs = append(refs, metadata.TypedObjectRef{ObjectRef: ref, Type: typ})
	}
	return refs, nil
}
