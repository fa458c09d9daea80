package store

import (
	"context"
	"time"

	"github.com/nainya/assetcatalog/internal/logger"
	"github.com/nainya/assetcatalog/internal/metrics"
	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
)

type instrumented struct {
	inner   Store
	metrics *metrics.Metrics
	log     *logger.Logger
	backend string
}

// Instrument wraps s so every operation is counted, timed and logged under
// the backend label. Either m or log may be nil.
func Instrument(s Store, m *metrics.Metrics, log *logger.Logger, backend string) Store {
	if log == nil {
		log = logger.Nop()
	}
	return &instrumented{inner: s, metrics: m, log: log.StoreLogger(backend), backend: backend}
}

// Status maps an operation error to a metric label.
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case ErrNotFound.Has(err):
		return "not_found"
	case ErrAlreadyExists.Has(err):
		return "already_exists"
	case metadata.ErrValidation.Has(err):
		return "invalid"
	default:
		return "error"
	}
}

func (s *instrumented) record(op string, start time.Time, count int, err error) {
	d := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(s.backend, op, Status(err), d)
	}
	s.log.LogStoreOperation(op, d, count, err)
}

func (s *instrumented) Get(ctx context.Context, ref metadata.ObjectRef) (_ *metadata.Metadata, err error) {
	defer func(start time.Time) { s.record("get", start, 1, err) }(time.Now())
	return s.inner.Get(ctx, ref)
}

func (s *instrumented) Delete(ctx context.Context, ref metadata.ObjectRef) (err error) {
	defer func(start time.Time) { s.record("delete", start, 1, err) }(time.Now())
	return s.inner.Delete(ctx, ref)
}

func (s *instrumented) Add(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, overwrite bool) (err error) {
	defer func(start time.Time) { s.record("add", start, 1, err) }(time.Now())
	return s.inner.Add(ctx, ref, m, overwrite)
}

func (s *instrumented) Update(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, merge bool) (err error) {
	defer func(start time.Time) { s.record("update", start, 1, err) }(time.Now())
	return s.inner.Update(ctx, ref, m, merge)
}

func (s *instrumented) Query(ctx context.Context, queries []query.Query, opts Options) (Iterator, error) {
	start := time.Now()
	it, err := s.inner.Query(ctx, queries, opts)
	if err != nil {
		s.record("query", start, 0, err)
		return nil, err
	}
	return &countingIterator{Iterator: it, store: s, start: start}, nil
}

func (s *instrumented) Close() error {
	return s.inner.Close()
}

// countingIterator reports a query once its iterator is closed, so the
// duration covers the lazy fetches.
type countingIterator struct {
	Iterator
	store  *instrumented
	start  time.Time
	count  int
	closed bool
}

func (it *countingIterator) Next() bool {
	if it.Iterator.Next() {
		it.count++
		return true
	}
	return false
}

func (it *countingIterator) Close() error {
	err := it.Iterator.Close()
	if it.closed {
		return err
	}
	it.closed = true
	if it.store.metrics != nil {
		it.store.metrics.RecordQueryResults(it.store.backend, it.count)
	}
	it.store.record("query", it.start, it.count, errsFirst(it.Iterator.Err(), err))
	return err
}

func errsFirst(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}
