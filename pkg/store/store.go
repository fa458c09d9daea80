// ABOUTME: Backend-agnostic metadata store contract
// ABOUTME: CRUD and structured query over typed metadata records, with the shared error taxonomy

package store

import (
	"context"

	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
)

var (
	// ErrNotFound is returned when a record is absent.
	ErrNotFound = errs.Class("not found")
	// ErrOperation is returned for backend failures, constraint violations
	// and malformed native queries.
	ErrOperation = errs.Class("operation")
	// ErrAlreadyExists marks an add that collided with an existing record.
	// It is always wrapped in ErrOperation.
	ErrAlreadyExists = errs.Class("already exists")
)

// DefaultMaxResults is the result window used when Options.MaxResults is 0.
const DefaultMaxResults = 500

// AlreadyExists returns the error reported for an add that would overwrite
// ref without permission.
func AlreadyExists(ref metadata.ObjectRef) error {
	return ErrOperation.Wrap(ErrAlreadyExists.New("%s", ref))
}

// NotFound returns the error reported for a missing record.
func NotFound(ref metadata.ObjectRef) error {
	return ErrNotFound.New("%s", ref)
}

// Store is implemented by every metadata backend.
type Store interface {
	// Get returns the record stored for ref, or ErrNotFound.
	Get(ctx context.Context, ref metadata.ObjectRef) (*metadata.Metadata, error)
	// Delete removes the record for ref. Deleting an absent record succeeds.
	Delete(ctx context.Context, ref metadata.ObjectRef) error
	// Add stores m for ref. Unless overwrite is set, an existing record makes
	// it fail with ErrAlreadyExists inside ErrOperation.
	Add(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, overwrite bool) error
	// Update merges m into the existing record, or replaces it when merge is
	// false. Merging into an absent record fails with ErrNotFound.
	Update(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, merge bool) error
	// Query returns the references matching any of queries. The iterator is
	// lazy and one-shot; ctx governs every fetch it makes.
	Query(ctx context.Context, queries []query.Query, opts Options) (Iterator, error)
	// Close releases the backend session.
	Close() error
}

// Options controls the ordering and window of a query.
type Options struct {
	Orderings  []query.Ordering
	SkipFirst  int
	MaxResults int
}

// Normalize validates the window and fills in the default result limit.
func (o Options) Normalize() (Options, error) {
	if o.SkipFirst < 0 {
		return o, metadata.ErrValidation.New("skip_first %d is negative", o.SkipFirst)
	}
	if o.MaxResults < 0 {
		return o, metadata.ErrValidation.New("max_num_results %d is negative", o.MaxResults)
	}
	if o.MaxResults == 0 {
		o.MaxResults = DefaultMaxResults
	}
	for _, ord := range o.Orderings {
		// panics on an unmapped field
		_ = ord.Field.Field()
	}
	return o, nil
}

// PrepareQueries validates queries and opts for a backend. An empty query
// list matches every record.
func PrepareQueries(queries []query.Query, opts Options) ([]query.Query, Options, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, opts, err
	}
	if len(queries) == 0 {
		queries = []query.Query{{}}
	}
	for _, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, opts, err
		}
	}
	return queries, opts, nil
}

// PrepareWrite validates a reference and record and returns the normalized
// copy a backend should persist.
func PrepareWrite(ref metadata.ObjectRef, m *metadata.Metadata) (*metadata.Metadata, error) {
	if err := ref.Verify(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, metadata.ErrValidation.New("metadata is required")
	}
	out := m.Clone()
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
