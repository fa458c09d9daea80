package store

import (
	"context"

	"github.com/nainya/assetcatalog/pkg/metadata"
)

// recordStore is the subset of Store an update is built from.
type recordStore interface {
	Get(ctx context.Context, ref metadata.ObjectRef) (*metadata.Metadata, error)
	Add(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, overwrite bool) error
}

// UpdateRecord implements Store.Update on top of Get and Add. With merge, the
// fields m sets replace those of the existing record; without it, m replaces
// the record outright.
func UpdateRecord(ctx context.Context, s recordStore, ref metadata.ObjectRef, m *metadata.Metadata, merge bool) error {
	if m == nil {
		return metadata.ErrValidation.New("metadata is required")
	}
	if !merge {
		return s.Add(ctx, ref, m, true)
	}
	existing, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	return s.Add(ctx, ref, metadata.Merge(existing, m), true)
}
