package store

import (
	"context"

	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/pkg/metadata"
)

// Iterator is a lazy, one-shot sequence of typed object references.
//
//	it, err := s.Query(ctx, queries, opts)
//	...
//	defer it.Close()
//	for it.Next() {
//		use(it.Ref())
//	}
//	return it.Err()
type Iterator interface {
	Next() bool
	Ref() metadata.TypedObjectRef
	Err() error
	Close() error
}

// Collect drains it and closes it.
func Collect(it Iterator) (refs []metadata.TypedObjectRef, err error) {
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	for it.Next() {
		refs = append(refs, it.Ref())
	}
	return refs, it.Err()
}

// PageFunc fetches up to limit references starting at offset. Returning fewer
// than limit references ends the stream.
type PageFunc func(ctx context.Context, offset, limit int) ([]metadata.TypedObjectRef, error)

// DefaultPageSize is the number of references a paged iterator fetches per
// backend round-trip.
const DefaultPageSize = 100

type pagedIterator struct {
	ctx      context.Context
	fetch    PageFunc
	offset   int
	left     int
	pageSize int

	page   []metadata.TypedObjectRef
	pos    int
	cur    metadata.TypedObjectRef
	done   bool
	err    error
	closed bool
}

// NewPagedIterator returns an iterator that yields at most limit references,
// starting at offset, fetching pageSize references per call to fetch. No
// fetch is made before the first Next, and none after Close or once ctx is
// done.
func NewPagedIterator(ctx context.Context, fetch PageFunc, offset, limit, pageSize int) Iterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &pagedIterator{
		ctx:      ctx,
		fetch:    fetch,
		offset:   offset,
		left:     limit,
		pageSize: pageSize,
	}
}

func (it *pagedIterator) Next() bool {
	if it.closed || it.err != nil || it.left <= 0 {
		return false
	}
	if it.pos >= len(it.page) {
		if it.done {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = ErrOperation.Wrap(err)
			return false
		}
		want := min(it.pageSize, it.left)
		page, err := it.fetch(it.ctx, it.offset, want)
		if err != nil {
			it.err = err
			return false
		}
		it.page, it.pos = page, 0
		it.offset += len(page)
		if len(page) < want {
			it.done = true
		}
		if len(page) == 0 {
			return false
		}
	}
	it.cur = it.page[it.pos]
	it.pos++
	it.left--
	return true
}

func (it *pagedIterator) Ref() metadata.TypedObjectRef { return it.cur }
func (it *pagedIterator) Err() error                   { return it.err }

func (it *pagedIterator) Close() error {
	it.closed = true
	it.page = nil
	return nil
}

type unionIterator struct {
	streams []Iterator
	idx     int
	seen    map[metadata.ObjectRef]struct{}
	left    int
	cur     metadata.TypedObjectRef
	err     error
	closed  bool
}

// Union concatenates streams in order, dropping references already emitted
// by an earlier stream, and stops after limit distinct references. Each
// stream keeps its own internal order.
func Union(limit int, streams ...Iterator) Iterator {
	return &unionIterator{
		streams: streams,
		seen:    make(map[metadata.ObjectRef]struct{}),
		left:    limit,
	}
}

func (it *unionIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for it.left > 0 && it.idx < len(it.streams) {
		s := it.streams[it.idx]
		if !s.Next() {
			if err := s.Err(); err != nil {
				it.err = err
				return false
			}
			it.idx++
			continue
		}
		ref := s.Ref()
		if _, dup := it.seen[ref.ObjectRef]; dup {
			continue
		}
		it.seen[ref.ObjectRef] = struct{}{}
		it.cur = ref
		it.left--
		return true
	}
	return false
}

func (it *unionIterator) Ref() metadata.TypedObjectRef { return it.cur }
func (it *unionIterator) Err() error                   { return it.err }

func (it *unionIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	var group errs.Group
	for _, s := range it.streams {
		group.Add(s.Close())
	}
	return group.Err()
}
