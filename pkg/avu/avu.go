// ABOUTME: Attribute-capable object catalog persisted in bbolt
// ABOUTME: Objects carry named attribute/value/unit triples indexed by attribute and value

package avu

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/zeebo/errs"
	bolt "go.etcd.io/bbolt"

	"github.com/nainya/assetcatalog/internal/logger"
)

var (
	// Error is the class of catalog failures.
	Error = errs.Class("avu")
	// ErrObjectNotFound is returned for operations on an unknown object path.
	ErrObjectNotFound = errs.Class("object not found")
	// ErrObjectExists is returned when creating an object that is already there.
	ErrObjectExists = errs.Class("object exists")
	// ErrBusy is returned when another writer holds the object. It is
	// transient.
	ErrBusy = errs.Class("object busy")
)

var (
	objectsBucket = []byte("objects")
	avusBucket    = []byte("avus")
	indexBucket   = []byte("index")
)

const (
	fileMode    = 0600
	openTimeout = time.Second
)

// AVU is one attribute of an object.
type AVU struct {
	Attribute string
	Value     string
	Units     string
}

// Catalog is a bbolt-backed store of objects and their attributes.
type Catalog struct {
	log *logger.Logger
	db  *bolt.DB

	mu     sync.Mutex
	leases map[string]struct{}
}

// Open opens or creates the catalog file at path.
func Open(path string, log *logger.Logger) (*Catalog, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{objectsBucket, avusBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), db.Close())
	}
	log.Debug("Opened attribute catalog").Str("path", path).Send()
	return &Catalog{log: log, db: db, leases: map[string]struct{}{}}, nil
}

// Close closes the catalog file.
func (c *Catalog) Close() error {
	return Error.Wrap(c.db.Close())
}

func (c *Catalog) acquire(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.leases[path]; held {
		return false
	}
	c.leases[path] = struct{}{}
	return true
}

func (c *Catalog) release(path string) {
	c.mu.Lock()
	delete(c.leases, path)
	c.mu.Unlock()
}

// Write runs fn in one transaction while holding the write lease on path.
// A concurrent writer on the same path fails fast with ErrBusy.
func (c *Catalog) Write(ctx context.Context, path string, fn func(w *Writer) error) error {
	if err := ctx.Err(); err != nil {
		return Error.Wrap(err)
	}
	if !c.acquire(path) {
		return ErrBusy.New("%s", path)
	}
	defer c.release(path)

	return c.db.Update(func(tx *bolt.Tx) error {
		return fn(&Writer{tx: tx, path: path})
	})
}

// CreateObject registers a new object at path.
func (c *Catalog) CreateObject(ctx context.Context, path string) error {
	return c.Write(ctx, path, func(w *Writer) error {
		if w.Exists() {
			return ErrObjectExists.New("%s", path)
		}
		return w.EnsureObject()
	})
}

// ObjectExists reports whether path names an object.
func (c *Catalog) ObjectExists(ctx context.Context, path string) (exists bool, err error) {
	err = c.view(ctx, func(tx *bolt.Tx) error {
		exists = tx.Bucket(objectsBucket).Get(encodeKey(path)) != nil
		return nil
	})
	return exists, err
}

// GetAVUs returns the attributes of the object at path in name order.
func (c *Catalog) GetAVUs(ctx context.Context, path string) (avus []AVU, err error) {
	err = c.view(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket(objectsBucket).Get(encodeKey(path)) == nil {
			return ErrObjectNotFound.New("%s", path)
		}
		avus, err = readAVUs(tx, path)
		return err
	})
	return avus, err
}

// SetAVUs adds or replaces attributes on an existing object.
func (c *Catalog) SetAVUs(ctx context.Context, path string, avus ...AVU) error {
	return c.Write(ctx, path, func(w *Writer) error {
		if !w.Exists() {
			return ErrObjectNotFound.New("%s", path)
		}
		return w.Set(avus...)
	})
}

// ClearAVUs removes every attribute of an existing object. The object stays.
func (c *Catalog) ClearAVUs(ctx context.Context, path string) error {
	return c.Write(ctx, path, func(w *Writer) error {
		if !w.Exists() {
			return ErrObjectNotFound.New("%s", path)
		}
		return w.Clear()
	})
}

func (c *Catalog) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return Error.Wrap(err)
	}
	return c.db.View(fn)
}

// Writer modifies one object inside a Write transaction.
type Writer struct {
	tx   *bolt.Tx
	path string
}

// Exists reports whether the object has been created.
func (w *Writer) Exists() bool {
	return w.tx.Bucket(objectsBucket).Get(encodeKey(w.path)) != nil
}

// EnsureObject creates the object unless it already exists.
func (w *Writer) EnsureObject() error {
	if w.Exists() {
		return nil
	}
	var created [8]byte
	binary.BigEndian.PutUint64(created[:], uint64(time.Now().Unix()))
	return Error.Wrap(w.tx.Bucket(objectsBucket).Put(encodeKey(w.path), created[:]))
}

// Get returns the attribute named attr.
func (w *Writer) Get(attr string) (AVU, bool, error) {
	raw := w.tx.Bucket(avusBucket).Get(encodeKey(w.path, attr))
	if raw == nil {
		return AVU{}, false, nil
	}
	avu, err := decodeAVU(attr, raw)
	return avu, err == nil, err
}

// Set adds or replaces attributes, keeping the value index current.
func (w *Writer) Set(avus ...AVU) error {
	attrs := w.tx.Bucket(avusBucket)
	index := w.tx.Bucket(indexBucket)
	for _, a := range avus {
		if a.Attribute == "" {
			return Error.New("empty attribute name on %s", w.path)
		}
		key := encodeKey(w.path, a.Attribute)
		if raw := attrs.Get(key); raw != nil {
			old, err := decodeAVU(a.Attribute, raw)
			if err != nil {
				return err
			}
			if err := index.Delete(encodeKey(old.Attribute, old.Value, w.path)); err != nil {
				return Error.Wrap(err)
			}
		}
		if err := attrs.Put(key, encodeKey(a.Value, a.Units)); err != nil {
			return Error.Wrap(err)
		}
		if err := index.Put(encodeKey(a.Attribute, a.Value, w.path), nil); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Clear removes every attribute of the object.
func (w *Writer) Clear() error {
	avus, err := readAVUs(w.tx, w.path)
	if err != nil {
		return err
	}
	attrs := w.tx.Bucket(avusBucket)
	index := w.tx.Bucket(indexBucket)
	for _, a := range avus {
		if err := attrs.Delete(encodeKey(w.path, a.Attribute)); err != nil {
			return Error.Wrap(err)
		}
		if err := index.Delete(encodeKey(a.Attribute, a.Value, w.path)); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func readAVUs(tx *bolt.Tx, path string) ([]AVU, error) {
	prefix := encodeKey(path)
	var avus []AVU
	cur := tx.Bucket(avusBucket).Cursor()
	for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
		parts, err := decodeKey(k)
		if err != nil {
			return nil, err
		}
		if len(parts) != 2 {
			return nil, Error.New("malformed attribute key for %s", path)
		}
		avu, err := decodeAVU(parts[1], v)
		if err != nil {
			return nil, err
		}
		avus = append(avus, avu)
	}
	return avus, nil
}

func decodeAVU(attr string, raw []byte) (AVU, error) {
	parts, err := decodeKey(raw)
	if err != nil {
		return AVU{}, err
	}
	if len(parts) != 2 {
		return AVU{}, Error.New("malformed value for attribute %q", attr)
	}
	return AVU{Attribute: attr, Value: parts[0], Units: parts[1]}, nil
}
