// ABOUTME: Redis read-through cache in front of any metadata store
// ABOUTME: Caches Get results with a TTL and drops entries on every write

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/errs"
	"golang.org/x/sync/singleflight"

	"github.com/nainya/assetcatalog/internal/logger"
	"github.com/nainya/assetcatalog/internal/metrics"
	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/store"
)

// Error is a redis error.
var Error = errs.Class("cache")

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 5 * time.Minute

// Config configures the cache.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	// Prefix namespaces the cache keys.
	Prefix string
}

// OpenClient connects to redis and verifies the connection.
func OpenClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.Close())
	}
	return client, nil
}

// Store serves Get from redis when it can and passes everything else to the
// wrapped store. Redis failures degrade to the wrapped store.
type Store struct {
	store.Store

	client  *redis.Client
	ttl     time.Duration
	prefix  string
	metrics *metrics.Metrics
	log     *logger.Logger
	group   singleflight.Group
}

var _ store.Store = (*Store)(nil)

// New wraps next. The returned store owns client and closes it. m may be nil.
func New(next store.Store, client *redis.Client, cfg Config, m *metrics.Metrics, log *logger.Logger) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "assetcatalog:"
	}
	return &Store{
		Store:   next,
		client:  client,
		ttl:     ttl,
		prefix:  prefix,
		metrics: m,
		log:     log,
	}
}

func (s *Store) key(ref metadata.ObjectRef) string {
	return s.prefix + ref.Bucket + "/" + ref.Name
}

func (s *Store) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordCacheRequest(result)
	}
}

// Get returns the cached record or loads it from the wrapped store.
// Concurrent misses for the same ref share one load.
func (s *Store) Get(ctx context.Context, ref metadata.ObjectRef) (*metadata.Metadata, error) {
	if err := ref.Verify(); err != nil {
		return nil, err
	}
	key := s.key(ref)

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var m metadata.Metadata
		if err := msgpack.Unmarshal(data, &m); err == nil {
			s.record("hit")
			m.Normalize()
			return &m, nil
		}
		s.log.Warn("Dropping undecodable cache entry").Str("key", key).Send()
	case !errors.Is(err, redis.Nil):
		s.record("error")
		s.log.Warn("Cache read failed").Str("key", key).Err(err).Send()
		return s.Store.Get(ctx, ref)
	}
	s.record("miss")

	v, err, _ := s.group.Do(key, func() (any, error) {
		m, err := s.Store.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		s.fill(ctx, key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*metadata.Metadata).Clone(), nil
}

func (s *Store) fill(ctx context.Context, key string, m *metadata.Metadata) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		s.log.Warn("Cache encode failed").Str("key", key).Err(err).Send()
		return
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn("Cache write failed").Str("key", key).Err(err).Send()
	}
}

func (s *Store) invalidate(ctx context.Context, ref metadata.ObjectRef) {
	if err := s.client.Del(ctx, s.key(ref)).Err(); err != nil {
		s.log.Warn("Cache invalidation failed").Str("key", s.key(ref)).Err(err).Send()
	}
}

// Delete removes the record and its cache entry.
func (s *Store) Delete(ctx context.Context, ref metadata.ObjectRef) error {
	defer s.invalidate(ctx, ref)
	return s.Store.Delete(ctx, ref)
}

// Add stores the record and drops its cache entry.
func (s *Store) Add(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, overwrite bool) error {
	defer s.invalidate(ctx, ref)
	return s.Store.Add(ctx, ref, m, overwrite)
}

// Update updates the record and drops its cache entry.
func (s *Store) Update(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, merge bool) error {
	defer s.invalidate(ctx, ref)
	return s.Store.Update(ctx, ref, m, merge)
}

// Close closes the wrapped store and the redis client.
func (s *Store) Close() error {
	return errs.Combine(s.Store.Close(), Error.Wrap(s.client.Close()))
}
