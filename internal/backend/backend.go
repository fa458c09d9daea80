// ABOUTME: Builds the configured metadata store
// ABOUTME: Chooses the backend, adds the optional cache and wraps everything in instrumentation

package backend

import (
	"context"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/internal/config"
	"github.com/nainya/assetcatalog/internal/logger"
	"github.com/nainya/assetcatalog/internal/metrics"
	"github.com/nainya/assetcatalog/pkg/avustore"
	"github.com/nainya/assetcatalog/pkg/cache"
	"github.com/nainya/assetcatalog/pkg/sqlstore"
	"github.com/nainya/assetcatalog/pkg/store"
)

// Error is the class of backend construction errors.
var Error = errs.Class("backend")

// Open returns the store cfg describes. m may be nil. The caller must Close
// the store.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (_ store.Store, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	var s store.Store
	switch cfg.Backend {
	case config.BackendSQL:
		s, err = OpenSQL(ctx, cfg, log, false)
	case config.BackendAVU:
		s, err = OpenAVU(ctx, cfg, m, log)
	default:
		return nil, Error.New("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Address != "" {
		client, err := cache.OpenClient(ctx, cache.Config{
			Address:  cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			return nil, errs.Combine(err, s.Close())
		}
		s = cache.New(s, client, cache.Config{TTL: cfg.Cache.TTL}, m, log)
		log.Info("Cache enabled").Str("address", cfg.Cache.Address).Dur("ttl", cfg.Cache.TTL).Send()
	}

	return store.Instrument(s, m, log, cfg.Backend), nil
}

// OpenSQL opens the relational backend. With skipMigrations the schema is
// left as found.
func OpenSQL(ctx context.Context, cfg *config.Config, log *logger.Logger, skipMigrations bool) (*sqlstore.Store, error) {
	return sqlstore.Open(ctx, sqlstore.Config{
		Driver:         cfg.SQL.Driver,
		DSN:            cfg.SQL.DSN,
		PageSize:       cfg.SQL.PageSize,
		SkipMigrations: skipMigrations,
	}, log)
}

// OpenAVU opens the attribute-store backend. Retries are counted on m.
func OpenAVU(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*avustore.Store, error) {
	retry := store.RetryPolicy{
		MaxAttempts:     cfg.AVU.Retry.MaxAttempts,
		InitialInterval: cfg.AVU.Retry.InitialInterval,
		MaxInterval:     cfg.AVU.Retry.MaxInterval,
	}
	if m != nil {
		retry.OnRetry = func(error, time.Duration) { m.RecordRetry(config.BackendAVU) }
	}
	return avustore.Open(ctx, avustore.Config{
		Path:           cfg.AVU.Path,
		RootCollection: cfg.AVU.RootCollection,
		PageSize:       cfg.AVU.PageSize,
		Retry:          retry,
	}, log)
}
