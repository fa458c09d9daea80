// ABOUTME: Relational metadata store over artifact, raster, image and video tables
// ABOUTME: One shared session gated by a semaphore; writes are single transactions

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/zeebo/errs"
	"golang.org/x/sync/semaphore"

	"github.com/nainya/assetcatalog/internal/logger"
	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/store"
)

// Error is the class of configuration and schema failures.
var Error = errs.Class("sqlstore")

// Config configures a SQL store.
type Config struct {
	// Driver is "sqlite3" or "pgx".
	Driver string
	DSN    string
	// PageSize is the number of references fetched per query round-trip.
	PageSize int
	// SkipMigrations leaves the schema untouched on Open.
	SkipMigrations bool
}

// Store implements store.Store on a relational database.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	log      *logger.Logger
	gate     *semaphore.Weighted
	pageSize int
}

var _ store.Store = (*Store)(nil)

// Open connects to the database, migrates it to the latest schema and
// returns a ready store. The caller must Close it.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (_ *Store, err error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if dialect.Name == SQLite.Name && !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=1"
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, db.Close())
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		return nil, store.ErrOperation.Wrap(err)
	}

	s := New(db, dialect, log)
	s.pageSize = cfg.PageSize
	if !cfg.SkipMigrations {
		if err := s.MigrateToLatest(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// New wraps an open database. The store takes ownership of db.
func New(db *sql.DB, dialect Dialect, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	db.SetMaxOpenConns(1)
	return &Store{
		db:      db,
		dialect: dialect,
		log:     log.StoreLogger(dialect.Name),
		gate:    semaphore.NewWeighted(1),
	}
}

// MigrateToLatest applies every pending schema step.
func (s *Store) MigrateToLatest(ctx context.Context) error {
	return s.withSession(ctx, func() error {
		return Migration(s.dialect).Run(ctx, s.log, s.db)
	})
}

// MigrateTo moves the schema up or down to version. A version of -1 removes
// every table.
func (s *Store) MigrateTo(ctx context.Context, version int) error {
	m := Migration(s.dialect)
	return s.withSession(ctx, func() error {
		current, err := m.CurrentVersion(ctx, s.db)
		if err != nil {
			return err
		}
		if version < current {
			return m.Rollback(ctx, s.log, s.db, version)
		}
		return m.TargetVersion(version).Run(ctx, s.log, s.db)
	})
}

// SchemaVersion returns the applied schema version, or -1 for an empty
// database.
func (s *Store) SchemaVersion(ctx context.Context) (version int, err error) {
	err = s.withSession(ctx, func() error {
		version, err = Migration(s.dialect).CurrentVersion(ctx, s.db)
		return err
	})
	return version, err
}

// LatestSchemaVersion returns the version MigrateToLatest moves to.
func (s *Store) LatestSchemaVersion() int {
	return Migration(s.dialect).Latest()
}

// Close releases the database session.
func (s *Store) Close() error {
	return Error.Wrap(s.db.Close())
}

// withSession runs fn while holding the session gate.
func (s *Store) withSession(ctx context.Context, fn func() error) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return store.ErrOperation.Wrap(err)
	}
	defer s.gate.Release(1)
	return fn()
}

// withTx runs fn in a transaction while holding the session gate.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withSession(ctx, func() (err error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return store.ErrOperation.Wrap(err)
		}
		defer func() {
			if err != nil {
				err = errs.Combine(err, tx.Rollback())
				return
			}
			err = store.ErrOperation.Wrap(tx.Commit())
		}()
		return fn(tx)
	})
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(query), args...)
	return store.ErrOperation.Wrap(err)
}

// Get assembles the record from the artifact row and whichever narrower
// rows exist.
func (s *Store) Get(ctx context.Context, ref metadata.ObjectRef) (m *metadata.Metadata, err error) {
	if err := ref.Verify(); err != nil {
		return nil, err
	}
	err = s.withSession(ctx, func() error {
		m, err = s.get(ctx, ref)
		return err
	})
	return m, err
}

func (s *Store) get(ctx context.Context, ref metadata.ObjectRef) (*metadata.Metadata, error) {
	var (
		m        metadata.Metadata
		platform string
		date     sql.NullTime
		lat, lon sql.NullFloat64
		row      artifactRow
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT size, name, platform_type, notes, session_name, sequence_number,
			capture_date, location_lat, location_lon, location_description
		FROM artifacts WHERE bucket = ? AND "key" = ?`), ref.Bucket, ref.Name,
	).Scan(&row.size, &row.name, &platform, &row.notes, &row.session, &row.sequence,
		&date, &lat, &lon, &row.locationDescription)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(ref)
	}
	if err != nil {
		return nil, store.ErrOperation.Wrap(err)
	}

	m.Size = nullInt(row.size)
	m.Name = nullString(row.name)
	m.PlatformType = metadata.PlatformType(platform)
	m.Notes = nullString(row.notes)
	m.SessionName = nullString(row.session)
	m.SequenceNumber = nullInt(row.sequence)
	if date.Valid {
		t := metadata.NormalizeTime(date.Time)
		m.CaptureDate = &t
	}
	if lat.Valid && lon.Valid {
		m.Location = &metadata.GeoPoint{LatitudeDeg: lat.Float64, LongitudeDeg: lon.Float64}
	}
	m.LocationDescription = nullString(row.locationDescription)

	var (
		camera        sql.NullString
		uav           bool
		altitude, gsd sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT camera, uav, altitude_meters, gsd_cm_px
		FROM rasters WHERE bucket = ? AND "key" = ?`), ref.Bucket, ref.Name,
	).Scan(&camera, &uav, &altitude, &gsd)
	if errors.Is(err, sql.ErrNoRows) {
		return &m, nil
	}
	if err != nil {
		return nil, store.ErrOperation.Wrap(err)
	}
	m.Raster = &metadata.RasterExt{Camera: nullString(camera)}
	if uav {
		m.UAV = &metadata.UAVExt{AltitudeMeters: nullFloat(altitude), GSDCmPx: nullFloat(gsd)}
	}

	var format sql.NullString
	err = s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT format FROM images WHERE bucket = ? AND "key" = ?`), ref.Bucket, ref.Name,
	).Scan(&format)
	switch {
	case err == nil:
		m.Image = &metadata.ImageExt{Format: metadata.ImageFormat(format.String)}
		return &m, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, store.ErrOperation.Wrap(err)
	}

	var (
		frameRate sql.NullFloat64
		numFrames sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT format, frame_rate, num_frames FROM videos WHERE bucket = ? AND "key" = ?`), ref.Bucket, ref.Name,
	).Scan(&format, &frameRate, &numFrames)
	switch {
	case err == nil:
		m.Video = &metadata.VideoExt{
			Format:    metadata.VideoFormat(format.String),
			FrameRate: nullFloat(frameRate),
			NumFrames: nullInt(numFrames),
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, store.ErrOperation.Wrap(err)
	}
	return &m, nil
}

type artifactRow struct {
	size, sequence                            sql.NullInt64
	name, notes, session, locationDescription sql.NullString
}

// Delete removes the artifact row; narrower rows follow by cascade. A
// missing row is not an error.
func (s *Store) Delete(ctx context.Context, ref metadata.ObjectRef) error {
	if err := ref.Verify(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.exec(ctx, tx, `DELETE FROM artifacts WHERE bucket = ? AND "key" = ?`, ref.Bucket, ref.Name)
	})
}

// Add writes the record across the hierarchy tables in one transaction and
// removes narrower rows the new record no longer has.
func (s *Store) Add(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, overwrite bool) error {
	m, err := store.PrepareWrite(ref, m)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if !overwrite {
			var one int
			err := tx.QueryRowContext(ctx, s.dialect.Rebind(`
				SELECT 1 FROM artifacts WHERE bucket = ? AND "key" = ?`), ref.Bucket, ref.Name).Scan(&one)
			switch {
			case err == nil:
				return store.AlreadyExists(ref)
			case !errors.Is(err, sql.ErrNoRows):
				return store.ErrOperation.Wrap(err)
			}
		}
		return s.write(ctx, tx, ref, m)
	})
}

func (s *Store) write(ctx context.Context, tx *sql.Tx, ref metadata.ObjectRef, m *metadata.Metadata) error {
	var lat, lon *float64
	if m.Location != nil {
		lat, lon = &m.Location.LatitudeDeg, &m.Location.LongitudeDeg
	}
	err := s.exec(ctx, tx, `
		INSERT INTO artifacts (bucket, "key", size, name, platform_type, notes, session_name,
			sequence_number, capture_date, location_lat, location_lon, location_description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket, "key") DO UPDATE SET
			size = excluded.size,
			name = excluded.name,
			platform_type = excluded.platform_type,
			notes = excluded.notes,
			session_name = excluded.session_name,
			sequence_number = excluded.sequence_number,
			capture_date = excluded.capture_date,
			location_lat = excluded.location_lat,
			location_lon = excluded.location_lon,
			location_description = excluded.location_description`,
		ref.Bucket, ref.Name, m.Size, m.Name, string(m.PlatformType), m.Notes, m.SessionName,
		m.SequenceNumber, m.CaptureDate, lat, lon, m.LocationDescription)
	if err != nil {
		return err
	}

	if m.Raster == nil {
		return s.exec(ctx, tx, `DELETE FROM rasters WHERE bucket = ? AND "key" = ?`, ref.Bucket, ref.Name)
	}
	var altitude, gsd *float64
	if m.UAV != nil {
		altitude, gsd = m.UAV.AltitudeMeters, m.UAV.GSDCmPx
	}
	err = s.exec(ctx, tx, `
		INSERT INTO rasters (bucket, "key", camera, uav, altitude_meters, gsd_cm_px)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket, "key") DO UPDATE SET
			camera = excluded.camera,
			uav = excluded.uav,
			altitude_meters = excluded.altitude_meters,
			gsd_cm_px = excluded.gsd_cm_px`,
		ref.Bucket, ref.Name, m.Raster.Camera, m.UAV != nil, altitude, gsd)
	if err != nil {
		return err
	}

	if m.Image == nil {
		if err := s.exec(ctx, tx, `DELETE FROM images WHERE bucket = ? AND "key" = ?`, ref.Bucket, ref.Name); err != nil {
			return err
		}
	} else {
		err := s.exec(ctx, tx, `
			INSERT INTO images (bucket, "key", format) VALUES (?, ?, ?)
			ON CONFLICT (bucket, "key") DO UPDATE SET format = excluded.format`,
			ref.Bucket, ref.Name, emptyNull(string(m.Image.Format)))
		if err != nil {
			return err
		}
	}

	if m.Video == nil {
		return s.exec(ctx, tx, `DELETE FROM videos WHERE bucket = ? AND "key" = ?`, ref.Bucket, ref.Name)
	}
	return s.exec(ctx, tx, `
		INSERT INTO videos (bucket, "key", format, frame_rate, num_frames) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (bucket, "key") DO UPDATE SET
			format = excluded.format,
			frame_rate = excluded.frame_rate,
			num_frames = excluded.num_frames`,
		ref.Bucket, ref.Name, emptyNull(string(m.Video.Format)), m.Video.FrameRate, m.Video.NumFrames)
}

// Update merges into or replaces the stored record.
func (s *Store) Update(ctx context.Context, ref metadata.ObjectRef, m *metadata.Metadata, merge bool) error {
	return store.UpdateRecord(ctx, s, ref, m, merge)
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func emptyNull(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
