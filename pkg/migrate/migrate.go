// ABOUTME: Ordered, reversible schema migrations for SQL databases
// ABOUTME: Each step carries an up and a down action and is applied in its own transaction

package migrate

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/internal/logger"
)

// Error is the class of migration engine failures.
var Error = errs.Class("migrate")

// Migration describes the steps that bring a database to the latest schema.
type Migration struct {
	Table string
	Steps []*Step
	// Rebind rewrites '?' placeholders for the target database. Nil leaves
	// statements unchanged.
	Rebind func(string) string
}

// Step describes a single schema change.
type Step struct {
	Description string
	Version     int // Versions should start at 0
	Up          Action
	Down        Action
}

// Action is something that needs to be done inside a step's transaction.
type Action interface {
	Run(ctx context.Context, log *logger.Logger, tx *sql.Tx) error
}

// TargetVersion returns the migration with steps up to version.
func (migration *Migration) TargetVersion(version int) *Migration {
	m := *migration
	m.Steps = nil
	for _, step := range migration.Steps {
		if step.Version <= version {
			m.Steps = append(m.Steps, step)
		}
	}
	return &m
}

// ValidTableName checks whether the version table name is valid.
func (migration *Migration) ValidTableName() error {
	matched, err := regexp.MatchString(`^[a-z_]+$`, migration.Table)
	if !matched || err != nil {
		return Error.New("invalid table name: %v", migration.Table)
	}
	return nil
}

// ValidateSteps checks that versions strictly increase and that every step
// can be applied and reverted.
func (migration *Migration) ValidateSteps() error {
	for i, step := range migration.Steps {
		if i > 0 && step.Version <= migration.Steps[i-1].Version {
			return Error.New("steps have incorrect order at version %d", step.Version)
		}
		if step.Up == nil || step.Down == nil {
			return Error.New("step %d must have both up and down actions", step.Version)
		}
	}
	return nil
}

// Latest returns the highest step version, or -1 without steps.
func (migration *Migration) Latest() int {
	if len(migration.Steps) == 0 {
		return -1
	}
	return migration.Steps[len(migration.Steps)-1].Version
}

// Run applies every pending step in order.
func (migration *Migration) Run(ctx context.Context, log *logger.Logger, db *sql.DB) error {
	if err := migration.validate(); err != nil {
		return err
	}
	if err := migration.ensureVersionTable(ctx, db); err != nil {
		return err
	}

	version, err := migration.getLatestVersion(ctx, db)
	if err != nil {
		return err
	}
	initialSetup := version < 0

	for _, step := range migration.Steps {
		if step.Version <= version {
			continue
		}

		stepLog := log.WithFields(map[string]interface{}{"version": step.Version})
		if !initialSetup {
			stepLog.Info(step.Description).Send()
		} else {
			stepLog.Debug(step.Description).Send()
		}

		err := migration.withTx(ctx, db, func(tx *sql.Tx) error {
			if err := step.Up.Run(ctx, stepLog, tx); err != nil {
				return err
			}
			return migration.addVersion(ctx, tx, step.Version)
		})
		if err != nil {
			return Error.New("applying version %d: %w", step.Version, err)
		}
	}

	if initialSetup {
		log.Info("Database created").Int("version", migration.Latest()).Send()
	} else {
		log.Debug("Database version").Int("version", migration.Latest()).Send()
	}
	return nil
}

// Rollback reverts applied steps newer than target, newest first. A target
// of -1 reverts everything.
func (migration *Migration) Rollback(ctx context.Context, log *logger.Logger, db *sql.DB, target int) error {
	if err := migration.validate(); err != nil {
		return err
	}
	if err := migration.ensureVersionTable(ctx, db); err != nil {
		return err
	}

	version, err := migration.getLatestVersion(ctx, db)
	if err != nil {
		return err
	}

	for i := len(migration.Steps) - 1; i >= 0; i-- {
		step := migration.Steps[i]
		if step.Version <= target || step.Version > version {
			continue
		}

		stepLog := log.WithFields(map[string]interface{}{"version": step.Version})
		stepLog.Info("Reverting: " + step.Description).Send()

		err := migration.withTx(ctx, db, func(tx *sql.Tx) error {
			if err := step.Down.Run(ctx, stepLog, tx); err != nil {
				return err
			}
			return migration.removeVersion(ctx, tx, step.Version)
		})
		if err != nil {
			return Error.New("reverting version %d: %w", step.Version, err)
		}
	}
	return nil
}

// CurrentVersion returns the latest applied version, or -1 for a fresh
// database.
func (migration *Migration) CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	if err := migration.ValidTableName(); err != nil {
		return -1, err
	}
	if err := migration.ensureVersionTable(ctx, db); err != nil {
		return -1, err
	}
	return migration.getLatestVersion(ctx, db)
}

func (migration *Migration) validate() error {
	if err := migration.ValidTableName(); err != nil {
		return err
	}
	return migration.ValidateSteps()
}

func (migration *Migration) rebind(query string) string {
	if migration.Rebind == nil {
		return query
	}
	return migration.Rebind(query)
}

func (migration *Migration) withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, tx.Rollback())
			return
		}
		err = Error.Wrap(tx.Commit())
	}()
	return fn(tx)
}

// ensureVersionTable creates migration.Table if it does not exist.
func (migration *Migration) ensureVersionTable(ctx context.Context, db *sql.DB) error {
	return migration.withTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migration.Table+` (version int, committed_at text)`)
		return Error.Wrap(err)
	})
}

// getLatestVersion finds the latest version in migration.Table.
// It returns -1 if there aren't rows or version is null.
func (migration *Migration) getLatestVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+migration.Table).Scan(&version)
	if err == sql.ErrNoRows || (err == nil && !version.Valid) {
		return -1, nil
	}
	if err != nil {
		return -1, Error.Wrap(err)
	}
	return int(version.Int64), nil
}

func (migration *Migration) addVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, migration.rebind(`
		INSERT INTO `+migration.Table+` (version, committed_at) VALUES (?, ?)`),
		version, time.Now().UTC().Format(time.RFC3339),
	)
	return Error.Wrap(err)
}

func (migration *Migration) removeVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, migration.rebind(`DELETE FROM `+migration.Table+` WHERE version = ?`), version)
	return Error.Wrap(err)
}

// SQL statements that are executed on the database.
type SQL []string

// Run runs the SQL statements.
func (stmts SQL) Run(ctx context.Context, log *logger.Logger, tx *sql.Tx) error {
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Error.New("statement %d: %w", i, err)
		}
	}
	return nil
}

// Func is an arbitrary operation.
type Func func(ctx context.Context, log *logger.Logger, tx *sql.Tx) error

// Run runs the migration.
func (fn Func) Run(ctx context.Context, log *logger.Logger, tx *sql.Tx) error {
	return fn(ctx, log, tx)
}
