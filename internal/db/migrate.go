package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/lpi-control/internal/monitoring"
)

// ErrDirtySchema means a migration failed part way. The schema has to be
// repaired by hand and the version set with MigrateForce.
var ErrDirtySchema = errors.New("database schema is dirty")

var migrateLog = monitoring.NewLogger("migrate")

// MigrateUp applies every pending migration. It is a no-op when the schema is
// already current.
func (db *DB) MigrateUp() error {
	return db.withMigrate(func(m *migrate.Migrate) error {
		if _, dirty, err := m.Version(); err == nil && dirty {
			return ErrDirtySchema
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// MigrateDown reverts the newest applied migration.
func (db *DB) MigrateDown() error {
	return db.withMigrate(func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// MigrateVersion reports the applied schema version; 0 when nothing has been
// applied.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	err = db.withMigrate(func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}

// MigrateForce records version as applied and clears the dirty flag without
// running any SQL.
func (db *DB) MigrateForce(version int) error {
	return db.withMigrate(func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force schema version %d: %w", version, err)
		}
		return nil
	})
}

// LatestMigrationVersion walks the embedded migrations and returns the
// newest version.
func LatestMigrationVersion() (uint, error) {
	src, err := migrationSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("walk migrations after %d: %w", v, err)
		}
		v = next
	}
}

func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// withMigrate runs fn against a migrator bound to db. The migrator is not
// closed afterwards because that would close the shared *sql.DB.
func (db *DB) withMigrate(fn func(*migrate.Migrate) error) error {
	src, err := migrationSource()
	if err != nil {
		return err
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLog
	return fn(m)
}
