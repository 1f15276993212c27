// Package migrate applies the embedded schema migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"ihire-proctoring/backend/internal/db"
)

// ErrNoChange is golang-migrate's "already at target" error. Runner methods swallow it.
var ErrNoChange = migrate.ErrNoChange

// ErrNoDSN is returned when no database URL is configured.
var ErrNoDSN = errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")

// Runner migrates one database.
type Runner struct {
	m *migrate.Migrate
}

// NewRunner opens the database at dsn and binds it to the migrations for driver.
func NewRunner(driver, dsn string) (*Runner, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	target, err := DatabaseURL(driver, dsn)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(db.MigrationFS, db.MigrationDir(driver))
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return nil, fmt.Errorf("open %s for migration: %w", driver, err)
	}
	return &Runner{m: m}, nil
}

// Up applies every pending migration.
func (r *Runner) Up() error { return ignoreNoChange(r.m.Up()) }

// Down reverts every applied migration.
func (r *Runner) Down() error { return ignoreNoChange(r.m.Down()) }

// Steps applies n migrations forward, or -n backward when n is negative.
func (r *Runner) Steps(n int) error {
	if n == 0 {
		return nil
	}
	return ignoreNoChange(r.m.Steps(n))
}

// Version reports the applied version. A database with no migrations reports 0, false.
func (r *Runner) Version() (version uint, dirty bool, err error) {
	version, dirty, err = r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Force records version as applied and clears the dirty flag without running any SQL.
func (r *Runner) Force(version int) error { return r.m.Force(version) }

// Close releases the source and database handles.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Run opens a Runner, moves the schema all the way "up" or "down", and closes it.
func Run(driver, dsn, direction string) error {
	var apply func(*Runner) error
	switch direction {
	case "up":
		apply = (*Runner).Up
	case "down":
		apply = (*Runner).Down
	default:
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	r, err := NewRunner(driver, dsn)
	if err != nil {
		return err
	}
	defer r.Close()
	return apply(r)
}

// DatabaseURL converts an application DSN into the URL golang-migrate expects. SQLite paths
// and file: URIs become sqlite:// URLs; Postgres DSNs must already be URLs.
func DatabaseURL(driver, dsn string) (string, error) {
	switch driver {
	case db.DriverPostgres:
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return "", fmt.Errorf("postgres DSN must be a postgres:// URL, got %q", dsn)
		}
		return dsn, nil
	case db.DriverSQLite:
		path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
		if path == "" {
			return "", errors.New("sqlite DSN has no file path")
		}
		return "sqlite://" + path, nil
	default:
		return "", fmt.Errorf("migrations are not supported for driver %q", driver)
	}
}
