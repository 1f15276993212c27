// Package store opens the session and audit repositories for the configured database driver.
package store

import (
	"database/sql"
	"fmt"
	"log"

	auditrepo "ihire-proctoring/backend/internal/audit/repository"
	"ihire-proctoring/backend/internal/config"
	"ihire-proctoring/backend/internal/db"
	"ihire-proctoring/backend/internal/db/migrate"
	"ihire-proctoring/backend/internal/proctoring/repository"
)

// Store bundles the repositories that share one database.
type Store struct {
	Sessions repository.Repository
	Audit    auditrepo.Repository
	// DB is nil for the memory driver.
	DB *sql.DB
}

// Open returns the repositories for driver. SQLite files are migrated up on open so a fresh
// checkout runs without a separate migrate step; Postgres is migrated with cmd/migrate.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case config.DriverMemory:
		log.Println("store: using in-memory repositories; data is lost on exit")
		return &Store{
			Sessions: repository.NewMemoryRepository(),
			Audit:    auditrepo.NewMemoryRepository(),
		}, nil
	case config.DriverSQLite, config.DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	dialect, err := repository.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if driver == config.DriverSQLite {
		if err := migrate.Run(driver, dsn, "up"); err != nil {
			return nil, fmt.Errorf("store: migrate sqlite: %w", err)
		}
	}
	conn, err := db.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	return &Store{
		Sessions: repository.NewSQLRepository(conn, dialect),
		Audit:    auditrepo.NewSQLRepository(conn, dialect),
		DB:       conn,
	}, nil
}

// Close closes the database, if any.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
