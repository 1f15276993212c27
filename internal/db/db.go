// Package db opens the relational session store and embeds its schema migrations.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported driver names; they match config.DriverPostgres and config.DriverSQLite.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open opens a connection for driver using the given DSN and pings it. Caller must call Close when done.
// For sqlite, dsn is a file path or a "file:" URI; a busy timeout and foreign keys are enabled.
func Open(driver, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: DSN is empty")
	}
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	case DriverSQLite:
		db, err = sql.Open("sqlite", SQLiteDSN(dsn))
		if err == nil {
			// One writer at a time; avoids SQLITE_BUSY under concurrent updates.
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SQLiteDSN turns a plain file path into a modernc "file:" URI with the pragmas the store relies on.
// A DSN that is already a URI is returned unchanged.
func SQLiteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
