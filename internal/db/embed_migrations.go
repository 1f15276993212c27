package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations, one directory per driver.
// Used by the migrate runner (cmd/migrate, and tests that need a real schema).
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationDir returns the directory inside MigrationFS holding migrations for driver.
func MigrationDir(driver string) string {
	return "migrations/" + driver
}
