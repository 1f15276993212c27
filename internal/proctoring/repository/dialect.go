package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout is fixed-width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Dialect adapts queries and values to one SQL backend.
type Dialect interface {
	// Rebind rewrites ? placeholders into the backend's placeholder syntax.
	Rebind(query string) string
	// Time converts t into a query argument.
	Time(t time.Time) any
	// IsUniqueViolation reports whether err is a unique-constraint failure.
	IsUniqueViolation(err error) bool
}

// Postgres is the Dialect for jackc/pgx.
type Postgres struct{}

// Rebind numbers placeholders as $1, $2, ...
func (Postgres) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Time passes t through as a TIMESTAMPTZ value.
func (Postgres) Time(t time.Time) any { return t.UTC() }

// IsUniqueViolation matches SQLSTATE 23505.
func (Postgres) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SQLite is the Dialect for modernc.org/sqlite.
type SQLite struct{}

// Rebind returns query unchanged; SQLite accepts ? placeholders.
func (SQLite) Rebind(query string) string { return query }

// Time formats t as fixed-width UTC text.
func (SQLite) Time(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) }

// IsUniqueViolation matches SQLITE_CONSTRAINT_UNIQUE and SQLITE_CONSTRAINT_PRIMARYKEY.
func (SQLite) IsUniqueViolation(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	code := sqErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// DialectFor returns the Dialect for a driver name ("postgres" or "sqlite").
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres{}, nil
	case "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("repository: unsupported driver %q", driver)
	}
}

// Timestamp scans a column stored either as a native timestamp or as text.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("repository: cannot scan %T into timestamp", value)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("repository: unrecognized timestamp %q", s)
}

func (t Timestamp) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
