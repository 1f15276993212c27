package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ihire-proctoring/backend/internal/audit/domain"
	sessionrepo "ihire-proctoring/backend/internal/proctoring/repository"
)

const auditColumns = `id, user_id, action, resource, session_id, mock_id, ip, metadata, created_at`

// SQLRepository stores audit logs in the audit_logs table of the session database.
type SQLRepository struct {
	db      *sql.DB
	dialect sessionrepo.Dialect
}

// NewSQLRepository returns an audit log repository that uses db with the given dialect.
func NewSQLRepository(db *sql.DB, dialect sessionrepo.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// List returns the newest audit logs matching f.
func (r *SQLRepository) List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.MockID != "" {
		where = append(where, "mock_id = ?")
		args = append(args, f.MockID)
	}
	q := `SELECT ` + auditColumns + ` FROM audit_logs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, f.EffectiveLimit())

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The audit log must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	q := r.dialect.Rebind(`INSERT INTO audit_logs (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.UserID, a.Action, a.Resource, a.SessionID, a.MockID, a.IP, meta, r.dialect.Time(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var (
		a       domain.AuditLog
		meta    sql.NullString
		created sessionrepo.Timestamp
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Action, &a.Resource, &a.SessionID, &a.MockID, &a.IP, &meta, &created); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	if meta.Valid {
		a.Metadata = meta.String
	}
	a.CreatedAt = created.Time
	return &a, nil
}
