package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ihire-proctoring/backend/internal/proctoring/domain"
)

const sessionColumns = `id, session_id, mock_id, user_email, started_at, ended_at, duration_seconds,
	detection_history, alerts, violations, devices, movement_patterns, latest_detection, enhanced_metrics,
	risk_score, severity, settings, summary, version, created_at, updated_at`

// SQLRepository persists sessions in the proctoring_sessions table. JSON columns are JSONB on
// Postgres and TEXT on SQLite; they are (de)serialized only here.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLRepository returns a session repository that uses db with the given dialect.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// Get returns the session for (sessionID, mockID), or nil if not found.
func (r *SQLRepository) Get(ctx context.Context, sessionID, mockID string) (*domain.Session, error) {
	q := r.dialect.Rebind(`SELECT ` + sessionColumns + ` FROM proctoring_sessions WHERE session_id = ? AND mock_id = ?`)
	s, err := scanSession(r.db.QueryRowContext(ctx, q, sessionID, mockID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Create inserts s with version 1. The session must have ID set.
func (r *SQLRepository) Create(ctx context.Context, s *domain.Session) error {
	cols, err := r.encode(s)
	if err != nil {
		return err
	}
	q := r.dialect.Rebind(`INSERT INTO proctoring_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.SessionID, s.MockID, s.UserEmail, cols.startedAt, cols.endedAt, s.DurationSeconds,
		cols.history, cols.alerts, cols.violations, cols.devices, cols.movementPatterns, cols.latestDetection, cols.enhancedMetrics,
		s.RiskScore, string(s.Severity), cols.settings, cols.summary, int64(1), cols.createdAt, cols.updatedAt,
	)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert session: %w", err)
	}
	s.Version = 1
	return nil
}

// Save overwrites all mutable columns when the stored version equals expectedVersion.
func (r *SQLRepository) Save(ctx context.Context, s *domain.Session, expectedVersion int64) error {
	cols, err := r.encode(s)
	if err != nil {
		return err
	}
	q := r.dialect.Rebind(`UPDATE proctoring_sessions SET
		user_email = ?, started_at = ?, ended_at = ?, duration_seconds = ?,
		detection_history = ?, alerts = ?, violations = ?, devices = ?, movement_patterns = ?,
		latest_detection = ?, enhanced_metrics = ?, risk_score = ?, severity = ?, settings = ?, summary = ?,
		version = version + 1, updated_at = ?
		WHERE session_id = ? AND mock_id = ? AND version = ?`)
	res, err := r.db.ExecContext(ctx, q,
		s.UserEmail, cols.startedAt, cols.endedAt, s.DurationSeconds,
		cols.history, cols.alerts, cols.violations, cols.devices, cols.movementPatterns,
		cols.latestDetection, cols.enhancedMetrics, s.RiskScore, string(s.Severity), cols.settings, cols.summary,
		cols.updatedAt,
		s.SessionID, s.MockID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	s.Version = expectedVersion + 1
	return nil
}

// List returns sessions matching f ordered by creation time.
func (r *SQLRepository) List(ctx context.Context, f Filter) ([]*domain.Session, error) {
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
	if f.UserEmail != "" {
		where = append(where, "user_email = ?")
		args = append(args, f.UserEmail)
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, r.dialect.Time(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at <= ?")
		args = append(args, r.dialect.Time(*f.CreatedTo))
	}
	q := `SELECT ` + sessionColumns + ` FROM proctoring_sessions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// encodedColumns holds the storage form of a session's non-scalar fields.
type encodedColumns struct {
	startedAt, endedAt, createdAt, updatedAt  any
	history, alerts, settings                 string
	violations, devices, movementPatterns     string
	latestDetection, enhancedMetrics, summary any
}

func (r *SQLRepository) encode(s *domain.Session) (*encodedColumns, error) {
	c := &encodedColumns{
		startedAt: r.dialect.Time(s.StartedAt),
		createdAt: r.dialect.Time(s.CreatedAt),
		updatedAt: r.dialect.Time(s.UpdatedAt),
	}
	if s.EndedAt != nil {
		c.endedAt = r.dialect.Time(*s.EndedAt)
	}
	history := s.DetectionHistory
	if history == nil {
		history = []domain.DetectionEvent{}
	}
	alerts := s.Alerts
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	var err error
	if c.history, err = marshalString(history); err != nil {
		return nil, fmt.Errorf("encode detection history: %w", err)
	}
	if c.alerts, err = marshalString(alerts); err != nil {
		return nil, fmt.Errorf("encode alerts: %w", err)
	}
	if c.settings, err = marshalString(s.Settings); err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	for _, counter := range []struct {
		dst *string
		src *domain.Counter
	}{{&c.violations, s.Violations}, {&c.devices, s.Devices}, {&c.movementPatterns, s.MovementPatterns}} {
		b, err := counter.src.MarshalEntries()
		if err != nil {
			return nil, fmt.Errorf("encode counter: %w", err)
		}
		*counter.dst = string(b)
	}
	if len(s.LatestDetection) > 0 {
		if !json.Valid(s.LatestDetection) {
			return nil, errors.New("encode latest detection: invalid JSON")
		}
		c.latestDetection = string(s.LatestDetection)
	}
	if s.EnhancedMetrics != nil {
		if c.enhancedMetrics, err = marshalString(s.EnhancedMetrics); err != nil {
			return nil, fmt.Errorf("encode enhanced metrics: %w", err)
		}
	}
	if s.Summary != nil {
		if c.summary, err = marshalString(s.Summary); err != nil {
			return nil, fmt.Errorf("encode summary: %w", err)
		}
	}
	return c, nil
}

func marshalString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                                         domain.Session
		startedAt, endedAt, createdAt, updatedAt  Timestamp
		history, alerts, settings                 []byte
		violations, devices, movementPatterns     []byte
		latestDetection, enhancedMetrics, summary []byte
		severity                                  string
	)
	err := row.Scan(
		&s.ID, &s.SessionID, &s.MockID, &s.UserEmail, &startedAt, &endedAt, &s.DurationSeconds,
		&history, &alerts, &violations, &devices, &movementPatterns, &latestDetection, &enhancedMetrics,
		&s.RiskScore, &severity, &settings, &summary, &s.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.StartedAt = startedAt.Time
	s.EndedAt = endedAt.ptr()
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	s.Severity = domain.Severity(severity)

	s.DetectionHistory = []domain.DetectionEvent{}
	if err := unmarshalIfPresent(history, &s.DetectionHistory); err != nil {
		return nil, fmt.Errorf("decode detection history: %w", err)
	}
	s.Alerts = []domain.Alert{}
	if err := unmarshalIfPresent(alerts, &s.Alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	if err := unmarshalIfPresent(settings, &s.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.Violations, s.Devices, s.MovementPatterns = domain.NewCounter(), domain.NewCounter(), domain.NewCounter()
	for _, counter := range []struct {
		src []byte
		dst *domain.Counter
	}{{violations, s.Violations}, {devices, s.Devices}, {movementPatterns, s.MovementPatterns}} {
		if err := counter.dst.UnmarshalJSON(counter.src); err != nil {
			return nil, fmt.Errorf("decode counter: %w", err)
		}
	}
	if len(latestDetection) > 0 {
		s.LatestDetection = json.RawMessage(append([]byte(nil), latestDetection...))
	}
	if len(enhancedMetrics) > 0 {
		s.EnhancedMetrics = &domain.EnhancedMetrics{}
		if err := json.Unmarshal(enhancedMetrics, s.EnhancedMetrics); err != nil {
			return nil, fmt.Errorf("decode enhanced metrics: %w", err)
		}
	}
	if len(summary) > 0 {
		s.Summary = &domain.SessionSummary{}
		if err := json.Unmarshal(summary, s.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	return &s, nil
}

func unmarshalIfPresent(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
