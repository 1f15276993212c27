package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ihire-proctoring/backend/internal/db"
	"ihire-proctoring/backend/internal/db/migrate"
	"ihire-proctoring/backend/internal/proctoring/domain"
)

func newSession(sessionID, mockID string, created time.Time) *domain.Session {
	s := &domain.Session{
		ID:        sessionID + "-" + mockID,
		SessionID: sessionID,
		MockID:    mockID,
		CreatedAt: created,
	}
	s.ResetAt(created, "candidate@example.com", domain.DetectionSettings{
		DetectionIntervalMS: 2000,
		ConfidenceThreshold: 0.75,
		MaxViolations:       5,
		AlertCooldownMS:     10000,
	})
	return s
}

// runRepositorySuite exercises the Repository contract against any implementation.
func runRepositorySuite(t *testing.T, newRepo func(t *testing.T) Repository) {
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("get missing returns nil", func(t *testing.T) {
		repo := newRepo(t)
		s, err := repo.Get(context.Background(), "nope", "nope")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if s != nil {
			t.Errorf("Get = %+v, want nil", s)
		}
	})

	t.Run("create and get round trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		s := newSession("s1", "m1", base)
		s.Violations.Inc("tabSwitching", 2)
		s.Violations.Inc("faceDetection", 1)
		s.Devices.Inc("phone", 1)
		s.DetectionHistory = append(s.DetectionHistory, domain.DetectionEvent{
			Timestamp:       base.Add(time.Second),
			RiskScore:       45,
			DetectionData:   json.RawMessage(`{"faceDetection":{"detected":true}}`),
			EnhancedMetrics: &domain.EnhancedMetrics{DeviceType: "phone", FaceQuality: 0.8},
		})
		s.Alerts = append(s.Alerts, domain.Alert{ID: "a1", Type: "tabSwitching", Timestamp: base})
		s.LatestDetection = json.RawMessage(`{"k":1}`)

		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if s.Version != 1 {
			t.Errorf("Version after Create = %d, want 1", s.Version)
		}

		got, err := repo.Get(ctx, "s1", "m1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil {
			t.Fatal("Get returned nil after Create")
		}
		if got.ID != s.ID || got.UserEmail != "candidate@example.com" {
			t.Errorf("identity = %q/%q", got.ID, got.UserEmail)
		}
		if !got.StartedAt.Equal(base) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, base)
		}
		if got.EndedAt != nil {
			t.Error("EndedAt should be nil")
		}
		if got.Severity != domain.SeverityLow {
			t.Errorf("Severity = %q, want low", got.Severity)
		}
		if got.Settings.MaxViolations != 5 || got.Settings.ConfidenceThreshold != 0.75 {
			t.Errorf("Settings = %+v", got.Settings)
		}
		if keys := got.Violations.Keys(); len(keys) != 2 || keys[0] != "tabSwitching" {
			t.Errorf("Violations order = %v, want tabSwitching first", keys)
		}
		if got.Devices.Get("phone") != 1 {
			t.Errorf("Devices = %v", got.Devices.Entries())
		}
		if len(got.DetectionHistory) != 1 || got.DetectionHistory[0].RiskScore != 45 {
			t.Fatalf("DetectionHistory = %+v", got.DetectionHistory)
		}
		if got.DetectionHistory[0].EnhancedMetrics == nil || got.DetectionHistory[0].EnhancedMetrics.DeviceType != "phone" {
			t.Error("enhanced metrics in history should survive storage")
		}
		if len(got.Alerts) != 1 || got.Alerts[0].ID != "a1" {
			t.Errorf("Alerts = %+v", got.Alerts)
		}
		if !strings.Contains(string(got.LatestDetection), `"k"`) {
			t.Errorf("LatestDetection = %s", got.LatestDetection)
		}
		if got.Summary != nil {
			t.Error("Summary should be nil for a live session")
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if err := repo.Create(ctx, newSession("s1", "m1", base)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		dup := newSession("s1", "m1", base)
		dup.ID = "other-id"
		err := repo.Create(ctx, dup)
		if !errors.Is(err, domain.ErrDuplicate) {
			t.Errorf("second Create error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("save with version check", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		s := newSession("s1", "m1", base)
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}

		first, _ := repo.Get(ctx, "s1", "m1")
		second, _ := repo.Get(ctx, "s1", "m1")

		first.RiskScore = 60
		first.Severity = domain.SeverityMedium
		end := base.Add(2 * time.Minute)
		first.EndedAt = &end
		first.DurationSeconds = 120
		first.Summary = &domain.SessionSummary{SessionID: "s1", FinalRiskScore: 60, FinalSeverityLevel: domain.SeverityMedium}
		first.UpdatedAt = end
		if err := repo.Save(ctx, first, first.Version); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if first.Version != 2 {
			t.Errorf("Version after Save = %d, want 2", first.Version)
		}

		second.RiskScore = 10
		err := repo.Save(ctx, second, second.Version)
		if !errors.Is(err, domain.ErrVersionConflict) {
			t.Fatalf("stale Save error = %v, want ErrVersionConflict", err)
		}

		got, _ := repo.Get(ctx, "s1", "m1")
		if got.RiskScore != 60 || got.Version != 2 {
			t.Errorf("stored risk/version = %d/%d, want 60/2", got.RiskScore, got.Version)
		}
		if got.EndedAt == nil || !got.EndedAt.Equal(end) {
			t.Errorf("EndedAt = %v, want %v", got.EndedAt, end)
		}
		if got.Summary == nil || got.Summary.FinalRiskScore != 60 {
			t.Errorf("Summary = %+v", got.Summary)
		}
	})

	t.Run("save missing row conflicts", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.Save(context.Background(), newSession("ghost", "m1", base), 1)
		if !errors.Is(err, domain.ErrVersionConflict) {
			t.Errorf("Save on missing row = %v, want ErrVersionConflict", err)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		a := newSession("s1", "m1", base)
		b := newSession("s2", "m1", base.Add(time.Hour))
		b.UserEmail = "other@example.com"
		c := newSession("s3", "m2", base.Add(2*time.Hour))
		for _, s := range []*domain.Session{c, a, b} {
			if err := repo.Create(ctx, s); err != nil {
				t.Fatalf("Create %s: %v", s.SessionID, err)
			}
		}

		all, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 3 || all[0].SessionID != "s1" || all[2].SessionID != "s3" {
			t.Errorf("List() order = %v", sessionIDs(all))
		}

		byMock, _ := repo.List(ctx, Filter{MockID: "m1"})
		if len(byMock) != 2 {
			t.Errorf("List(mock m1) = %v", sessionIDs(byMock))
		}
		byBoth, _ := repo.List(ctx, Filter{MockID: "m1", SessionID: "s2"})
		if len(byBoth) != 1 || byBoth[0].SessionID != "s2" {
			t.Errorf("List(m1, s2) = %v", sessionIDs(byBoth))
		}
		byUser, _ := repo.List(ctx, Filter{UserEmail: "other@example.com"})
		if len(byUser) != 1 || byUser[0].SessionID != "s2" {
			t.Errorf("List(user) = %v", sessionIDs(byUser))
		}
		from := base.Add(30 * time.Minute)
		to := base.Add(time.Hour)
		byDate, _ := repo.List(ctx, Filter{CreatedFrom: &from, CreatedTo: &to})
		if len(byDate) != 1 || byDate[0].SessionID != "s2" {
			t.Errorf("List(date range) = %v, want [s2]", sessionIDs(byDate))
		}
	})
}

func sessionIDs(sessions []*domain.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.SessionID
	}
	return out
}

func TestMemoryRepository(t *testing.T) {
	runRepositorySuite(t, func(t *testing.T) Repository { return NewMemoryRepository() })
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s := newSession("s1", "m1", time.Now())
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Violations.Inc("x", 1)
	got, _ := repo.Get(ctx, "s1", "m1")
	got.Alerts = append(got.Alerts, domain.Alert{ID: "a"})
	again, _ := repo.Get(ctx, "s1", "m1")
	if again.Violations.Len() != 0 || len(again.Alerts) != 0 {
		t.Error("stored session should not share state with callers")
	}
}

func TestSQLRepository_SQLite(t *testing.T) {
	runRepositorySuite(t, func(t *testing.T) Repository {
		path := filepath.Join(t.TempDir(), "sessions.sqlite")
		if err := migrate.Run(db.DriverSQLite, path, "up"); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		conn, err := db.Open(db.DriverSQLite, path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return NewSQLRepository(conn, SQLite{})
	})
}

func TestSQLRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if !strings.HasPrefix(dsn, "postgres") {
		t.Skip("DATABASE_URL not set to a postgres DSN, skipping integration test")
	}
	runRepositorySuite(t, func(t *testing.T) Repository {
		if err := migrate.Run(db.DriverPostgres, dsn, "up"); err != nil {
			t.Skipf("migrate failed (expected in test environment): %v", err)
		}
		conn, err := db.Open(db.DriverPostgres, dsn)
		if err != nil {
			t.Skipf("Database connection failed: %v", err)
		}
		if _, err := conn.Exec("DELETE FROM proctoring_sessions"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return NewSQLRepository(conn, Postgres{})
	})
}
