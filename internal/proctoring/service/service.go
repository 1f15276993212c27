// Package service implements the proctoring session lifecycle: start, update, end, and the read-side
// listing and statistics queries.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"ihire-proctoring/backend/internal/live"
	"ihire-proctoring/backend/internal/proctoring/analytics"
	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/proctoring/repository"
	"ihire-proctoring/backend/internal/telemetry"
)

// DefaultMaxRetries bounds re-reads after a version conflict when Options.MaxRetries is negative.
const DefaultMaxRetries = 3

// Reviewer decides whether a finished session needs human review.
type Reviewer interface {
	Review(ctx context.Context, s *domain.Session, a domain.Analytics, severity domain.Severity) (*domain.ReviewDecision, error)
}

// Publisher receives a snapshot after every successful lifecycle operation.
type Publisher interface {
	Publish(snap live.Snapshot)
}

// Metrics records lifecycle instruments.
type Metrics interface {
	SessionStarted(ctx context.Context, restarted bool)
	SessionUpdated(ctx context.Context, severity string)
	SessionEnded(ctx context.Context, risk int, severity string)
	VersionConflict(ctx context.Context, op string)
}

// Options configures a Service. Nil funcs and collaborators select defaults or are skipped.
type Options struct {
	// HistoryLimit keeps only the newest N detection events per session; 0 keeps all.
	HistoryLimit int
	// MaxRetries bounds re-reads after a concurrent write. Negative selects DefaultMaxRetries.
	MaxRetries int
	// AllowUpdatesAfterEnd accepts update and end on a finished session.
	AllowUpdatesAfterEnd bool
	// DefaultSettings fill in detection settings the client did not send.
	DefaultSettings domain.DetectionSettings

	Now   func() time.Time
	Rand  analytics.RandSource
	NewID func() string

	Reviewer  Reviewer
	Publisher Publisher
	Emitter   telemetry.EventEmitter
	Metrics   Metrics
}

// Service is the session lifecycle controller.
type Service struct {
	repo         repository.Repository
	historyLimit int
	maxRetries   int
	allowAfter   bool
	defaults     domain.DetectionSettings
	now          func() time.Time
	rand         analytics.RandSource
	newID        func() string
	reviewer     Reviewer
	publisher    Publisher
	emitter      telemetry.EventEmitter
	metrics      Metrics
}

// New returns a Service backed by repo.
func New(repo repository.Repository, opts Options) *Service {
	s := &Service{
		repo:         repo,
		historyLimit: opts.HistoryLimit,
		maxRetries:   opts.MaxRetries,
		allowAfter:   opts.AllowUpdatesAfterEnd,
		defaults:     opts.DefaultSettings,
		now:          opts.Now,
		rand:         opts.Rand,
		newID:        opts.NewID,
		reviewer:     opts.Reviewer,
		publisher:    opts.Publisher,
		emitter:      opts.Emitter,
		metrics:      opts.Metrics,
	}
	if s.maxRetries < 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

// StartRequest starts or restarts a session. Nil Settings (or zero fields) use the configured defaults.
type StartRequest struct {
	SessionID string
	MockID    string
	UserEmail string
	Settings  *domain.DetectionSettings
}

// StartResult is the live session after Start. Created is false when an existing row was reset.
type StartResult struct {
	Session *domain.Session
	Created bool
}

// UpdateRequest is one periodic detection sample from the client.
type UpdateRequest struct {
	SessionID       string
	MockID          string
	RiskScore       float64
	DetectionData   json.RawMessage
	Alerts          []domain.Alert
	EnhancedMetrics *domain.EnhancedMetrics
	// Violations are explicit counts added on top of the one-per-alert increments.
	Violations *domain.Counter
}

// EndRequest finalizes a session. FinalDetectionData is stored verbatim in the summary.
type EndRequest struct {
	SessionID          string
	MockID             string
	FinalDetectionData json.RawMessage
}

// EndResult is the finalized session and its summary.
type EndResult struct {
	Session   *domain.Session
	Summary   *domain.SessionSummary
	Analytics domain.Analytics
}

// MockSessions lists the sessions of one interview with a summary block.
type MockSessions struct {
	Sessions []*domain.Session
	Summary  analytics.MockSummary
}

func validateIDs(sessionID, mockID string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(mockID) == "" {
		return domain.ErrMissingIDs
	}
	return nil
}

// Start creates the session, or resets it when (SessionID, MockID) already exists.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := validateIDs(req.SessionID, req.MockID); err != nil {
		return nil, err
	}
	settings := s.settingsFor(req.Settings)

	existing, err := s.repo.Get(ctx, req.SessionID, req.MockID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if existing == nil {
		now := s.now()
		sess := &domain.Session{
			ID:        s.newID(),
			SessionID: req.SessionID,
			MockID:    req.MockID,
			CreatedAt: now,
		}
		sess.ResetAt(now, req.UserEmail, settings)
		err := s.repo.Create(ctx, sess)
		if err == nil {
			s.metrics.SessionStarted(ctx, false)
			s.notify(ctx, telemetry.EventSessionStarted, sess, nil)
			return &StartResult{Session: sess, Created: true}, nil
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		log.Printf("proctoring: concurrent start for session %s/%s, resetting existing row", req.MockID, req.SessionID)
	}

	var out *domain.Session
	err = s.withRetry(ctx, "start", func() error {
		cur, err := s.repo.Get(ctx, req.SessionID, req.MockID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if cur == nil {
			return domain.ErrNotFound
		}
		expected := cur.Version
		cur.ResetAt(s.now(), req.UserEmail, settings)
		if err := s.repo.Save(ctx, cur, expected); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionStarted(ctx, true)
	s.notify(ctx, telemetry.EventSessionStarted, out, nil)
	return &StartResult{Session: out, Created: false}, nil
}

// Update appends one detection sample and its alerts, then recomputes the running risk.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.Session, error) {
	if err := validateIDs(req.SessionID, req.MockID); err != nil {
		return nil, err
	}
	var out *domain.Session
	err := s.withRetry(ctx, "update", func() error {
		cur, err := s.load(ctx, req.SessionID, req.MockID)
		if err != nil {
			return err
		}
		expected := cur.Version
		applyUpdate(cur, req, s.now(), s.historyLimit, s.newID)
		if err := s.repo.Save(ctx, cur, expected); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionUpdated(ctx, string(out.Severity))
	s.notify(ctx, telemetry.EventSessionUpdated, out, nil)
	return out, nil
}

// End finalizes the session: computes analytics over the full history and stores the summary.
func (s *Service) End(ctx context.Context, req EndRequest) (*EndResult, error) {
	if err := validateIDs(req.SessionID, req.MockID); err != nil {
		return nil, err
	}
	if len(req.FinalDetectionData) > 0 && !json.Valid(req.FinalDetectionData) {
		return nil, fmt.Errorf("%w: finalDetectionData is not valid JSON", domain.ErrValidation)
	}
	var out *EndResult
	err := s.withRetry(ctx, "end", func() error {
		cur, err := s.load(ctx, req.SessionID, req.MockID)
		if err != nil {
			return err
		}
		expected := cur.Version
		now := s.now()
		endedAt := now
		if endedAt.Before(cur.StartedAt) {
			endedAt = cur.StartedAt
		}
		duration := analytics.DurationSeconds(cur.StartedAt, endedAt)
		a := analytics.Aggregate(cur.DetectionHistory, cur.Alerts, cur.Violations, duration, s.rand)
		severity := analytics.ClassifySeverity(a.AverageRisk, a.TotalAlerts, a.TotalViolations)

		var decision *domain.ReviewDecision
		if s.reviewer != nil {
			decision, err = s.reviewer.Review(ctx, cur, a, severity)
			if err != nil {
				log.Printf("proctoring: review policy failed for session %s/%s: %v", cur.MockID, cur.SessionID, err)
				decision = nil
			}
		}

		summary := &domain.SessionSummary{
			SessionID:          cur.SessionID,
			MockID:             cur.MockID,
			UserEmail:          cur.UserEmail,
			SessionStartTime:   cur.StartedAt,
			SessionEndTime:     endedAt,
			SessionDuration:    duration,
			FinalRiskScore:     a.AverageRisk,
			FinalSeverityLevel: severity,
			TotalAlerts:        a.TotalAlerts,
			TotalViolations:    a.TotalViolations,
			TotalDetections:    a.TotalDetections,
			SessionAnalytics:   a,
			FinalDetectionData: append(json.RawMessage(nil), req.FinalDetectionData...),
			Review:             decision,
			CompletedAt:        now,
		}
		cur.EndedAt = &endedAt
		cur.DurationSeconds = duration
		cur.RiskScore = a.AverageRisk
		cur.Severity = severity
		cur.Summary = summary
		cur.UpdatedAt = now
		if err := s.repo.Save(ctx, cur, expected); err != nil {
			return err
		}
		out = &EndResult{Session: cur, Summary: summary, Analytics: a}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SessionEnded(ctx, out.Analytics.AverageRisk, string(out.Summary.FinalSeverityLevel))
	meta, _ := json.Marshal(map[string]interface{}{
		"peakRisk":            out.Analytics.PeakRisk,
		"mostCommonViolation": out.Analytics.MostCommonViolation,
		"totalViolations":     out.Analytics.TotalViolations,
		"reviewRequired":      out.Summary.Review != nil && out.Summary.Review.Required,
	})
	s.notify(ctx, telemetry.EventSessionEnded, out.Session, meta)
	return out, nil
}

// Get returns one session.
func (s *Service) Get(ctx context.Context, sessionID, mockID string) (*domain.Session, error) {
	if err := validateIDs(sessionID, mockID); err != nil {
		return nil, err
	}
	sess, err := s.repo.Get(ctx, sessionID, mockID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

// ListByMock returns the sessions of one interview, optionally narrowed to one session ID.
func (s *Service) ListByMock(ctx context.Context, mockID, sessionID string) (*MockSessions, error) {
	if strings.TrimSpace(mockID) == "" {
		return nil, fmt.Errorf("%w: Mock ID is required", domain.ErrValidation)
	}
	sessions, err := s.repo.List(ctx, repository.Filter{MockID: mockID, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	return &MockSessions{Sessions: sessions, Summary: analytics.SummarizeMock(sessions)}, nil
}

// StatisticsReport is the cross-session statistics plus one breakdown row per session.
type StatisticsReport struct {
	analytics.Statistics
	Breakdown []analytics.SessionBreakdown
}

// Statistics computes cross-session statistics over the sessions matching f.
func (s *Service) Statistics(ctx context.Context, f repository.Filter) (*StatisticsReport, error) {
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return nil, fmt.Errorf("%w: endDate is before startDate", domain.ErrValidation)
	}
	sessions, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return &StatisticsReport{
		Statistics: analytics.Summarize(sessions, s.rand),
		Breakdown:  analytics.Breakdown(sessions),
	}, nil
}

// load reads a session that update/end may modify.
func (s *Service) load(ctx context.Context, sessionID, mockID string) (*domain.Session, error) {
	cur, err := s.repo.Get(ctx, sessionID, mockID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if cur == nil {
		return nil, domain.ErrNotFound
	}
	if cur.Ended() && !s.allowAfter {
		return nil, domain.ErrSessionEnded
	}
	return cur, nil
}

// withRetry runs fn, re-running it after a version conflict up to maxRetries times.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		s.metrics.VersionConflict(ctx, op)
	}
	return fmt.Errorf("%s session: %w after %d attempts", op, err, s.maxRetries+1)
}

func (s *Service) settingsFor(in *domain.DetectionSettings) domain.DetectionSettings {
	out := s.defaults
	if in == nil {
		return out
	}
	if in.DetectionIntervalMS > 0 {
		out.DetectionIntervalMS = in.DetectionIntervalMS
	}
	if in.ConfidenceThreshold > 0 {
		out.ConfidenceThreshold = in.ConfidenceThreshold
	}
	if in.MaxViolations > 0 {
		out.MaxViolations = in.MaxViolations
	}
	if in.AlertCooldownMS > 0 {
		out.AlertCooldownMS = in.AlertCooldownMS
	}
	return out
}

type noopMetrics struct{}

func (noopMetrics) SessionStarted(context.Context, bool)      {}
func (noopMetrics) SessionUpdated(context.Context, string)    {}
func (noopMetrics) SessionEnded(context.Context, int, string) {}
func (noopMetrics) VersionConflict(context.Context, string)   {}
