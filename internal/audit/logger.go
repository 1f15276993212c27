package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"ihire-proctoring/backend/internal/audit/domain"
	auditrepo "ihire-proctoring/backend/internal/audit/repository"
)

// AnonymousUserID is the user_id recorded for requests without a verified identity (auth disabled).
const AnonymousUserID = "_anonymous"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Event is one audited API call.
type Event struct {
	UserID   string
	Action   string
	Resource string
	Target   Target
	Metadata string
}

// AuditLogger records audit events. LogEvent is best-effort: failures are logged and do not
// affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, ev Event)
}

// Logger implements AuditLogger on top of the audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	now         func() time.Time
	newID       func() string
}

// NewLogger returns a Logger that persists to repo. ipExtractor may be nil; the IP is then
// recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{
		repo:        repo,
		ipExtractor: ipExtractor,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// LogEvent writes one audit log entry.
func (l *Logger) LogEvent(ctx context.Context, ev Event) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	userID := ev.UserID
	if userID == "" {
		userID = AnonymousUserID
	}
	entry := &domain.AuditLog{
		ID:        l.newID(),
		UserID:    userID,
		Action:    ev.Action,
		Resource:  ev.Resource,
		SessionID: ev.Target.SessionID,
		MockID:    ev.Target.MockID,
		IP:        ip,
		Metadata:  ev.Metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", ev.Action, ev.Resource, err)
	}
}

// Trail returns the recorded audit logs for one proctoring session or interview.
func (l *Logger) Trail(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	out, err := l.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*domain.AuditLog{}
	}
	return out, nil
}
