package audit

import "context"

// Target names the proctoring session an audited request acted on.
type Target struct {
	SessionID string
	MockID    string
}

type targetKey struct{}

// WithTarget returns a context carrying an empty target for handlers to fill with SetTarget.
// The returned pointer observes what the handler recorded once it returns.
func WithTarget(ctx context.Context) (context.Context, *Target) {
	t := &Target{}
	return context.WithValue(ctx, targetKey{}, t), t
}

// SetTarget records the session a request acts on. It is a no-op when ctx has no target,
// so handlers may call it unconditionally.
func SetTarget(ctx context.Context, sessionID, mockID string) {
	if t, ok := ctx.Value(targetKey{}).(*Target); ok {
		t.SessionID, t.MockID = sessionID, mockID
	}
}
