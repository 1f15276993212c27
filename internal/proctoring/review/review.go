// Package review decides, with an OPA Rego policy, whether a finished session needs human review.
package review

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"ihire-proctoring/backend/internal/proctoring/domain"
)

// Query is the policy document every review policy must define. It must produce an object
// with review_required (bool) and reasons (set of strings).
const Query = "data.ihire.proctoring.review"

//go:embed default.rego
var defaultPolicy string

// Evaluator evaluates a compiled review policy.
type Evaluator struct {
	query rego.PreparedEvalQuery
}

// New compiles policy; an empty policy uses the built-in one.
func New(ctx context.Context, policy string) (*Evaluator, error) {
	if policy == "" {
		policy = defaultPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"review.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile review policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(Query),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare review policy: %w", err)
	}
	return &Evaluator{query: q}, nil
}

// Load reads a Rego file from path, or uses the built-in policy when path is empty.
func Load(ctx context.Context, path string) (*Evaluator, error) {
	if path == "" {
		return New(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read review policy: %w", err)
	}
	return New(ctx, string(b))
}

// Input builds the policy input document for a finished session.
func Input(s *domain.Session, a domain.Analytics, severity domain.Severity) map[string]interface{} {
	violations := make(map[string]interface{}, s.Violations.Len())
	for _, e := range s.Violations.Entries() {
		violations[e.Type] = e.Count
	}
	return map[string]interface{}{
		"session_id":       s.SessionID,
		"mock_id":          s.MockID,
		"severity":         string(severity),
		"average_risk":     a.AverageRisk,
		"peak_risk":        a.PeakRisk,
		"total_alerts":     a.TotalAlerts,
		"total_violations": a.TotalViolations,
		"max_violations":   s.Settings.MaxViolations,
		"duration_seconds": a.SessionDuration,
		"violations":       violations,
	}
}

// Review evaluates the policy for a finished session.
func (e *Evaluator) Review(ctx context.Context, s *domain.Session, a domain.Analytics, severity domain.Severity) (*domain.ReviewDecision, error) {
	return e.eval(ctx, Input(s, a, severity))
}

func (e *Evaluator) eval(ctx context.Context, input map[string]interface{}) (*domain.ReviewDecision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("eval review policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, errors.New("review policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("review policy result is %T, want object", rs[0].Expressions[0].Value)
	}
	out := &domain.ReviewDecision{Reasons: []string{}}
	if v, ok := doc["review_required"].(bool); ok {
		out.Required = v
	}
	if reasons, ok := doc["reasons"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				out.Reasons = append(out.Reasons, s)
			}
		}
	}
	slices.Sort(out.Reasons)
	return out, nil
}

// HealthCheck verifies the compiled policy evaluates against a minimal session.
func (e *Evaluator) HealthCheck(ctx context.Context) error {
	s := &domain.Session{SessionID: "health", MockID: "health", Violations: domain.NewCounter()}
	if _, err := e.Review(ctx, s, domain.Analytics{}, domain.SeverityLow); err != nil {
		log.Printf("review: health check failed: %v", err)
		return err
	}
	return nil
}
