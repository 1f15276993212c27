package handler

import (
	"context"
	"log"
	"time"
)

// Component and overall status values reported by the health check.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusSkipped  = "skipped"
	StatusDegraded = "degraded"
)

// checkTimeout bounds each dependency probe.
const checkTimeout = 2 * time.Second

// Pinger reports database reachability (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker reports whether the review policy evaluates (e.g. *review.Evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Report is the readiness result.
type Report struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Policy   string `json:"policy"`
}

// Serving reports whether every configured dependency is healthy.
func (r Report) Serving() bool {
	return r.Status == StatusOK
}

// Checker probes the service's dependencies. Nil dependencies are reported as skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. pinger and policy may be nil.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check runs each probe with a short timeout. Failures are logged and reported, never returned.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Status: StatusOK, Database: StatusSkipped, Policy: StatusSkipped}
	if c.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.pinger.PingContext(pctx)
		cancel()
		if err != nil {
			log.Printf("health: database ping failed: %v", err)
			r.Database = StatusError
			r.Status = StatusDegraded
		} else {
			r.Database = StatusOK
		}
	}
	if c.policy != nil {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.policy.HealthCheck(pctx)
		cancel()
		if err != nil {
			log.Printf("health: policy check failed: %v", err)
			r.Policy = StatusError
			r.Status = StatusDegraded
		} else {
			r.Policy = StatusOK
		}
	}
	return r
}
