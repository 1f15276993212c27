// seed inserts development sample sessions for local testing through the session service.
// Idempotent: skips when the first sample session already exists.
// With -private-key (PEM or path) it also prints dev bearer tokens signed for JWT_ISSUER/JWT_AUDIENCE.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"ihire-proctoring/backend/internal/config"
	"ihire-proctoring/backend/internal/platform/rbac"
	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/proctoring/review"
	"ihire-proctoring/backend/internal/proctoring/service"
	"ihire-proctoring/backend/internal/security"
	"ihire-proctoring/backend/internal/store"
)

const (
	devMockID         = "dev-mock-001"
	devCandidateEmail = "candidate@example.com"
	devRecruiterEmail = "recruiter@example.com"
	devTokenTTL       = 24 * time.Hour
)

// sample is one seeded session: the risk of each detection sample and the alerts raised with it.
type sample struct {
	sessionID string
	email     string
	risks     []float64
	alerts    map[int][]string // sample index -> alert types
	end       bool
}

var samples = []sample{
	{
		sessionID: "dev-session-001",
		email:     devCandidateEmail,
		risks:     []float64{12, 18, 45, 65, 30},
		alerts:    map[int][]string{2: {domain.ViolationFaceDetection}, 3: {domain.ViolationPhoneDetection, domain.ViolationEyeTracking}},
		end:       true,
	},
	{
		sessionID: "dev-session-002",
		email:     "other.candidate@example.com",
		risks:     []float64{80, 85, 72, 90},
		alerts:    map[int][]string{0: {domain.ViolationMultipleFaces}, 1: {domain.ViolationTabSwitching}, 3: {domain.ViolationMultipleFaces}},
		end:       true,
	},
	{
		sessionID: "dev-session-003",
		email:     "live.candidate@example.com",
		risks:     []float64{5, 8},
	},
}

func main() {
	privateKey := flag.String("private-key", "", "PEM private key (or path) used to print dev bearer tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	reviewer, err := review.Load(ctx, cfg.ReviewPolicyPath)
	if err != nil {
		log.Fatalf("review policy: %v", err)
	}
	svc := service.New(st.Sessions, service.Options{
		MaxRetries: cfg.UpdateMaxRetries,
		DefaultSettings: domain.DetectionSettings{
			DetectionIntervalMS: cfg.DefaultDetectionIntervalMS,
			ConfidenceThreshold: cfg.DefaultConfidenceThreshold,
			MaxViolations:       cfg.DefaultMaxViolations,
			AlertCooldownMS:     cfg.DefaultAlertCooldownMS,
		},
		Reviewer: reviewer,
	})

	_, err = svc.Get(ctx, samples[0].sessionID, devMockID)
	switch {
	case err == nil:
		log.Printf("Seed already applied (%s exists). Skipping sessions.", samples[0].sessionID)
	case errors.Is(err, domain.ErrNotFound):
		for _, s := range samples {
			if err := seedSession(ctx, svc, s); err != nil {
				log.Fatalf("seed %s: %v", s.sessionID, err)
			}
		}
		log.Println("Seed completed successfully.")
	default:
		log.Fatalf("seed check: %v", err)
	}

	if *privateKey != "" {
		if err := printTokens(*privateKey, cfg.JWTIssuer, cfg.JWTAudience); err != nil {
			log.Fatalf("dev tokens: %v", err)
		}
	}
}

func seedSession(ctx context.Context, svc *service.Service, s sample) error {
	if _, err := svc.Start(ctx, service.StartRequest{SessionID: s.sessionID, MockID: devMockID, UserEmail: s.email}); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	for i, risk := range s.risks {
		req := service.UpdateRequest{
			SessionID:     s.sessionID,
			MockID:        devMockID,
			RiskScore:     risk,
			DetectionData: json.RawMessage(fmt.Sprintf(`{"sample":%d,"riskScore":%g}`, i, risk)),
			EnhancedMetrics: &domain.EnhancedMetrics{
				FaceQuality:     0.9,
				MovementPattern: "normal",
				AudioAvailable:  true,
			},
		}
		for _, t := range s.alerts[i] {
			req.Alerts = append(req.Alerts, domain.Alert{
				Type:       t,
				Severity:   "medium",
				Message:    "seeded " + t + " alert",
				Confidence: 0.8,
				RiskScore:  risk,
			})
			if t == domain.ViolationPhoneDetection {
				req.EnhancedMetrics.DeviceType = "phone"
			}
		}
		if _, err := svc.Update(ctx, req); err != nil {
			return fmt.Errorf("update %d: %w", i, err)
		}
	}
	if !s.end {
		return nil
	}
	if _, err := svc.End(ctx, service.EndRequest{SessionID: s.sessionID, MockID: devMockID}); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	return nil
}

func printTokens(privateKeyPEM, issuer, audience string) error {
	key, err := security.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return err
	}
	signer := security.NewSigner(key, issuer, audience, devTokenTTL)
	for _, id := range []security.Identity{
		{UserID: "dev-candidate-001", Email: devCandidateEmail, Role: rbac.RoleCandidate},
		{UserID: "dev-recruiter-001", Email: devRecruiterEmail, Role: rbac.RoleRecruiter},
	} {
		token, expiresAt, err := signer.Issue(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s, expires %s):\n%s\n\n", id.Email, id.Role, expiresAt.Format(time.RFC3339), token)
	}
	return nil
}
