package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func servingStatus(t *testing.T, checker *Checker, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	hs := NewServer()
	Refresh(context.Background(), hs, checker)
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return resp.GetStatus()
}

func TestChecker(t *testing.T) {
	testCases := []struct {
		name   string
		pinger Pinger
		policy PolicyChecker
		want   Report
	}{
		{"nothing configured", nil, nil, Report{StatusOK, StatusSkipped, StatusSkipped}},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, Report{StatusOK, StatusOK, StatusOK}},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, Report{StatusDegraded, StatusError, StatusOK}},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, Report{StatusDegraded, StatusOK, StatusError}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewChecker(tc.pinger, tc.policy).Check(context.Background())
			if got != tc.want {
				t.Errorf("Check = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestHealthCheck_Serving(t *testing.T) {
	checker := NewChecker(&mockPinger{}, &mockPolicyChecker{})
	for _, service := range []string{"", ServiceName} {
		if got := servingStatus(t, checker, service); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("status(%q) = %v, want SERVING", service, got)
		}
	}
}

func TestHealthCheck_PingerFailure(t *testing.T) {
	checker := NewChecker(&mockPinger{pingErr: errors.New("connection refused")}, nil)
	if got := servingStatus(t, checker, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
}

func TestHealthCheck_PolicyCheckerFailure(t *testing.T) {
	checker := NewChecker(nil, &mockPolicyChecker{healthErr: errors.New("rego compile failed")})
	if got := servingStatus(t, checker, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	hs := NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, hs, NewChecker(nil, nil), 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v, want NOT_SERVING", resp.GetStatus())
	}
}
