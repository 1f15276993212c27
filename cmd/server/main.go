// Server runs the proctoring HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"ihire-proctoring/backend/internal/audit"
	"ihire-proctoring/backend/internal/config"
	healthhandler "ihire-proctoring/backend/internal/health/handler"
	"ihire-proctoring/backend/internal/live"
	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/proctoring/review"
	"ihire-proctoring/backend/internal/proctoring/service"
	"ihire-proctoring/backend/internal/security"
	"ihire-proctoring/backend/internal/server"
	"ihire-proctoring/backend/internal/server/middleware"
	"ihire-proctoring/backend/internal/store"
	"ihire-proctoring/backend/internal/telemetry"
	otelsetup "ihire-proctoring/backend/internal/telemetry/otel"
	"ihire-proctoring/backend/internal/telemetry/producer"
)

const (
	meterName          = "ihire-proctoring/session"
	healthPollInterval = 15 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	metrics, err := otelsetup.NewSessionMetrics(providers.MeterProvider.Meter(meterName))
	if err != nil {
		log.Fatalf("telemetry: metrics: %v", err)
	}

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	emitters := []telemetry.EventEmitter{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(producer.Config{Brokers: cfg.KafkaBrokersList(), Topic: cfg.KafkaTopic})
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitters = append(emitters, kafkaProducer)
		log.Printf("kafka: publishing lifecycle events to %s", cfg.KafkaTopic)
	}
	emitter := telemetry.Multi(emitters...)

	reviewer, err := review.Load(ctx, cfg.ReviewPolicyPath)
	if err != nil {
		log.Fatalf("review policy: %v", err)
	}

	hub := live.NewHub()
	svc := service.New(st.Sessions, service.Options{
		HistoryLimit:         cfg.HistoryLimit,
		MaxRetries:           cfg.UpdateMaxRetries,
		AllowUpdatesAfterEnd: cfg.AllowUpdatesAfterEnd,
		DefaultSettings: domain.DetectionSettings{
			DetectionIntervalMS: cfg.DefaultDetectionIntervalMS,
			ConfidenceThreshold: cfg.DefaultConfidenceThreshold,
			MaxViolations:       cfg.DefaultMaxViolations,
			AlertCooldownMS:     cfg.DefaultAlertCooldownMS,
		},
		Reviewer:  reviewer,
		Publisher: hub,
		Emitter:   emitter,
		Metrics:   metrics,
	})

	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled() {
		v, err := security.NewVerifierFromPEM(cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
		verifier = v
	} else {
		log.Println("auth: JWT_PUBLIC_KEY not set; API is unauthenticated")
	}

	var pinger healthhandler.Pinger
	if st.DB != nil {
		pinger = st.DB
	}
	checker := healthhandler.NewChecker(pinger, reviewer)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewHTTPHandler(server.Deps{
			Service:     svc,
			Hub:         hub,
			Verifier:    verifier,
			AuditLogger: audit.NewLogger(st.Audit, middleware.ClientIPFromContext),
			Emitter:     emitter,
			Health:      checker,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		hs := healthhandler.NewServer()
		go healthhandler.Watch(ctx, hs, checker, healthPollInterval)
		grpcSrv = server.NewGRPCServer(hs)
		go func() {
			log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("shutting down servers...")

	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	defer drainCancel()
	if err := telemetry.Drain(drainCtx); err != nil {
		log.Printf("telemetry drain: %v", err)
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer flushCancel()
	if err := providers.Shutdown(flushCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("servers stopped")
}
