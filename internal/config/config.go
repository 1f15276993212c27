// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Supported values for DATABASE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the JSON API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseDriver selects the session store: postgres, sqlite, or memory.
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	// DatabaseURL is the DSN for the selected driver (Postgres URL or SQLite file path). Unused for memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as service.name on all telemetry.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables the event producer.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic for proctoring lifecycle events.
	KafkaTopic string `mapstructure:"PROCTORING_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes consumed events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// JWTPublicKey is the identity provider's PEM public key or a path to it. Empty disables bearer auth.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the expected iss claim of identity provider tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim of identity provider tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// ReviewPolicyPath is an optional Rego file that replaces the built-in review policy.
	ReviewPolicyPath string `mapstructure:"REVIEW_POLICY_PATH"`

	// HistoryLimit caps retained detection history per session; 0 keeps everything.
	HistoryLimit int `mapstructure:"HISTORY_LIMIT"`
	// UpdateMaxRetries bounds re-reads after a concurrent write to the same session.
	UpdateMaxRetries int `mapstructure:"UPDATE_MAX_RETRIES"`
	// AllowUpdatesAfterEnd accepts update/end calls on an ended session (legacy behavior).
	AllowUpdatesAfterEnd bool `mapstructure:"ALLOW_UPDATES_AFTER_END"`

	// Default detection settings stored on sessions started without explicit settings.
	DefaultDetectionIntervalMS int     `mapstructure:"DEFAULT_DETECTION_INTERVAL_MS"`
	DefaultConfidenceThreshold float64 `mapstructure:"DEFAULT_CONFIDENCE_THRESHOLD"`
	DefaultMaxViolations       int     `mapstructure:"DEFAULT_MAX_VIOLATIONS"`
	DefaultAlertCooldownMS     int     `mapstructure:"DEFAULT_ALERT_COOLDOWN_MS"`
}

// defaultSQLitePath is the database file used when DATABASE_DRIVER=sqlite has no DATABASE_URL.
const defaultSQLitePath = "proctoring.sqlite"

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "ihire-proctoring")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("PROCTORING_KAFKA_TOPIC", "ihire-proctoring")
	v.SetDefault("KAFKA_GROUP_ID", "ihire-proctoring-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("REVIEW_POLICY_PATH", "")
	v.SetDefault("HISTORY_LIMIT", 0)
	v.SetDefault("UPDATE_MAX_RETRIES", 3)
	v.SetDefault("ALLOW_UPDATES_AFTER_END", false)
	v.SetDefault("DEFAULT_DETECTION_INTERVAL_MS", 2000)
	v.SetDefault("DEFAULT_CONFIDENCE_THRESHOLD", 0.75)
	v.SetDefault("DEFAULT_MAX_VIOLATIONS", 5)
	v.SetDefault("DEFAULT_ALERT_COOLDOWN_MS", 10000)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
		if cfg.DatabaseURL == "" && cfg.DatabaseDriver == DriverSQLite {
			cfg.DatabaseURL = defaultSQLitePath
		}
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set for " + cfg.DatabaseDriver)
		}
	case DriverMemory:
		if cfg.Env == "production" {
			return nil, errors.New("config: DATABASE_DRIVER=memory must not be used when APP_ENV=production")
		}
	default:
		return nil, errors.New("config: DATABASE_DRIVER must be postgres, sqlite, or memory")
	}

	if cfg.HistoryLimit < 0 {
		return nil, errors.New("config: HISTORY_LIMIT must not be negative")
	}
	if cfg.UpdateMaxRetries < 0 {
		return nil, errors.New("config: UPDATE_MAX_RETRIES must not be negative")
	}
	if cfg.DefaultConfidenceThreshold < 0 || cfg.DefaultConfidenceThreshold > 1 {
		return nil, errors.New("config: DEFAULT_CONFIDENCE_THRESHOLD must be between 0 and 1")
	}

	return &cfg, nil
}

// AuthEnabled reports whether bearer tokens from the identity provider are required.
func (c *Config) AuthEnabled() bool {
	return c != nil && strings.TrimSpace(c.JWTPublicKey) != ""
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event producer is enabled (non-empty list) and to create it.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
