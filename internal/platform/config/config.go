// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends selectable through ROSTER_STORE.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ROSTER_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"ROSTER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"ROSTER_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"ROSTER_LOG_FORMAT" envDefault:"json"`
	Backend         string        `env:"ROSTER_STORE" envDefault:"memory"`

	Auth         AuthConfig
	Registration RegistrationConfig
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Audit        AuditConfig
	RateLimit    RateLimitConfig
	Documents    DocumentsConfig
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	// Use a default for development; should be overridden in production.
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"roster"`
	JWTAudience   string `env:"JWT_AUDIENCE" envDefault:"roster-api"`
}

// RegistrationConfig bounds the optimistic concurrency retry loop.
type RegistrationConfig struct {
	MaxAttempts    int           `env:"ROSTER_CAS_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff   time.Duration `env:"ROSTER_CAS_RETRY_BACKOFF" envDefault:"5ms"`
	RequestTimeout time.Duration `env:"ROSTER_REQUEST_TIMEOUT" envDefault:"5s"`
}

type PostgresConfig struct {
	DSN             string        `env:"ROSTER_POSTGRES_DSN"`
	MaxOpenConns    int           `env:"ROSTER_POSTGRES_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"ROSTER_POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"ROSTER_POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type MongoConfig struct {
	URI      string `env:"ROSTER_MONGO_URI"`
	Database string `env:"ROSTER_MONGO_DATABASE" envDefault:"roster"`
}

type RedisConfig struct {
	URL          string        `env:"ROSTER_REDIS_URL"`
	PoolSize     int           `env:"ROSTER_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"ROSTER_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"ROSTER_REDIS_DIAL_TIMEOUT" envDefault:"2s"`
	ReadTimeout  time.Duration `env:"ROSTER_REDIS_READ_TIMEOUT" envDefault:"1s"`
	WriteTimeout time.Duration `env:"ROSTER_REDIS_WRITE_TIMEOUT" envDefault:"1s"`
	CacheTTL     time.Duration `env:"ROSTER_TEMPLATE_CACHE_TTL" envDefault:"5m"`
}

type KafkaConfig struct {
	Brokers           []string `env:"ROSTER_KAFKA_BROKERS" envSeparator:","`
	AuditTopic        string   `env:"ROSTER_KAFKA_AUDIT_TOPIC" envDefault:"roster.audit"`
	Partitions        int32    `env:"ROSTER_KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"ROSTER_KAFKA_REPLICATION_FACTOR" envDefault:"1"`
	// ProjectionGroup is the consumer group copying audit events into Postgres.
	ProjectionGroup string `env:"ROSTER_KAFKA_PROJECTION_GROUP" envDefault:"roster-audit-projector"`
}

type AuditConfig struct {
	// AsyncBuffer > 0 makes audit emission non-blocking.
	AsyncBuffer int `env:"ROSTER_AUDIT_ASYNC_BUFFER" envDefault:"256"`
	// FailureThreshold consecutive Kafka failures divert events to the fallback sink.
	FailureThreshold int           `env:"ROSTER_AUDIT_FAILURE_THRESHOLD" envDefault:"5"`
	ProbeInterval    time.Duration `env:"ROSTER_AUDIT_PROBE_INTERVAL" envDefault:"5s"`
}

// RateLimitConfig caps mutating requests per caller.
type RateLimitConfig struct {
	Enabled  bool          `env:"ROSTER_RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests int           `env:"ROSTER_RATE_LIMIT_REQUESTS" envDefault:"30"`
	Window   time.Duration `env:"ROSTER_RATE_LIMIT_WINDOW" envDefault:"1m"`
}

type DocumentsConfig struct {
	// BaseURL prefixes object keys to form download links.
	BaseURL string `env:"ROSTER_DOCUMENTS_BASE_URL" envDefault:"http://localhost:8080/files"`
	// Root is a local directory mirroring bucket keys; empty uses an in-memory listing.
	Root string `env:"ROSTER_DOCUMENTS_ROOT"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("ROSTER_POSTGRES_DSN is required for the postgres backend")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("ROSTER_MONGO_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("ROSTER_RATE_LIMIT_REQUESTS and ROSTER_RATE_LIMIT_WINDOW must be positive")
	}
	if c.Registration.MaxAttempts < 1 {
		return fmt.Errorf("ROSTER_CAS_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
