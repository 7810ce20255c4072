package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/ticket-intake/internal/confidence"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Store     StoreConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Oracle    OracleConfig
	Lifecycle LifecycleConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects where tickets and the memory log live.
type StoreConfig struct {
	Backend     string // "file", "postgres" or "memory"
	TicketsPath string
	MemoryPath  string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	EventsChannel   string
	LeaseKey        string
	LeaseTTLSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// OracleConfig selects the language-model provider.
type OracleConfig struct {
	Provider       string // "none", "openai", "azure", "bedrock"
	Model          string
	APIKey         string
	Endpoint       string
	APIVersion     string
	Region         string
	TimeoutSeconds int
	MaxTokens      int
}

// LifecycleConfig holds the ticket state machine knobs.
type LifecycleConfig struct {
	CloseThreshold      float64
	PollIntervalSeconds int
	ConfidencePolicy    string
	CreatedBy           string
	Reviewer            string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	threshold, err := strconv.ParseFloat(getEnv("CONFIDENCE_CLOSE_THRESHOLD", "0.85"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIDENCE_CLOSE_THRESHOLD: %w", err)
	}
	pollInterval, err := strconv.Atoi(getEnv("POLL_INTERVAL_SECONDS", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-intake"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE_BACKEND", "file")),
			TicketsPath: getEnv("TICKETS_PATH", "data/tickets.json"),
			MemoryPath:  getEnv("MEMORY_PATH", "data/memory.json"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:            os.Getenv("REDIS_ADDR"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			EventsChannel:   getEnv("REDIS_EVENTS_CHANNEL", "ticket-events"),
			LeaseKey:        getEnv("REDIS_RECONCILE_LEASE_KEY", "ticket-intake:reconcile-lease"),
			LeaseTTLSeconds: getEnvAsInt("REDIS_RECONCILE_LEASE_TTL_SECONDS", 300),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Oracle: OracleConfig{
			Provider:       strings.ToLower(getEnv("ORACLE_PROVIDER", "none")),
			Model:          getEnv("ORACLE_MODEL", os.Getenv("AZURE_OPENAI_DEPLOYMENT")),
			APIKey:         getEnv("ORACLE_API_KEY", os.Getenv("AZURE_OPENAI_API_KEY")),
			Endpoint:       getEnv("ORACLE_ENDPOINT", os.Getenv("AZURE_OPENAI_ENDPOINT")),
			APIVersion:     getEnv("ORACLE_API_VERSION", "2024-02-15-preview"),
			Region:         getEnv("ORACLE_REGION", "us-east-1"),
			TimeoutSeconds: getEnvAsInt("ORACLE_TIMEOUT_SECONDS", 30),
			MaxTokens:      getEnvAsInt("ORACLE_MAX_TOKENS", 300),
		},
		Lifecycle: LifecycleConfig{
			CloseThreshold:      threshold,
			PollIntervalSeconds: pollInterval,
			ConfidencePolicy:    getEnv("CONFIDENCE_POLICY", "default"),
			CreatedBy:           getEnv("TICKET_CREATED_BY", "chat-user"),
			Reviewer:            getEnv("TICKET_REVIEWER", "chat-user"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Lifecycle.CloseThreshold <= 0 || c.Lifecycle.CloseThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_CLOSE_THRESHOLD must be in (0, 1], got %v", c.Lifecycle.CloseThreshold)
	}
	if c.Lifecycle.PollIntervalSeconds <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.Lifecycle.PollIntervalSeconds)
	}
	if _, err := confidence.PolicyByName(c.Lifecycle.ConfidencePolicy); err != nil {
		return fmt.Errorf("invalid CONFIDENCE_POLICY: %w", err)
	}
	switch c.Store.Backend {
	case "file", "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (supported: file, postgres, memory)", c.Store.Backend)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the reconciliation cadence.
func (l LifecycleConfig) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalSeconds) * time.Second
}

// Timeout returns the per-call oracle timeout.
func (o OracleConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// LeaseTTL returns how long one process may hold the reconciliation lease.
func (r RedisConfig) LeaseTTL() time.Duration {
	return time.Duration(r.LeaseTTLSeconds) * time.Second
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
