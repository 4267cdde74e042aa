package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration, read once at startup and
// threaded through constructors rather than read from ambient globals.
type Config struct {
	Env  string
	Port string

	DB        DBConfig
	Arango    ArangoConfig
	Pipeline  PipelineConfig
	Firecrawl FirecrawlConfig
	OpenAI    OpenAIConfig
	Research  ResearchConfig
	OTel      OTelConfig
}

// DBConfig configures the pgx pool backing the relational run ledger.
type DBConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// ArangoConfig configures the document store holding each completed run's
// findings/summaries blob.
type ArangoConfig struct {
	Endpoints []string
	Database  string
	User      string
	Password  string
}

// PipelineConfig configures the Redis-backed Event Sink. RedisStreamTTL is
// loaded but not applied: run streams get no expiry and are bounded only by
// the sink's MAXLEN trimming.
type PipelineConfig struct {
	RedisURL        string
	RedisStreamTTL  time.Duration
	StreamKeyPrefix string
}

// FirecrawlConfig configures the Search and Extract clients, which share
// one provider and API key.
type FirecrawlConfig struct {
	APIKey string
}

// OpenAIConfig configures the reasoning-model client shared by the Planner
// and Synthesizer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// ResearchConfig configures the Research Loop's defaults. A request to the
// HTTP handler may override MaxDepth and TimeLimit; the handler passes those
// values through without bounding them.
type ResearchConfig struct {
	MaxDepth             int
	TimeLimit            time.Duration
	MaxFailedAttempts    int
	ReasoningModel       string
	BypassJSONValidation bool
	DebugDir             string
}

// OTelConfig configures optional OTLP export of traces and logs.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Headers        string
}

// Enabled reports whether an OTLP endpoint has been configured.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Load loads configuration from environment variables, applying sensible
// defaults for local development.
func Load() Config {
	return Config{
		Env:  getEnv("RESEARCH_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: DBConfig{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Arango: ArangoConfig{
			Endpoints: []string{getEnv("ARANGO_ENDPOINT", "http://localhost:8529")},
			Database:  getEnv("ARANGO_DATABASE", "research"),
			User:      getEnv("ARANGO_USER", "root"),
			Password:  getEnv("ARANGO_PASSWORD", ""),
		},
		Pipeline: PipelineConfig{
			RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStreamTTL:  getEnvDuration("REDIS_STREAM_TTL", time.Hour),
			StreamKeyPrefix: getEnv("REDIS_STREAM_PREFIX", "research:run:"),
		},
		Firecrawl: FirecrawlConfig{
			APIKey: getEnv("FIRECRAWL_API_KEY", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		Research: ResearchConfig{
			MaxDepth:             getEnvInt("RESEARCH_MAX_DEPTH", 7),
			TimeLimit:            getEnvDuration("RESEARCH_TIME_LIMIT", 4*time.Minute+30*time.Second),
			MaxFailedAttempts:    getEnvInt("RESEARCH_MAX_FAILED_ATTEMPTS", 3),
			ReasoningModel:       getEnv("REASONING_MODEL", "o1-mini"),
			BypassJSONValidation: getEnvBool("BYPASS_JSON_VALIDATION", false),
			DebugDir:             getEnv("RESEARCH_DEBUG_DIR", ""),
		},
		OTel: OTelConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "research-orchestrator"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
	}
}

// buildDSN constructs the database connection string from individual env
// vars, falling back to a single DATABASE_URL if set.
func buildDSN() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "research")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
