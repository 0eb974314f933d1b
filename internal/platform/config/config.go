// Package config loads runtime configuration from the environment, with an
// optional YAML file for analysis thresholds.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"insight/internal/report"
	ustrings "insight/pkg/platform/strings"
)

// Config is the full runtime configuration of the server and the weekly job.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Embedding  EmbeddingConfig
	LLM        LLMConfig
	Slack      SlackConfig
	Kafka      KafkaConfig
	Notify     NotifyConfig
	Metrics    MetricsConfig
	Logging    LoggingConfig
	Thresholds report.Thresholds
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr string
	// JWTSigningKey enables the HS256 bearer guard on ingestion routes when set.
	JWTSigningKey string
	JWTIssuer     string
}

// DatabaseConfig configures Postgres. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	TxTimeout    time.Duration
}

// RedisConfig configures the run lease backend. An empty URL selects the
// in-process lease.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LeaseTTL     time.Duration
}

// EmbeddingConfig configures the embedding generator.
type EmbeddingConfig struct {
	Provider   string
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	BatchSize  int
}

// LLMConfig configures the narrative enhancement providers. A provider with
// no API key is skipped.
type LLMConfig struct {
	GrokAPIKey   string
	GrokURL      string
	GrokModel    string
	OpenAIAPIKey string
	OpenAIURL    string
	OpenAIModel  string
	Timeout      time.Duration
}

// SlackConfig configures brief delivery by direct message.
type SlackConfig struct {
	BotToken string
	UserID   string
	BaseURL  string
}

// Enabled reports whether both token and recipient are set.
func (c SlackConfig) Enabled() bool {
	return c.BotToken != "" && c.UserID != ""
}

// KafkaConfig configures the brief publication topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// NotifyConfig bounds brief delivery across every channel.
type NotifyConfig struct {
	Timeout time.Duration
}

// MetricsConfig configures the Pushgateway used by the weekly job.
type MetricsConfig struct {
	PushgatewayURL string
	JobName        string
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with defaults, then
// overlays the thresholds file named by INSIGHT_THRESHOLDS_FILE and finally
// the individual threshold variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Addr:          getenv("INSIGHT_ADDR", ":8000"),
			JWTSigningKey: os.Getenv("INSIGHT_JWT_SIGNING_KEY"),
			JWTIssuer:     os.Getenv("INSIGHT_JWT_ISSUER"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getenvInt("INSIGHT_DB_MAX_OPEN_CONNS", 10),
			TxTimeout:    getenvDuration("INSIGHT_DB_TX_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("INSIGHT_REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("INSIGHT_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("INSIGHT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("INSIGHT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("INSIGHT_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LeaseTTL:     getenvDuration("INSIGHT_RUN_LEASE_TTL", 30*time.Minute),
		},
		Embedding: EmbeddingConfig{
			Provider:   getenv("INSIGHT_EMBED_PROVIDER", "ollama"),
			Endpoint:   os.Getenv("INSIGHT_EMBED_ENDPOINT"),
			APIKey:     getenv("INSIGHT_EMBED_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:      getenv("EMBEDDING_MODEL", "all-minilm"),
			Dimensions: getenvInt("INSIGHT_EMBED_DIMENSIONS", 384),
			Timeout:    getenvDuration("INSIGHT_EMBED_TIMEOUT", 30*time.Second),
			BatchSize:  getenvInt("INSIGHT_EMBED_BATCH_SIZE", 32),
		},
		LLM: LLMConfig{
			GrokAPIKey:   os.Getenv("GROK_API_KEY"),
			GrokURL:      getenv("GROK_API_URL", "https://api.x.ai/v1"),
			GrokModel:    getenv("GROK_MODEL", "grok-beta"),
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			OpenAIURL:    getenv("OPENAI_API_URL", "https://api.openai.com/v1"),
			OpenAIModel:  getenv("OPENAI_MODEL", "gpt-4o"),
			Timeout:      getenvDuration("INSIGHT_LLM_TIMEOUT", 60*time.Second),
		},
		Slack: SlackConfig{
			BotToken: os.Getenv("SLACK_BOT_TOKEN"),
			UserID:   os.Getenv("SLACK_USER_ID"),
			BaseURL:  getenv("SLACK_API_URL", "https://slack.com/api"),
		},
		Kafka: KafkaConfig{
			Brokers: ustrings.DedupeAndTrim(strings.Split(os.Getenv("INSIGHT_KAFKA_BROKERS"), ",")),
			Topic:   getenv("INSIGHT_KAFKA_TOPIC", "insight.briefs"),
		},
		Notify: NotifyConfig{
			Timeout: getenvDuration("INSIGHT_NOTIFY_TIMEOUT", 30*time.Second),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: os.Getenv("INSIGHT_PUSHGATEWAY_URL"),
			JobName:        getenv("INSIGHT_PUSH_JOB", "insight_weekly"),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
	}

	thresholds, err := LoadThresholds(os.Getenv("INSIGHT_THRESHOLDS_FILE"))
	if err != nil {
		return Config{}, err
	}
	applyThresholdEnv(&thresholds)
	if err := thresholds.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid thresholds: %w", err)
	}
	cfg.Thresholds = thresholds
	return cfg, nil
}

// LoadThresholds returns the default thresholds overlaid with the YAML file
// at path. Keys missing from the file keep their defaults. An empty path
// returns the defaults.
func LoadThresholds(path string) (report.Thresholds, error) {
	t := report.DefaultThresholds()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return report.Thresholds{}, fmt.Errorf("read thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return report.Thresholds{}, fmt.Errorf("parse thresholds file: %w", err)
	}
	return t, nil
}

func applyThresholdEnv(t *report.Thresholds) {
	t.MinClusterSize = getenvInt("HDBSCAN_MIN_CLUSTER_SIZE", t.MinClusterSize)
	t.SimilarityThreshold = getenvFloat("TOPIC_SIMILARITY_THRESHOLD", t.SimilarityThreshold)
	t.LowMax = getenvInt("URGENCY_LOW_MAX", t.LowMax)
	t.MediumMax = getenvInt("URGENCY_MEDIUM_MAX", t.MediumMax)
}

// ErrDatabaseRequired is returned by callers that cannot run on the
// in-memory store.
var ErrDatabaseRequired = errors.New("DATABASE_URL is required")

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
