package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv keeps main lean.
type Config struct {
	Addr          string
	JWTSigningKey string

	PostgresDSN string

	Redis RedisConfig

	Kafka KafkaConfig

	Ledger LedgerConfig
}

// RedisConfig tunes the tracking history cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	HistoryTTL   time.Duration
}

// KafkaConfig configures the custody event stream. Empty brokers disable it.
type KafkaConfig struct {
	SeedBrokers []string
	Topic       string
}

// LedgerConfig points at the JSON-RPC gateway fronting the deployed tracking
// contract. SubmitTimeout bounds every ledger call; a timeout is reported as
// unavailable, never as a rejection.
type LedgerConfig struct {
	Endpoint      string
	SubmitTimeout time.Duration
	QueryTimeout  time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults. Production deployments override everything.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("MEDTRACE_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			HistoryTTL:   5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: envOr("KAFKA_CUSTODY_TOPIC", "custody-events"),
		},
		Ledger: LedgerConfig{
			Endpoint:      envOr("LEDGER_RPC_URL", "http://localhost:8545"),
			SubmitTimeout: 30 * time.Second,
			QueryTimeout:  10 * time.Second,
		},
	}
	if brokers := os.Getenv("KAFKA_SEED_BROKERS"); brokers != "" {
		cfg.Kafka.SeedBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
