package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. Built from environment
// variables so main stays lean; every value has a development default.
type Config struct {
	Addr          string
	JWTSigningKey string

	// PostgresURL enables the durable stores; empty means in-memory only.
	PostgresURL string
	// RedisURL enables the distributed milestone lock; empty falls back to
	// the in-process lock (single-instance deployments).
	RedisURL string
	// KafkaBrokers enables the audit Kafka sink; empty disables it.
	KafkaBrokers    []string
	KafkaAuditTopic string

	WebhookTimeout     time.Duration
	WebhookMaxAttempts int
	WebhookBackoffBase time.Duration

	LockTTL time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("TML_ADDR", ":8080"),
		JWTSigningKey:      envOr("TML_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresURL:        os.Getenv("TML_POSTGRES_URL"),
		RedisURL:           os.Getenv("TML_REDIS_URL"),
		KafkaAuditTopic:    envOr("TML_KAFKA_AUDIT_TOPIC", "tml.audit.events"),
		WebhookTimeout:     durationOr("TML_WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxAttempts: 4,
		WebhookBackoffBase: durationOr("TML_WEBHOOK_BACKOFF_BASE", 500*time.Millisecond),
		LockTTL:            durationOr("TML_LOCK_TTL", 15*time.Second),
	}
	if brokers := os.Getenv("TML_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
