package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs to wire the portal. Values come from
// the environment so deployments stay twelve-factor.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string

	// DatabaseURL selects the postgres stores; empty means in-memory stores,
	// which is what local development and most tests use.
	DatabaseURL string

	Redis RedisConfig
	Kafka KafkaConfig

	// WebhookURL is the notification sink. Empty disables the webhook
	// dispatcher and falls back to log-only notifications.
	WebhookURL string

	// ScanInterval is how often the rotation compliance scanner runs.
	ScanInterval time.Duration

	Region string
}

// RedisConfig configures the optional resolved-grant cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	GrantTTL     time.Duration
}

// KafkaConfig configures the external change-event consumer. Empty brokers
// disable the consumer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("PORTAL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}
	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "secrets-portal"
	}

	scanInterval := durationEnv("ROTATION_SCAN_INTERVAL", 24*time.Hour)

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	topic := os.Getenv("KAFKA_CHANGE_TOPIC")
	if topic == "" {
		topic = "secret-change-events"
	}
	group := os.Getenv("KAFKA_CONSUMER_GROUP")
	if group == "" {
		group = "secrets-portal-tracker"
	}

	region := os.Getenv("PORTAL_REGION")
	if region == "" {
		region = "us-east-1"
	}

	return Config{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     jwtIssuer,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			GrantTTL:     durationEnv("GRANT_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
			Group:   group,
		},
		WebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
		ScanInterval: scanInterval,
		Region:       region,
	}
}

func intEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
