package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CyberwizD/account-events/pkg/rabbitmq"
	"github.com/joho/godotenv"
)

// SMTPConfig configures outgoing mail. An empty Host selects the log-only
// sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Config holds the notification service configuration.
type Config struct {
	Port           string
	RedisURL       string
	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string
	AMQPPrefetch   int
	NackPolicy     rabbitmq.NackPolicy
	BaseURL        string
	SMTP           SMTPConfig
	IdempotencyTTL time.Duration
	LogLevel       string
	LogFormat      string
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	var errs []error
	policy, err := rabbitmq.ParseNackPolicy(getEnv("AMQP_NACK_POLICY", "dead-letter"))
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "3001"),
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "doclinker"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "mail-queue"),
		AMQPPrefetch: getEnvAsInt("AMQP_PREFETCH", 1),
		NackPolicy:   policy,
		BaseURL:      strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", "no-reply@doclinker.local"),
			FromName: getEnv("SMTP_FROM_NAME", "DocLinker"),
			TLS:      getEnvAsBool("SMTP_TLS", true),
		},
		IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}
	if cfg.AMQPURL == "" {
		errs = append(errs, errors.New("AMQP_URL must be defined"))
	}
	if cfg.AMQPPrefetch < 1 {
		errs = append(errs, errors.New("AMQP_PREFETCH must be at least 1"))
	}
	return cfg, errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("invalid duration for %s; using default %s", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("invalid integer for %s; using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("invalid boolean for %s; using default %t", key, defaultValue)
	}
	return defaultValue
}
