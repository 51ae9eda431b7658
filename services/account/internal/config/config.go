package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the account service configuration.
type Config struct {
	Port               string
	DatabaseURL        string
	RedisURL           string
	AMQPURL            string
	AMQPExchange       string
	JWTKey             string
	SecureCookies      bool
	TokenTTL           time.Duration
	TokenSweepInterval time.Duration
	RateLimit          int
	RateLimitWindow    time.Duration
	LogLevel           string
	LogFormat          string
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := &Config{
		Port:               getEnv("PORT", "3000"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "localhost:6379"),
		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "doclinker"),
		JWTKey:             getEnv("JWT_KEY", ""),
		SecureCookies:      getEnvAsBool("SECURE_COOKIES", false),
		TokenTTL:           getEnvAsDuration("TOKEN_TTL", 15*time.Minute),
		TokenSweepInterval: getEnvAsDuration("TOKEN_SWEEP_INTERVAL", 5*time.Minute),
		RateLimit:          getEnvAsInt("RATE_LIMIT", 100),
		RateLimitWindow:    getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var errs []error
	if c.AMQPURL == "" {
		errs = append(errs, errors.New("AMQP_URL must be defined"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must be defined"))
	}
	if c.JWTKey == "" {
		errs = append(errs, errors.New("JWT_KEY must be defined"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
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
