package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	ServiceName    = "products-api"
	ServiceVersion = "0.1.0"
)

const (
	DefaultExchangeTopic       = "payetonkawa.events"
	DefaultGroupID             = "products-api-group"
	DefaultBindingPattern      = "order.*"
	DefaultDeadLetterTopic     = "products-api.dead-letter"
	DefaultMaxDeliveryAttempts = 5
	DefaultIdempotencyTTL      = 24 * time.Hour
	DefaultHealthAddr          = ":8081"
	BatchTimeout               = 10 * time.Millisecond
	BatchSize                  = 100
)

const (
	LogsPath       = "/otlp/v1/logs"    // Grafana Cloud OTLP path
	TracesPath     = "/otlp/v1/traces"  // Grafana Cloud OTLP path
	MetricsPath    = "/otlp/v1/metrics" // Grafana Cloud OTLP path
	ExportTimeout  = 30 * time.Second
	MaxQueueSize   = 2048
	MetricInterval = 15 * time.Second
)

type Config struct {
	KafkaBroker         string
	ExchangeTopic       string
	GroupID             string
	BindingPattern      string
	DeadLetterTopic     string
	MaxDeliveryAttempts int

	DatabaseURL     string
	ProductSeedFile string

	RedisAddr      string
	IdempotencyTTL time.Duration

	HealthAddr string

	OtelEndpoint   string
	OtelAuthHeader string
	LogLevel       zapcore.Level
}

// Brokers splits KafkaBroker on commas.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBroker, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// OtelEnabled reports whether OTLP exporters should be started.
func (c *Config) OtelEnabled() bool {
	return c.OtelEndpoint != "" && c.OtelAuthHeader != ""
}

func LoadConfig() (*Config, error) {
	config := &Config{
		KafkaBroker:     os.Getenv("KAFKA_BROKER"),
		ExchangeTopic:   getEnv("EXCHANGE_TOPIC", DefaultExchangeTopic),
		GroupID:         getEnv("GROUP_ID", DefaultGroupID),
		BindingPattern:  getEnv("BINDING_PATTERN", DefaultBindingPattern),
		DeadLetterTopic: getEnv("DEAD_LETTER_TOPIC", DefaultDeadLetterTopic),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ProductSeedFile: os.Getenv("PRODUCT_SEED_FILE"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		HealthAddr:      getEnv("HEALTH_ADDR", DefaultHealthAddr),
		OtelEndpoint:    os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader:  os.Getenv("OTEL_AUTH_HEADER"),
	}

	if len(config.Brokers()) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKER environment variable is required")
	}
	if (config.OtelEndpoint == "") != (config.OtelAuthHeader == "") {
		return nil, fmt.Errorf("OTEL_ENDPOINT and OTEL_AUTH_HEADER must be set together")
	}

	var errs []error

	attempts, err := getInt("MAX_DELIVERY_ATTEMPTS", DefaultMaxDeliveryAttempts)
	if err == nil && attempts < 1 {
		err = fmt.Errorf("MAX_DELIVERY_ATTEMPTS must be at least 1, got %d", attempts)
	}
	errs = append(errs, err)
	config.MaxDeliveryAttempts = attempts

	ttl, err := getDuration("IDEMPOTENCY_TTL", DefaultIdempotencyTTL)
	if err == nil && ttl <= 0 {
		err = fmt.Errorf("IDEMPOTENCY_TTL must be positive, got %s", ttl)
	}
	errs = append(errs, err)
	config.IdempotencyTTL = ttl

	level, err := zapcore.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		err = fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	errs = append(errs, err)
	config.LogLevel = level

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return config, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
