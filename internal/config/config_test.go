package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"KAFKA_BROKER", "EXCHANGE_TOPIC", "GROUP_ID", "BINDING_PATTERN", "DEAD_LETTER_TOPIC",
		"MAX_DELIVERY_ATTEMPTS", "DATABASE_URL", "PRODUCT_SEED_FILE", "REDIS_ADDR",
		"IDEMPOTENCY_TTL", "HEALTH_ADDR", "OTEL_ENDPOINT", "OTEL_AUTH_HEADER", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKER", "kafka-1:9092, kafka-2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers())
	assert.Equal(t, DefaultExchangeTopic, cfg.ExchangeTopic)
	assert.Equal(t, DefaultGroupID, cfg.GroupID)
	assert.Equal(t, "order.*", cfg.BindingPattern)
	assert.Equal(t, DefaultDeadLetterTopic, cfg.DeadLetterTopic)
	assert.Equal(t, DefaultMaxDeliveryAttempts, cfg.MaxDeliveryAttempts)
	assert.Equal(t, DefaultIdempotencyTTL, cfg.IdempotencyTTL)
	assert.Equal(t, ":8081", cfg.HealthAddr)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.OtelEnabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKER", "localhost:9092")
	t.Setenv("EXCHANGE_TOPIC", "events")
	t.Setenv("MAX_DELIVERY_ATTEMPTS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_ENDPOINT", "otlp.example.com")
	t.Setenv("OTEL_AUTH_HEADER", "Basic abc")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "events", cfg.ExchangeTopic)
	assert.Equal(t, 3, cfg.MaxDeliveryAttempts)
	assert.Equal(t, 90*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
	assert.True(t, cfg.OtelEnabled())
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{
			name: "missing broker",
			env:  map[string]string{},
			msg:  "KAFKA_BROKER",
		},
		{
			name: "otel endpoint without auth",
			env:  map[string]string{"KAFKA_BROKER": "k:9092", "OTEL_ENDPOINT": "otlp.example.com"},
			msg:  "must be set together",
		},
		{
			name: "bad attempts",
			env:  map[string]string{"KAFKA_BROKER": "k:9092", "MAX_DELIVERY_ATTEMPTS": "0"},
			msg:  "MAX_DELIVERY_ATTEMPTS",
		},
		{
			name: "bad ttl",
			env:  map[string]string{"KAFKA_BROKER": "k:9092", "IDEMPOTENCY_TTL": "soon"},
			msg:  "IDEMPOTENCY_TTL",
		},
		{
			name: "bad level",
			env:  map[string]string{"KAFKA_BROKER": "k:9092", "LOG_LEVEL": "loud"},
			msg:  "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
