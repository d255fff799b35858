//go:build integration

package inventory

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/PayeTonKawa2025/products-api/internal/catalog"
	"github.com/PayeTonKawa2025/products-api/internal/platform/idempotency"
	"github.com/PayeTonKawa2025/products-api/internal/platform/kafka"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func createTopics(t *testing.T, broker string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	configs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}
	}
	require.NoError(t, cc.CreateTopics(configs...))
}

func TestConsumerAgainstKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("products-api-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	const topic, deadLetterTopic = "payetonkawa.events", "products-api.dead-letter"
	createTopics(t, brokers[0], topic, deadLetterTopic)

	store := catalog.NewMemoryStore()
	seedStock(t, store, map[int64]int{1: 10})
	logger := zaptest.NewLogger(t)

	newWriter := func(topic string) kafka.Producer {
		w, err := otelkafka.NewWriter(&kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			BatchTimeout: 10 * time.Millisecond,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = w.Close() })
		return w
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "products-api-it",
		StartOffset: kafkago.FirstOffset,
		MaxWait:     100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = reader.Close() })

	handler := NewMessageHandler(
		newTestService(t, store),
		NewEventPublisher(newWriter(topic), topic, logger),
		idempotency.NewMemoryStore(time.Hour),
		logger,
		tracenoop.NewTracerProvider().Tracer("test"),
	)
	svc, err := NewConsumerService(reader, handler, newWriter(deadLetterTopic), logger,
		metricnoop.NewMeterProvider().Meter("test"),
		ConsumerOptions{BindingPattern: "order.*", MaxAttempts: 3})
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Start(runCtx) }()

	input := newWriter(topic)
	msg := orderMessage(t, RoutingKeyOrderCreated, "corr-it", createdPayload(7, 1, 4))
	require.NoError(t, input.WriteMessage(ctx, kafkago.Message{Value: msg.Value, Headers: msg.Headers}))

	verify := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		Partition:   0,
		StartOffset: kafkago.FirstOffset,
		MaxWait:     100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = verify.Close() })

	var outcome kafkago.Message
	for {
		m, err := verify.ReadMessage(ctx)
		require.NoError(t, err)
		if rk, _ := kafka.Header(m, HeaderRoutingKey); rk == RoutingKeyStockConfirmed {
			outcome = m
			break
		}
	}

	env, payload := decodeOutcome(t, outcome)
	assert.Equal(t, "corr-it", env.CorrelationID)
	assert.Equal(t, int64(7), payload.OrderID)
	assert.Equal(t, 6, stockOf(t, store, 1))

	stop()
	require.NoError(t, <-done)
}
