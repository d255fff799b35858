package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/PayeTonKawa2025/products-api/internal/platform/kafka"
	"github.com/PayeTonKawa2025/products-api/internal/platform/observability"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher emits stock outcome events.
type Publisher interface {
	Publish(ctx context.Context, routingKey, correlationID string, payload StockOutcome) error
}

// EventPublisher wraps outcomes in an Envelope and hands them to a Producer.
// Send failures are returned as is.
type EventPublisher struct {
	producer kafka.Producer
	exchange string
	logger   observability.Logger
}

// NewEventPublisher creates an EventPublisher writing to the exchange topic.
func NewEventPublisher(producer kafka.Producer, exchange string, logger observability.Logger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		exchange: exchange,
		logger:   logger,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, routingKey, correlationID string, payload StockOutcome) error {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s payload: %w", routingKey, err)
	}
	envelope, err := json.Marshal(Envelope{
		ExchangeID:    p.exchange,
		RoutingKey:    routingKey,
		Type:          routingKey,
		CorrelationID: correlationID,
		Payload:       body,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize %s envelope: %w", routingKey, err)
	}

	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(payload.OrderID, 10)),
		Value: envelope,
		Headers: []kafkago.Header{
			{Key: HeaderRoutingKey, Value: []byte(routingKey)},
			{Key: HeaderType, Value: []byte(routingKey)},
			{Key: HeaderCorrelationID, Value: []byte(correlationID)},
			{Key: HeaderExchangeID, Value: []byte(p.exchange)},
		},
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		p.logger.Error("❌ Failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Int64("order_id", payload.OrderID),
			zap.Error(err),
		)
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Info("📤 Sent event",
		zap.String("routing_key", routingKey),
		zap.Int64("order_id", payload.OrderID),
		zap.String("correlation_id", correlationID),
	)
	return nil
}
