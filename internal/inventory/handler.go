package inventory

import (
	"context"
	"errors"

	"github.com/PayeTonKawa2025/products-api/internal/platform/idempotency"
	"github.com/PayeTonKawa2025/products-api/internal/platform/kafka"
	"github.com/PayeTonKawa2025/products-api/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MessageHandler defines the interface for processing incoming messages.
type MessageHandler interface {
	Handle(ctx context.Context, msg kafkago.Message) error
}

// KafkaMessageHandler dispatches order events to the reconciliation Service
// and publishes the outcome.
type KafkaMessageHandler struct {
	service   Service
	publisher Publisher
	ledger    idempotency.Ledger
	logger    observability.Logger
	tracer    observability.Tracer
}

// NewMessageHandler creates a new MessageHandler instance with explicit dependencies
func NewMessageHandler(service Service, publisher Publisher, ledger idempotency.Ledger, logger observability.Logger, tracer observability.Tracer) MessageHandler {
	return &KafkaMessageHandler{
		service:   service,
		publisher: publisher,
		ledger:    ledger,
		logger:    logger,
		tracer:    tracer,
	}
}

// Handle processes one message. Unknown routing keys are logged and dropped
// with a nil error. Malformed bodies return a *ParseError.
func (h *KafkaMessageHandler) Handle(ctx context.Context, msg kafkago.Message) error {
	// Extract trace context to connect spans across services
	msgCtx := h.extractTraceContext(ctx, msg.Headers)
	msgCtx, span := h.tracer.Start(msgCtx, "handle_order_event")
	defer span.End()

	h.logger.Debug("📨 Raw Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var (
		envelope Envelope
		decoded  bool
		err      error
	)
	routingKey, _ := kafka.Header(msg, HeaderRoutingKey)
	if routingKey == "" {
		if envelope, err = DecodeEnvelope(msg.Value); err != nil {
			return h.fail(span, "", err)
		}
		decoded = true
		routingKey = envelope.RoutingKey
	}
	span.SetAttributes(attribute.String("event.routing_key", routingKey))

	if !IsOrderRoutingKey(routingKey) {
		h.logger.Warn("⚠️ Dropping message with unknown routing key",
			zap.String("routing_key", routingKey),
			zap.Int64("offset", msg.Offset),
		)
		span.SetAttributes(attribute.String("inventory.outcome", string(OutcomeDropped)))
		return nil
	}

	if !decoded {
		if envelope, err = DecodeEnvelope(msg.Value); err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				perr.RoutingKey = routingKey
			}
			return h.fail(span, routingKey, err)
		}
	}
	event, err := ParsePayload(routingKey, envelope.Payload)
	if err != nil {
		return h.fail(span, routingKey, err)
	}
	span.SetAttributes(attribute.Int64("order.id", event.Order()))

	// The position survives redelivery; correlation ids span a whole order.
	key := idempotency.Key(msg.Topic, msg.Partition, msg.Offset)
	outcomeKey, replayed, err := h.service.ReconcileOnce(msgCtx, h.ledger, key, event)
	if err != nil {
		return h.fail(span, routingKey, err)
	}
	if replayed {
		h.logger.Info("🔁 Message already reconciled, replaying outcome",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", event.Order()),
			zap.String("outcome_routing_key", outcomeKey),
		)
	}
	span.SetAttributes(attribute.String("inventory.outcome_routing_key", outcomeKey))

	return h.publish(msgCtx, span, outcomeKey, envelope.CorrelationID, event)
}

func (h *KafkaMessageHandler) publish(ctx context.Context, span trace.Span, routingKey, correlationID string, event OrderEvent) error {
	if routingKey == "" {
		return nil
	}
	if err := h.publisher.Publish(ctx, routingKey, correlationID, StockOutcome{OrderID: event.Order()}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

func (h *KafkaMessageHandler) fail(span trace.Span, routingKey string, err error) error {
	h.logger.Error("❌ Failed to handle order event",
		zap.String("routing_key", routingKey),
		zap.Error(err),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, "handle failed")
	return err
}

// extractTraceContext extracts OpenTelemetry trace context from Kafka message headers
func (h *KafkaMessageHandler) extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
