package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/PayeTonKawa2025/products-api/internal/platform/kafka"
	"github.com/PayeTonKawa2025/products-api/internal/platform/observability"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ConsumerService runs the inbound message loop.
type ConsumerService interface {
	Start(ctx context.Context) error
}

// ConsumerOptions tunes delivery of inbound messages.
type ConsumerOptions struct {
	// BindingPattern filters messages by routing key header, AMQP topic style.
	BindingPattern string
	// MaxAttempts bounds handler calls per message before it is dead-lettered.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// KafkaConsumerService fetches order events, hands them to a MessageHandler
// with retries and dead-letters what keeps failing.
type KafkaConsumerService struct {
	consumer       kafka.Consumer
	messageHandler MessageHandler
	deadLetter     kafka.Producer
	logger         observability.Logger
	opts           ConsumerOptions
	deadLettered   metric.Int64Counter
}

// NewConsumerService creates a ConsumerService. Zero options fall back to one
// attempt and the backoff package defaults.
func NewConsumerService(consumer kafka.Consumer, messageHandler MessageHandler, deadLetter kafka.Producer, logger observability.Logger, meter observability.Meter, opts ConsumerOptions) (ConsumerService, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = backoff.DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = backoff.DefaultMaxInterval
	}

	counter, err := meter.Int64Counter("inventory.messages.dead_lettered",
		metric.WithDescription("Messages moved to the dead-letter topic"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead-letter counter: %w", err)
	}

	return &KafkaConsumerService{
		consumer:       consumer,
		messageHandler: messageHandler,
		deadLetter:     deadLetter,
		logger:         logger,
		opts:           opts,
		deadLettered:   counter,
	}, nil
}

// Start fetches messages until ctx is done. Each message is committed once it
// has been handled, filtered out or dead-lettered. A dead-letter write failure
// stops the loop without committing so the message is redelivered.
func (c *KafkaConsumerService) Start(ctx context.Context) error {
	c.logger.Info("Kafka consumer started. Waiting for messages...",
		zap.String("binding", c.opts.BindingPattern),
	)

	fetchBackOff := c.newFetchBackOff()
	for {
		msg, err := c.consumer.FetchMessage(ctx)
		if err != nil {
			if isShutdown(ctx, err) {
				c.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				break
			}
			wait := fetchBackOff.NextBackOff()
			c.logger.Error("❌ Error reading from Kafka", zap.Duration("wait", wait), zap.Error(err))
			if !sleep(ctx, wait) {
				c.logger.Info("Context done, exiting Kafka read loop.")
				break
			}
			continue
		}
		fetchBackOff.Reset()

		if err := c.process(ctx, msg); err != nil {
			if isShutdown(ctx, err) {
				c.logger.Info("Context done while processing, message left uncommitted.",
					zap.Int64("offset", msg.Offset))
				break
			}
			return err
		}

		if err := c.consumer.CommitMessages(ctx, msg); err != nil {
			if isShutdown(ctx, err) {
				break
			}
			c.logger.Error("❌ Failed to commit offset",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}

	c.logger.Info("Consumer service finished. Shutting down...")
	return nil
}

func (c *KafkaConsumerService) process(ctx context.Context, msg kafkago.Message) error {
	routingKey, _ := kafka.Header(msg, HeaderRoutingKey)
	if routingKey != "" && c.opts.BindingPattern != "" && !kafka.MatchBinding(c.opts.BindingPattern, routingKey) {
		c.logger.Debug("Skipping message outside binding",
			zap.String("routing_key", routingKey),
			zap.Int64("offset", msg.Offset),
		)
		return nil
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := c.messageHandler.Handle(ctx, msg)
		var perr *ParseError
		if errors.As(err, &perr) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("🔁 Retrying message",
			zap.String("routing_key", routingKey),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.sendToDeadLetter(ctx, msg, routingKey, attempt, err)
}

func (c *KafkaConsumerService) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1))
}

// newFetchBackOff paces FetchMessage retries while the broker is failing. It
// never gives up.
func (c *KafkaConsumerService) newFetchBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *KafkaConsumerService) sendToDeadLetter(ctx context.Context, msg kafkago.Message, routingKey string, attempts int, cause error) error {
	headers := slices.Clone(msg.Headers)
	headers = append(headers,
		kafkago.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafkago.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		kafkago.Header{Key: "source_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafkago.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafkago.Header{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
	)
	if _, ok := kafka.Header(msg, HeaderRoutingKey); !ok && routingKey == "" {
		if env, err := DecodeEnvelope(msg.Value); err == nil && env.RoutingKey != "" {
			headers = append(headers, kafkago.Header{Key: HeaderRoutingKey, Value: []byte(env.RoutingKey)})
		}
	}

	dl := kafkago.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
	if err := c.deadLetter.WriteMessage(ctx, dl); err != nil {
		return fmt.Errorf("failed to dead-letter message at offset %d: %w", msg.Offset, err)
	}

	c.deadLettered.Add(ctx, 1, metric.WithAttributes(attribute.String("routing_key", routingKey)))
	c.logger.Error("☠️ Message moved to dead-letter topic",
		zap.String("routing_key", routingKey),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	return nil
}

func isShutdown(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF)
}
