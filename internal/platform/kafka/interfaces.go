package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer is satisfied by *otelkafka.Writer.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer is satisfied by a *kafka.Reader with a GroupID; offsets are
// committed explicitly once a message has been handled.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Header returns the value of the first header named key.
func Header(msg kafka.Message, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
