// Package idempotency records the outcome decided for each inbound message so
// a redelivered message replays that outcome instead of being applied twice.
package idempotency

import (
	"context"
	"fmt"
)

// Ledger stores the outcome routing key decided for a message key. An empty
// routing key is a valid record and means the message produced no event.
type Ledger interface {
	Lookup(ctx context.Context, key string) (routingKey string, found bool, err error)
	Record(ctx context.Context, key, routingKey string) error
	// Forget drops the record for key. Missing keys are not an error.
	Forget(ctx context.Context, key string) error
}

// Key builds a ledger key from a message's position in its topic. A
// redelivered message keeps its position, a new message never shares it.
func Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}
