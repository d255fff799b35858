package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestMatchBinding(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"order.*", "order.created", true},
		{"order.*", "order.updated", true},
		{"order.*", "order", false},
		{"order.*", "order.created.v2", false},
		{"order.*", "product.stock.confirmed", false},
		{"order.#", "order", true},
		{"order.#", "order.created.v2", true},
		{"#", "product.stock.insufficient", true},
		{"#.insufficient", "product.stock.insufficient", true},
		{"product.*.confirmed", "product.stock.confirmed", true},
		{"product.*.confirmed", "product.confirmed", false},
		{"*.#.confirmed", "product.stock.confirmed", true},
		{"order.created", "order.created", true},
		{"order.created", "order.cancelled", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchBinding(tt.pattern, tt.key))
		})
	}
}

func TestHeader(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{
		{Key: "traceparent", Value: []byte("00-abc")},
		{Key: "routing_key", Value: []byte("order.created")},
	}}

	v, ok := Header(msg, "routing_key")
	assert.True(t, ok)
	assert.Equal(t, "order.created", v)

	_, ok = Header(msg, "type")
	assert.False(t, ok)
}
