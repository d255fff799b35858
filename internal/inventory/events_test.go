package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderEvent(t *testing.T) {
	tests := []struct {
		name       string
		routingKey string
		body       string
		want       OrderEvent
	}{
		{
			name:       "created",
			routingKey: RoutingKeyOrderCreated,
			body:       `{"exchangeId":"orders","routingKey":"order.created","type":"order.created","payload":{"orderId":7,"items":[{"itemId":1,"quantity":4}]}}`,
			want:       OrderCreated{OrderID: 7, Items: lines(1, 4)},
		},
		{
			name:       "updated",
			routingKey: RoutingKeyOrderUpdated,
			body:       `{"payload":{"orderId":7,"previousItems":[{"itemId":1,"quantity":2}],"items":[{"itemId":1,"quantity":3},{"itemId":2,"quantity":1}]}}`,
			want:       OrderUpdated{OrderID: 7, PreviousItems: lines(1, 2), Items: lines(1, 3, 2, 1)},
		},
		{
			name:       "cancelled with no lines",
			routingKey: RoutingKeyOrderCancelled,
			body:       `{"payload":{"orderId":9,"items":[]}}`,
			want:       OrderCancelled{OrderID: 9, Items: lines()},
		},
		{
			name:       "deleted",
			routingKey: RoutingKeyOrderDeleted,
			body:       `{"payload":{"orderId":9,"items":[{"itemId":3,"quantity":2}]}}`,
			want:       OrderDeleted{OrderID: 9, Items: lines(3, 2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOrderEvent(tt.routingKey, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.routingKey, got.RoutingKey())
		})
	}
}

func TestParseOrderEventRejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name       string
		routingKey string
		body       string
		msg        string
	}{
		{"invalid json", RoutingKeyOrderCreated, `{"payload":`, "invalid envelope"},
		{"missing payload", RoutingKeyOrderCreated, `{"routingKey":"order.created"}`, "missing payload"},
		{"null payload", RoutingKeyOrderCreated, `{"payload":null}`, "missing payload"},
		{"payload not an object", RoutingKeyOrderCreated, `{"payload":[1,2]}`, "invalid payload"},
		{"missing orderId", RoutingKeyOrderCreated, `{"payload":{"items":[]}}`, "missing orderId"},
		{"missing items", RoutingKeyOrderCancelled, `{"payload":{"orderId":1}}`, "missing items"},
		{"missing previousItems", RoutingKeyOrderUpdated, `{"payload":{"orderId":1,"items":[]}}`, "missing previousItems"},
		{"missing itemId", RoutingKeyOrderDeleted, `{"payload":{"orderId":1,"items":[{"quantity":1}]}}`, "missing itemId"},
		{"zero quantity", RoutingKeyOrderCreated, `{"payload":{"orderId":1,"items":[{"itemId":1,"quantity":0}]}}`, "quantity must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOrderEvent(tt.routingKey, []byte(tt.body))
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.routingKey, perr.RoutingKey)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseOrderEventUnroutable(t *testing.T) {
	_, err := ParseOrderEvent("foo.bar", []byte(`not even json`))
	assert.ErrorIs(t, err, ErrUnroutable)

	var perr *ParseError
	assert.False(t, errors.As(err, &perr))
}

func TestOrderUpdatedProductIDs(t *testing.T) {
	e := OrderUpdated{PreviousItems: lines(5, 1, 2, 1), Items: lines(2, 3, 9, 1)}
	assert.Equal(t, []int64{2, 5, 9}, e.ProductIDs())
}
