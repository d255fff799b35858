package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PayeTonKawa2025/products-api/internal/stock"
)

// Inbound routing keys.
const (
	RoutingKeyOrderCreated   = "order.created"
	RoutingKeyOrderUpdated   = "order.updated"
	RoutingKeyOrderCancelled = "order.cancelled"
	RoutingKeyOrderDeleted   = "order.deleted"
)

// Outbound routing keys.
const (
	RoutingKeyStockConfirmed    = "product.stock.confirmed"
	RoutingKeyStockInsufficient = "product.stock.insufficient"
)

// Kafka header names carried on every message we publish.
const (
	HeaderRoutingKey    = "routing_key"
	HeaderType          = "type"
	HeaderCorrelationID = "correlation_id"
	HeaderExchangeID    = "exchange_id"
	HeaderError         = "error"
)

// ErrUnroutable is returned for routing keys no handler is registered for.
var ErrUnroutable = errors.New("unroutable routing key")

// ParseError reports a message body that cannot be turned into an OrderEvent.
type ParseError struct {
	RoutingKey string
	Err        error
}

func (e *ParseError) Error() string {
	if e.RoutingKey == "" {
		return fmt.Sprintf("malformed message: %v", e.Err)
	}
	return fmt.Sprintf("malformed %q message: %v", e.RoutingKey, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Envelope wraps every event exchanged on the bus.
type Envelope struct {
	ExchangeID    string          `json:"exchangeId"`
	RoutingKey    string          `json:"routingKey"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// StockOutcome is the payload of product.stock.* events.
type StockOutcome struct {
	OrderID int64 `json:"orderId"`
}

// OrderEvent is one of OrderCreated, OrderUpdated, OrderCancelled or OrderDeleted.
type OrderEvent interface {
	RoutingKey() string
	Order() int64
	// ProductIDs lists every product the event references, sorted and distinct.
	ProductIDs() []int64
}

type OrderCreated struct {
	OrderID int64
	Items   []stock.Line
}

type OrderUpdated struct {
	OrderID       int64
	PreviousItems []stock.Line
	Items         []stock.Line
}

type OrderCancelled struct {
	OrderID int64
	Items   []stock.Line
}

type OrderDeleted struct {
	OrderID int64
	Items   []stock.Line
}

func (OrderCreated) RoutingKey() string   { return RoutingKeyOrderCreated }
func (OrderUpdated) RoutingKey() string   { return RoutingKeyOrderUpdated }
func (OrderCancelled) RoutingKey() string { return RoutingKeyOrderCancelled }
func (OrderDeleted) RoutingKey() string   { return RoutingKeyOrderDeleted }

func (e OrderCreated) Order() int64   { return e.OrderID }
func (e OrderUpdated) Order() int64   { return e.OrderID }
func (e OrderCancelled) Order() int64 { return e.OrderID }
func (e OrderDeleted) Order() int64   { return e.OrderID }

func (e OrderCreated) ProductIDs() []int64 { return stock.ItemIDs(e.Items) }
func (e OrderUpdated) ProductIDs() []int64 {
	return stock.ItemIDs(e.PreviousItems, e.Items)
}
func (e OrderCancelled) ProductIDs() []int64 { return stock.ItemIDs(e.Items) }
func (e OrderDeleted) ProductIDs() []int64   { return stock.ItemIDs(e.Items) }

// IsOrderRoutingKey reports whether a handler exists for routingKey.
func IsOrderRoutingKey(routingKey string) bool {
	switch routingKey {
	case RoutingKeyOrderCreated, RoutingKeyOrderUpdated, RoutingKeyOrderCancelled, RoutingKeyOrderDeleted:
		return true
	}
	return false
}

// DecodeEnvelope decodes the outer envelope of a message body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, &ParseError{Err: fmt.Errorf("invalid envelope: %w", err)}
	}
	return env, nil
}

// ParseOrderEvent decodes body and builds the event variant selected by routingKey.
func ParseOrderEvent(routingKey string, body []byte) (OrderEvent, error) {
	if !IsOrderRoutingKey(routingKey) {
		return nil, fmt.Errorf("%w: %q", ErrUnroutable, routingKey)
	}
	env, err := DecodeEnvelope(body)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.RoutingKey = routingKey
		}
		return nil, err
	}
	return ParsePayload(routingKey, env.Payload)
}

type linePayload struct {
	ItemID   *int64 `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type orderPayload struct {
	OrderID       *int64         `json:"orderId"`
	Items         *[]linePayload `json:"items"`
	PreviousItems *[]linePayload `json:"previousItems"`
}

// ParsePayload builds the event variant selected by routingKey from an
// envelope payload.
func ParsePayload(routingKey string, payload json.RawMessage) (OrderEvent, error) {
	if !IsOrderRoutingKey(routingKey) {
		return nil, fmt.Errorf("%w: %q", ErrUnroutable, routingKey)
	}
	fail := func(format string, args ...any) error {
		return &ParseError{RoutingKey: routingKey, Err: fmt.Errorf(format, args...)}
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fail("missing payload")
	}

	var p orderPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fail("invalid payload: %w", err)
	}
	if p.OrderID == nil {
		return nil, fail("missing orderId")
	}
	items, err := toLines("items", p.Items)
	if err != nil {
		return nil, fail("%w", err)
	}

	switch routingKey {
	case RoutingKeyOrderCreated:
		return OrderCreated{OrderID: *p.OrderID, Items: items}, nil
	case RoutingKeyOrderCancelled:
		return OrderCancelled{OrderID: *p.OrderID, Items: items}, nil
	case RoutingKeyOrderDeleted:
		return OrderDeleted{OrderID: *p.OrderID, Items: items}, nil
	default:
		previous, err := toLines("previousItems", p.PreviousItems)
		if err != nil {
			return nil, fail("%w", err)
		}
		return OrderUpdated{OrderID: *p.OrderID, PreviousItems: previous, Items: items}, nil
	}
}

func toLines(field string, raw *[]linePayload) ([]stock.Line, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing %s", field)
	}
	lines := make([]stock.Line, 0, len(*raw))
	for i, l := range *raw {
		if l.ItemID == nil {
			return nil, fmt.Errorf("%s[%d]: missing itemId", field, i)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%s[%d]: quantity must be positive, got %d", field, i, l.Quantity)
		}
		lines = append(lines, stock.Line{ItemID: *l.ItemID, Quantity: l.Quantity})
	}
	return lines, nil
}
