package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/PayeTonKawa2025/products-api/internal/catalog"
	"github.com/PayeTonKawa2025/products-api/internal/stock"

	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const testExchange = "payetonkawa.events"

var errBrokerDown = errors.New("broker unavailable")

// fakeProducer records written messages. Queued errors are returned one per
// call before writes start succeeding.
type fakeProducer struct {
	mu       sync.Mutex
	messages []kafkago.Message
	errs     []error
}

func (p *fakeProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) Messages() []kafkago.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafkago.Message(nil), p.messages...)
}

// countingStore counts every access that reaches the store.
type countingStore struct {
	*catalog.MemoryStore
	mu    sync.Mutex
	calls int
}

func (s *countingStore) count() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStore) FindByID(ctx context.Context, id int64) (catalog.Product, error) {
	s.count()
	return s.MemoryStore.FindByID(ctx, id)
}

func (s *countingStore) Lock(ctx context.Context, ids []int64, fn func(ctx context.Context, repo catalog.Repository) error) error {
	s.count()
	return s.MemoryStore.Lock(ctx, ids, fn)
}

// flakyStore fails every Save for the listed products.
type flakyStore struct {
	*catalog.MemoryStore
	failSave map[int64]bool
}

type flakyRepo struct {
	catalog.Repository
	failSave map[int64]bool
}

func (r flakyRepo) Save(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if r.failSave[p.ID] {
		return catalog.Product{}, errors.New("disk full")
	}
	return r.Repository.Save(ctx, p)
}

func (s *flakyStore) Lock(ctx context.Context, ids []int64, fn func(ctx context.Context, repo catalog.Repository) error) error {
	return s.MemoryStore.Lock(ctx, ids, func(ctx context.Context, repo catalog.Repository) error {
		return fn(ctx, flakyRepo{Repository: repo, failSave: s.failSave})
	})
}

func newTestService(t *testing.T, store catalog.Store) Service {
	t.Helper()
	svc, err := NewService(store, zap.NewNop(), tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return svc
}

func seedStock(t *testing.T, store catalog.Repository, levels map[int64]int) {
	t.Helper()
	for id, n := range levels {
		_, err := store.Save(context.Background(), catalog.Product{
			ID:    id,
			Name:  "product",
			Price: decimal.RequireFromString("9.90"),
			Stock: n,
		})
		require.NoError(t, err)
	}
}

func stockOf(t *testing.T, store catalog.Repository, id int64) int {
	t.Helper()
	p, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func lines(pairs ...int64) []stock.Line {
	out := make([]stock.Line, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, stock.Line{ItemID: pairs[i], Quantity: int(pairs[i+1])})
	}
	return out
}

func envelopeBody(t *testing.T, routingKey, correlationID string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(Envelope{
		ExchangeID:    "orders",
		RoutingKey:    routingKey,
		Type:          routingKey,
		CorrelationID: correlationID,
		Payload:       raw,
	})
	require.NoError(t, err)
	return body
}

func orderMessage(t *testing.T, routingKey, correlationID string, payload any) kafkago.Message {
	t.Helper()
	return kafkago.Message{
		Topic:   testExchange,
		Offset:  1,
		Value:   envelopeBody(t, routingKey, correlationID, payload),
		Headers: []kafkago.Header{{Key: HeaderRoutingKey, Value: []byte(routingKey)}},
	}
}

// commitFailStore runs fn and then fails as a rejected commit would.
type commitFailStore struct {
	*catalog.MemoryStore
	err error
}

func (s *commitFailStore) Lock(ctx context.Context, ids []int64, fn func(ctx context.Context, repo catalog.Repository) error) error {
	if err := s.MemoryStore.Lock(ctx, ids, fn); err != nil {
		return err
	}
	return s.err
}
