package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/PayeTonKawa2025/products-api/internal/catalog"
	"github.com/PayeTonKawa2025/products-api/internal/platform/idempotency"
	"github.com/PayeTonKawa2025/products-api/internal/platform/observability"
	"github.com/PayeTonKawa2025/products-api/internal/stock"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Outcome is the terminal state of one reconciliation.
type Outcome string

const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeInsufficient Outcome = "insufficient"
	OutcomeRestored     Outcome = "restored"
	OutcomeDropped      Outcome = "dropped"
)

// RoutingKey is the event to publish for the outcome, or "" when none is due.
func (o Outcome) RoutingKey() string {
	switch o {
	case OutcomeConfirmed:
		return RoutingKeyStockConfirmed
	case OutcomeInsufficient:
		return RoutingKeyStockInsufficient
	}
	return ""
}

// Service defines the core business operations for inventory management.
// This interface represents pure business logic without infrastructure concerns.
type Service interface {
	Reconcile(ctx context.Context, event OrderEvent) (Outcome, error)
	ReconcileOnce(ctx context.Context, ledger idempotency.Ledger, key string, event OrderEvent) (routingKey string, replayed bool, err error)
}

// DefaultService applies order events to product stock.
type DefaultService struct {
	store           catalog.Store
	logger          observability.Logger
	tracer          observability.Tracer
	reconciliations metric.Int64Counter
}

// NewService creates a new inventory service instance with explicit dependencies
func NewService(store catalog.Store, logger observability.Logger, tracer observability.Tracer, meter observability.Meter) (Service, error) {
	counter, err := meter.Int64Counter("inventory.reconciliations",
		metric.WithDescription("Order events reconciled against stock, by event and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciliations counter: %w", err)
	}
	return &DefaultService{
		store:           store,
		logger:          logger,
		tracer:          tracer,
		reconciliations: counter,
	}, nil
}

// Reconcile decides the outcome of event and applies its stock changes while
// holding the store lock on every product the event references.
func (s *DefaultService) Reconcile(ctx context.Context, event OrderEvent) (Outcome, error) {
	ctx, span := s.startSpan(ctx, event)
	defer span.End()

	var outcome Outcome
	err := s.store.Lock(ctx, event.ProductIDs(), func(ctx context.Context, repo catalog.Repository) error {
		var err error
		outcome, err = s.dispatch(ctx, repo, event)
		return err
	})
	if err != nil {
		return "", s.failed(span, event, err)
	}

	s.succeeded(ctx, span, event, outcome)
	return outcome, nil
}

// ReconcileOnce reconciles event unless ledger already holds an outcome for
// key, in which case the recorded outcome routing key is returned with
// replayed set. Lookup and Record run under the same store lock as the stock
// changes, so concurrent deliveries of one message are applied once.
func (s *DefaultService) ReconcileOnce(ctx context.Context, ledger idempotency.Ledger, key string, event OrderEvent) (string, bool, error) {
	ctx, span := s.startSpan(ctx, event)
	defer span.End()
	span.SetAttributes(attribute.String("idempotency.key", key))

	var (
		outcome  Outcome
		recorded string
		replayed bool
		written  bool
	)
	err := s.store.Lock(ctx, event.ProductIDs(), func(ctx context.Context, repo catalog.Repository) error {
		routingKey, found, err := ledger.Lookup(ctx, key)
		if err != nil {
			return err
		}
		if found {
			recorded, replayed = routingKey, true
			return nil
		}

		if outcome, err = s.dispatch(ctx, repo, event); err != nil {
			return err
		}
		// A ledger failure only loses replay protection.
		if err := ledger.Record(ctx, key, outcome.RoutingKey()); err != nil {
			s.logger.Error("❌ Failed to record outcome",
				zap.String("idempotency_key", key),
				zap.Int64("order_id", event.Order()),
				zap.Error(err),
			)
			return nil
		}
		written = true
		return nil
	})
	if err != nil {
		// The stock changes were rolled back, so the record must go too.
		if written {
			if ferr := ledger.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				s.logger.Error("❌ Failed to forget outcome of rolled back reconciliation",
					zap.String("idempotency_key", key),
					zap.Error(ferr),
				)
			}
		}
		return "", false, s.failed(span, event, err)
	}

	if replayed {
		span.SetAttributes(attribute.Bool("inventory.replayed", true))
		span.SetStatus(codes.Ok, "")
		return recorded, true, nil
	}
	s.succeeded(ctx, span, event, outcome)
	return outcome.RoutingKey(), false, nil
}

func (s *DefaultService) startSpan(ctx context.Context, event OrderEvent) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "stock_reconcile")
	span.SetAttributes(
		attribute.Int64("order.id", event.Order()),
		attribute.String("event.routing_key", event.RoutingKey()),
		attribute.Int("inventory.products", len(event.ProductIDs())),
	)
	return ctx, span
}

func (s *DefaultService) dispatch(ctx context.Context, repo catalog.Repository, event OrderEvent) (Outcome, error) {
	switch e := event.(type) {
	case OrderCreated:
		return s.reserve(ctx, repo, e)
	case OrderUpdated:
		return s.adjust(ctx, repo, e)
	case OrderCancelled:
		return s.restore(ctx, repo, e.OrderID, e.Items), nil
	case OrderDeleted:
		return s.restore(ctx, repo, e.OrderID, e.Items), nil
	}
	s.logger.Warn("⚠️ No reconciliation for event", zap.String("routing_key", event.RoutingKey()))
	return OutcomeDropped, nil
}

func (s *DefaultService) failed(span trace.Span, event OrderEvent, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "reconciliation failed")
	return fmt.Errorf("reconcile %s for order %d: %w", event.RoutingKey(), event.Order(), err)
}

func (s *DefaultService) succeeded(ctx context.Context, span trace.Span, event OrderEvent, outcome Outcome) {
	span.SetAttributes(attribute.String("inventory.outcome", string(outcome)))
	span.SetStatus(codes.Ok, "")
	s.reconciliations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event.RoutingKey()),
		attribute.String("outcome", string(outcome)),
	))
}

// reserve handles order.created: all lines or nothing at decision time, then
// best-effort decrements.
func (s *DefaultService) reserve(ctx context.Context, repo catalog.Repository, e OrderCreated) (Outcome, error) {
	lookup, err := s.snapshot(ctx, repo, e.ProductIDs())
	if err != nil {
		return "", err
	}
	if shortages := stock.Shortages(e.Items, lookup); len(shortages) > 0 {
		s.logShortages(e.OrderID, shortages)
		return OutcomeInsufficient, nil
	}

	totals := stock.Totals(e.Items)
	for _, id := range e.ProductIDs() {
		if err := s.apply(ctx, repo, id, -totals[id]); errors.Is(err, catalog.ErrProductNotFound) {
			s.logger.Error("❌ Product disappeared after availability check",
				zap.Int64("order_id", e.OrderID), zap.Int64("product_id", id))
		}
	}

	s.logger.Info("✅ Stock reserved for order", zap.Int64("order_id", e.OrderID))
	return OutcomeConfirmed, nil
}

// adjust handles order.updated: every consumption is checked before anything
// is written.
func (s *DefaultService) adjust(ctx context.Context, repo catalog.Repository, e OrderUpdated) (Outcome, error) {
	consume, release := stock.Partition(stock.ComputeNetDelta(e.PreviousItems, e.Items))

	lookup, err := s.snapshot(ctx, repo, adjustmentIDs(consume))
	if err != nil {
		return "", err
	}
	if shortages := stock.Shortages(asLines(consume), lookup); len(shortages) > 0 {
		s.logShortages(e.OrderID, shortages)
		return OutcomeInsufficient, nil
	}

	for _, c := range consume {
		if err := s.apply(ctx, repo, c.ItemID, -c.Quantity); errors.Is(err, catalog.ErrProductNotFound) {
			s.logger.Error("❌ Product disappeared after availability check",
				zap.Int64("order_id", e.OrderID), zap.Int64("product_id", c.ItemID))
		}
	}
	for _, r := range release {
		if r.Quantity == 0 {
			continue
		}
		if err := s.apply(ctx, repo, r.ItemID, r.Quantity); errors.Is(err, catalog.ErrProductNotFound) {
			s.logger.Debug("Skipping release into missing product",
				zap.Int64("order_id", e.OrderID), zap.Int64("product_id", r.ItemID))
		}
	}

	s.logger.Info("✅ Stock adjusted for updated order",
		zap.Int64("order_id", e.OrderID),
		zap.Int("consumed_products", len(consume)),
		zap.Int("released_products", len(release)),
	)
	return OutcomeConfirmed, nil
}

// restore handles order.cancelled and order.deleted.
func (s *DefaultService) restore(ctx context.Context, repo catalog.Repository, orderID int64, items []stock.Line) Outcome {
	totals := stock.Totals(items)
	for _, id := range stock.ItemIDs(items) {
		if err := s.apply(ctx, repo, id, totals[id]); errors.Is(err, catalog.ErrProductNotFound) {
			s.logger.Warn("⚠️ Cannot restore stock, product not found",
				zap.Int64("order_id", orderID), zap.Int64("product_id", id))
		}
	}

	s.logger.Info("♻️ Stock restored for order", zap.Int64("order_id", orderID))
	return OutcomeRestored
}

// snapshot reads the current stock of ids. Missing products are left out of
// the lookup; any other read failure aborts the reconciliation.
func (s *DefaultService) snapshot(ctx context.Context, repo catalog.Repository, ids []int64) (stock.Lookup, error) {
	current := make(map[int64]int, len(ids))
	for _, id := range ids {
		p, err := repo.FindByID(ctx, id)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read product %d: %w", id, err)
		}
		current[id] = p.Stock
	}
	return func(id int64) (int, bool) {
		n, ok := current[id]
		return n, ok
	}, nil
}

// apply adds change to a product's stock. Save failures are logged and
// swallowed; a missing product is returned as catalog.ErrProductNotFound so
// the caller picks the log level.
func (s *DefaultService) apply(ctx context.Context, repo catalog.Repository, id int64, change int) error {
	p, err := repo.FindByID(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return err
	}
	if err != nil {
		s.logger.Error("❌ Failed to read product", zap.Int64("product_id", id), zap.Error(err))
		return err
	}

	p.Stock += change
	if _, err := repo.Save(ctx, p); err != nil {
		s.logger.Error("❌ Failed to save product stock",
			zap.Int64("product_id", id),
			zap.Int("change", change),
			zap.Error(err),
		)
		return err
	}
	s.logger.Debug("Stock updated",
		zap.Int64("product_id", id),
		zap.Int("change", change),
		zap.Int("stock", p.Stock),
	)
	return nil
}

func (s *DefaultService) logShortages(orderID int64, shortages []stock.Shortage) {
	for _, sh := range shortages {
		s.logger.Warn("⚠️ Insufficient stock",
			zap.Int64("order_id", orderID),
			zap.Int64("product_id", sh.ItemID),
			zap.Int("requested", sh.Requested),
			zap.Int("available", sh.Available),
			zap.Bool("missing", sh.Missing),
		)
	}
}

func asLines(adjustments []stock.Adjustment) []stock.Line {
	lines := make([]stock.Line, len(adjustments))
	for i, a := range adjustments {
		lines[i] = stock.Line{ItemID: a.ItemID, Quantity: a.Quantity}
	}
	return lines
}

func adjustmentIDs(adjustments []stock.Adjustment) []int64 {
	ids := make([]int64, len(adjustments))
	for i, a := range adjustments {
		ids[i] = a.ItemID
	}
	return ids
}
