package app

import (
	"context"
	"fmt"
	"os"

	"github.com/PayeTonKawa2025/products-api/internal/catalog"
	"github.com/PayeTonKawa2025/products-api/internal/catalog/postgres"
	"github.com/PayeTonKawa2025/products-api/internal/config"
	"github.com/PayeTonKawa2025/products-api/internal/platform/health"
	"github.com/PayeTonKawa2025/products-api/internal/platform/idempotency"
	"github.com/PayeTonKawa2025/products-api/internal/platform/kafka"
	"github.com/PayeTonKawa2025/products-api/internal/platform/observability"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config             *config.Config
	logger             observability.Logger
	tracer             observability.Tracer
	meter              observability.Meter
	pool               *pgxpool.Pool
	redis              *redis.Client
	store              catalog.Store
	ledger             idempotency.Ledger
	messageConsumer    kafka.Consumer
	messageProducer    kafka.Producer
	deadLetterProducer kafka.Producer
	otelShutdown       func(context.Context) error
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	container := &Container{
		config: cfg,
	}

	if err := container.setupLogger(); err != nil {
		return nil, err
	}

	steps := []func(context.Context) error{
		container.setupObservability,
		container.setupStore,
		container.setupLedger,
		container.setupKafka,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			container.Shutdown(context.Background())
			return nil, err
		}
	}

	return container, nil
}

// setupLogger installs a console logger used until the OTel bridge is ready.
func (c *Container) setupLogger() error {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(c.config.LogLevel)
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	c.logger = logger
	return nil
}

// setupObservability configures OpenTelemetry logging, tracing and metrics
func (c *Container) setupObservability(ctx context.Context) error {
	observability.SetupPropagation()

	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}

	_, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}

	otelMetricShutdown, err := observability.SetupMetricsSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry metrics", zap.Error(err))
	}

	c.otelShutdown = observability.JoinShutdown(otelLogShutdown, otelTraceShutdown, otelMetricShutdown)

	c.reinitializeLoggerWithOTel()

	c.tracer = otel.Tracer(config.ServiceName)
	c.meter = otel.Meter(config.ServiceName)
	return nil
}

// reinitializeLoggerWithOTel creates a new logger with OpenTelemetry integration
func (c *Container) reinitializeLoggerWithOTel() {
	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(os.Stdout),
		c.config.LogLevel,
	)

	finalCore := consoleCore
	if c.config.OtelEnabled() {
		otelZapCore := otelzap.NewCore(config.ServiceName+".manual",
			otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		)
		finalCore = zapcore.NewTee(otelZapCore, consoleCore)
	}

	c.logger = zap.New(finalCore,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	)
	c.logger.Info("Logger re-initialized", zap.Bool("otel", c.config.OtelEnabled()))
}

// setupStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise. The seed file is applied to either.
func (c *Container) setupStore(ctx context.Context) error {
	if c.config.DatabaseURL == "" {
		c.logger.Warn("DATABASE_URL not set, using in-memory product store")
		c.store = catalog.NewMemoryStore()
	} else {
		pool, err := pgxpool.New(ctx, c.config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		c.pool = pool
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach postgres: %w", err)
		}
		c.store = postgres.NewStore(pool, c.logger)
		c.logger.Info("Connected to postgres product store")
	}

	if c.config.ProductSeedFile != "" {
		n, err := catalog.LoadSeed(ctx, c.store, c.config.ProductSeedFile)
		if err != nil {
			return err
		}
		c.logger.Info("🌱 Seeded products", zap.Int("count", n), zap.String("file", c.config.ProductSeedFile))
	}
	return nil
}

// setupLedger connects to Redis when REDIS_ADDR is set and falls back to an
// in-process ledger otherwise.
func (c *Container) setupLedger(ctx context.Context) error {
	if c.config.RedisAddr == "" {
		c.logger.Warn("REDIS_ADDR not set, using in-memory idempotency ledger")
		c.ledger = idempotency.NewMemoryStore(c.config.IdempotencyTTL)
		return nil
	}

	c.redis = redis.NewClient(&redis.Options{Addr: c.config.RedisAddr})
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", c.config.RedisAddr, err)
	}
	c.ledger = idempotency.NewRedisStore(c.redis, c.config.IdempotencyTTL)
	c.logger.Info("Connected to redis idempotency ledger", zap.String("addr", c.config.RedisAddr))
	return nil
}

// setupKafka creates the group reader plus instrumented writers for outcome
// events and dead letters.
func (c *Container) setupKafka(_ context.Context) error {
	c.messageConsumer = kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: c.config.Brokers(),
		Topic:   c.config.ExchangeTopic,
		GroupID: c.config.GroupID,
	})

	tp := otel.GetTracerProvider()

	producer, err := c.newWriter(tp, c.config.ExchangeTopic)
	if err != nil {
		return fmt.Errorf("failed to create event writer: %w", err)
	}
	c.messageProducer = producer

	deadLetter, err := c.newWriter(tp, c.config.DeadLetterTopic)
	if err != nil {
		return fmt.Errorf("failed to create dead-letter writer: %w", err)
	}
	c.deadLetterProducer = deadLetter

	return nil
}

func (c *Container) newWriter(tp trace.TracerProvider, topic string) (kafka.Producer, error) {
	baseWriter := &kafkago.Writer{
		Addr:         kafkago.TCP(c.config.Brokers()...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
		RequiredAcks: kafkago.RequireAll,
	}

	return otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", config.ServiceName),
			},
		),
	)
}

// HealthChecks returns a readiness check per external dependency in use.
func (c *Container) HealthChecks() map[string]health.Check {
	checks := map[string]health.Check{
		"kafka": func(ctx context.Context) error {
			conn, err := kafkago.DialContext(ctx, "tcp", c.config.Brokers()[0])
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
	if c.pool != nil {
		checks["postgres"] = c.pool.Ping
	}
	if c.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.redis.Ping(ctx).Err() }
	}
	return checks
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	// Close Kafka components
	if c.messageConsumer != nil {
		if err := c.messageConsumer.Close(); err != nil {
			c.logger.Error("Failed to close message consumer", zap.Error(err))
		}
	}
	if c.messageProducer != nil {
		if err := c.messageProducer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}
	if c.deadLetterProducer != nil {
		if err := c.deadLetterProducer.Close(); err != nil {
			c.logger.Error("Failed to close dead-letter producer", zap.Error(err))
		}
	}

	// Close stores
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}

	// Shutdown OpenTelemetry
	if c.otelShutdown != nil {
		if err := c.otelShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}

	c.logger.Info("Infrastructure shutdown complete")

	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config             { return c.config }
func (c *Container) Logger() observability.Logger       { return c.logger }
func (c *Container) Tracer() observability.Tracer       { return c.tracer }
func (c *Container) Meter() observability.Meter         { return c.meter }
func (c *Container) Store() catalog.Store               { return c.store }
func (c *Container) Ledger() idempotency.Ledger         { return c.ledger }
func (c *Container) MessageConsumer() kafka.Consumer    { return c.messageConsumer }
func (c *Container) MessageProducer() kafka.Producer    { return c.messageProducer }
func (c *Container) DeadLetterProducer() kafka.Producer { return c.deadLetterProducer }
