package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PayeTonKawa2025/products-api/internal/inventory"
	"github.com/PayeTonKawa2025/products-api/internal/platform/health"

	"go.uber.org/zap"
)

const healthShutdownTimeout = 5 * time.Second

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
	consumer  inventory.ConsumerService
	health    *health.Server
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	container, err := NewContainer(app.ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	consumer, err := NewServiceFactory(container).CreateConsumerService()
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.consumer = consumer

	cfg := container.Config()
	app.health = health.NewServer(cfg.HealthAddr, container.Logger(), container.HealthChecks())

	container.Logger().Info("Application initialized successfully",
		zap.String("topic", cfg.ExchangeTopic),
		zap.String("group_id", cfg.GroupID),
		zap.String("binding", cfg.BindingPattern),
	)
	return app, nil
}

// Run starts the probe server and the main event processing loop. It returns
// when the loop stops or the probe server fails.
func (app *Application) Run() error {
	healthErr := make(chan error, 1)
	go func() {
		if err := app.health.Start(); err != nil {
			app.container.Logger().Error("Health server stopped", zap.Error(err))
			healthErr <- err
			app.cancel()
		}
	}()

	err := app.consumer.Start(app.ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), healthShutdownTimeout)
	defer cancel()
	if shutdownErr := app.health.Shutdown(shutdownCtx); shutdownErr != nil {
		app.container.Logger().Error("Health server graceful shutdown failed", zap.Error(shutdownErr))
	}

	select {
	case hErr := <-healthErr:
		return errors.Join(err, hErr)
	default:
		return err
	}
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		app.container.Shutdown(context.Background())
	}
}
