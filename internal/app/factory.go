package app

import (
	"github.com/PayeTonKawa2025/products-api/internal/inventory"
)

// ServiceFactory creates business logic services with their dependencies
type ServiceFactory struct {
	container *Container
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(container *Container) *ServiceFactory {
	return &ServiceFactory{
		container: container,
	}
}

// CreateInventoryService creates the reconciliation engine over the configured store
func (f *ServiceFactory) CreateInventoryService() (inventory.Service, error) {
	c := f.container
	return inventory.NewService(c.Store(), c.Logger(), c.Tracer(), c.Meter())
}

// CreatePublisher creates the outcome event publisher
func (f *ServiceFactory) CreatePublisher() inventory.Publisher {
	c := f.container
	return inventory.NewEventPublisher(c.MessageProducer(), c.Config().ExchangeTopic, c.Logger())
}

// CreateMessageHandler creates a new message handler instance
func (f *ServiceFactory) CreateMessageHandler(service inventory.Service, publisher inventory.Publisher) inventory.MessageHandler {
	c := f.container
	return inventory.NewMessageHandler(service, publisher, c.Ledger(), c.Logger(), c.Tracer())
}

// CreateConsumerService wires the full pipeline behind the Kafka read loop
func (f *ServiceFactory) CreateConsumerService() (inventory.ConsumerService, error) {
	c := f.container

	service, err := f.CreateInventoryService()
	if err != nil {
		return nil, err
	}
	handler := f.CreateMessageHandler(service, f.CreatePublisher())

	return inventory.NewConsumerService(c.MessageConsumer(), handler, c.DeadLetterProducer(), c.Logger(), c.Meter(),
		inventory.ConsumerOptions{
			BindingPattern: c.Config().BindingPattern,
			MaxAttempts:    c.Config().MaxDeliveryAttempts,
		})
}
