/*
Package container provides dependency injection capabilities for the status monitor backend.

This package implements a simple dependency injection container that helps manage
service dependencies and reduces tight coupling between components.
*/
package container

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/eventlog"
	"github.com/statuswatch/status-monitor-backend/gateway"
	"github.com/statuswatch/status-monitor-backend/handlers"
	"github.com/statuswatch/status-monitor-backend/handlers/health"
	"github.com/statuswatch/status-monitor-backend/monitor"
)

// Container holds all service dependencies
type Container struct {
	mu         sync.RWMutex
	services   map[string]interface{}
	factories  map[string]func() (interface{}, error)
	singletons map[string]interface{}
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		services:   make(map[string]interface{}),
		factories:  make(map[string]func() (interface{}, error)),
		singletons: make(map[string]interface{}),
	}
}

// Register registers a service instance
func (c *Container) Register(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

// RegisterFactory registers a factory function for lazy service creation
func (c *Container) RegisterFactory(name string, factory func() (interface{}, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// RegisterSingleton registers a singleton service
func (c *Container) RegisterSingleton(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletons[name] = service
}

// Get retrieves a service by name
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Check if service is already registered
	if service, exists := c.services[name]; exists {
		return service, nil
	}

	// Check if it's a singleton
	if singleton, exists := c.singletons[name]; exists {
		return singleton, nil
	}

	// Check if there's a factory for this service
	if factory, exists := c.factories[name]; exists {
		service, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create service %s: %v", name, err)
		}
		return service, nil
	}

	return nil, fmt.Errorf("service %s not found", name)
}

// GetLogger retrieves the logger service
func (c *Container) GetLogger() (*logrus.Logger, error) {
	service, err := c.Get("logger")
	if err != nil {
		return nil, err
	}
	logger, ok := service.(*logrus.Logger)
	if !ok {
		return nil, fmt.Errorf("logger service is not of expected type")
	}
	return logger, nil
}

// GetManager retrieves the monitor manager service
func (c *Container) GetManager() (*monitor.Manager, error) {
	service, err := c.Get("monitor")
	if err != nil {
		return nil, err
	}
	manager, ok := service.(*monitor.Manager)
	if !ok {
		return nil, fmt.Errorf("monitor service is not of expected type")
	}
	return manager, nil
}

// GetBus retrieves the event bus service
func (c *Container) GetBus() (*bus.Bus, error) {
	service, err := c.Get("bus")
	if err != nil {
		return nil, err
	}
	eventBus, ok := service.(*bus.Bus)
	if !ok {
		return nil, fmt.Errorf("bus service is not of expected type")
	}
	return eventBus, nil
}

// GetEventLog retrieves the event log service
func (c *Container) GetEventLog() (*eventlog.Log, error) {
	service, err := c.Get("eventlog")
	if err != nil {
		return nil, err
	}
	log, ok := service.(*eventlog.Log)
	if !ok {
		return nil, fmt.Errorf("eventlog service is not of expected type")
	}
	return log, nil
}

// GetGateway retrieves the websocket gateway service
func (c *Container) GetGateway() (*gateway.Gateway, error) {
	service, err := c.Get("gateway")
	if err != nil {
		return nil, err
	}
	gw, ok := service.(*gateway.Gateway)
	if !ok {
		return nil, fmt.Errorf("gateway service is not of expected type")
	}
	return gw, nil
}

// GetHandler retrieves the handler service
func (c *Container) GetHandler() (*handlers.Handler, error) {
	service, err := c.Get("handler")
	if err != nil {
		return nil, err
	}
	handler, ok := service.(*handlers.Handler)
	if !ok {
		return nil, fmt.Errorf("handler service is not of expected type")
	}
	return handler, nil
}

// GetHealthHandler retrieves the health handler service
func (c *Container) GetHealthHandler() (*health.Handler, error) {
	service, err := c.Get("health")
	if err != nil {
		return nil, err
	}
	handler, ok := service.(*health.Handler)
	if !ok {
		return nil, fmt.Errorf("health service is not of expected type")
	}
	return handler, nil
}

// InitializeServices initializes all core services with proper dependencies
func (c *Container) InitializeServices(manager *monitor.Manager, eventBus *bus.Bus, eventLog *eventlog.Log, gw *gateway.Gateway, handlerOpts handlers.Options, logger *logrus.Logger) error {
	// Register core services
	c.RegisterSingleton("logger", logger)
	c.RegisterSingleton("monitor", manager)
	c.RegisterSingleton("bus", eventBus)
	c.RegisterSingleton("eventlog", eventLog)
	c.RegisterSingleton("gateway", gw)

	// Register handler factories that depend on other services
	c.RegisterFactory("handler", func() (interface{}, error) {
		return handlers.NewHandler(manager, eventLog, eventBus, handlerOpts, logger), nil
	})
	c.RegisterFactory("health", func() (interface{}, error) {
		return health.NewHandler(manager, eventBus, logger), nil
	})

	return nil
}

// Close gracefully stops the monitor and closes the event bus
func (c *Container) Close() error {
	if manager, err := c.GetManager(); err == nil && manager != nil {
		manager.Stop()
	}
	if eventBus, err := c.GetBus(); err == nil && eventBus != nil {
		eventBus.Close()
	}
	return nil
}
