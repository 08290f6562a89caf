/*
Package container provides dependency injection capabilities for the feed
refresh agent.

This package implements a simple dependency injection container that helps
manage service dependencies and reduces tight coupling between components.
*/
package container

import (
	"fmt"
	"sync"

	"github.com/glean-reader/feed-refresh-agent/cache"
	"github.com/glean-reader/feed-refresh-agent/client"
	"github.com/glean-reader/feed-refresh-agent/handlers"
	"github.com/glean-reader/feed-refresh-agent/refresh"
	"github.com/sirupsen/logrus"
)

// Container holds all service dependencies
type Container struct {
	mu            sync.RWMutex
	services      map[string]interface{}
	factories     map[string]func() (interface{}, error)
	singletons    map[string]interface{}
	backendClient *client.Client
	feedCache     *cache.FeedListCache
	coordinator   *refresh.Coordinator
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

// GetBackendClient retrieves the backend client service
func (c *Container) GetBackendClient() (*client.Client, error) {
	service, err := c.Get("backend")
	if err != nil {
		return nil, err
	}
	backendClient, ok := service.(*client.Client)
	if !ok {
		return nil, fmt.Errorf("backend service is not of expected type")
	}
	return backendClient, nil
}

// GetFeedCache retrieves the feed-list cache service
func (c *Container) GetFeedCache() (*cache.FeedListCache, error) {
	service, err := c.Get("cache")
	if err != nil {
		return nil, err
	}
	feedCache, ok := service.(*cache.FeedListCache)
	if !ok {
		return nil, fmt.Errorf("cache service is not of expected type")
	}
	return feedCache, nil
}

// GetCoordinator retrieves the refresh coordinator service
func (c *Container) GetCoordinator() (*refresh.Coordinator, error) {
	service, err := c.Get("coordinator")
	if err != nil {
		return nil, err
	}
	coordinator, ok := service.(*refresh.Coordinator)
	if !ok {
		return nil, fmt.Errorf("coordinator service is not of expected type")
	}
	return coordinator, nil
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

// InitializeServices initializes all core services with proper dependencies
func (c *Container) InitializeServices(backendClient *client.Client, feedCache *cache.FeedListCache, coordinator *refresh.Coordinator, logger *logrus.Logger) error {
	c.backendClient = backendClient
	c.feedCache = feedCache
	c.coordinator = coordinator

	// Register core services
	c.RegisterSingleton("logger", logger)
	c.RegisterSingleton("backend", backendClient)
	c.RegisterSingleton("cache", feedCache)
	c.RegisterSingleton("coordinator", coordinator)

	// Register handler factory that depends on other services
	c.RegisterFactory("handler", func() (interface{}, error) {
		return handlers.NewHandler(coordinator, backendClient, logger), nil
	})

	return nil
}

// Close gracefully closes all service connections
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Stop the refresh coordinator's poll loop if running
	if c.coordinator != nil {
		c.coordinator.Close()
	}

	return nil
}
