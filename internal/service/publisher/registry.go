package publisher

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownType is returned by Resolve when no publisher is registered for
// an integration type. It signals misconfiguration, not a delivery failure.
var ErrUnknownType = errors.New("no publisher registered for integration type")

// Factory constructs a publisher for one integration type.
type Factory func() Publisher

// Registry maps integration type tags to publisher factories. New types are
// added via Register without touching the resolution logic.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

func (r *Registry) Register(integrationType string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[integrationType]; exists {
		return fmt.Errorf("publisher for type %s already registered", integrationType)
	}

	r.factories[integrationType] = factory
	r.logger.Info("Publisher registered", zap.String("type", integrationType))
	return nil
}

// Resolve returns the publisher for the given integration type, or an error
// wrapping ErrUnknownType when the type has no registered publisher.
func (r *Registry) Resolve(integrationType string) (Publisher, error) {
	r.mu.RLock()
	factory, exists := r.factories[integrationType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, integrationType)
	}
	return factory(), nil
}

// Supports is the non-throwing existence check used by validation and UIs.
func (r *Registry) Supports(integrationType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[integrationType]
	return exists
}

// Types returns the registered integration types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
