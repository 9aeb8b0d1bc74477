package poll

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/streamcache"
)

// FactoryDeps is what a Factory gets to build a consumer
type FactoryDeps struct {
	component.Dependencies

	Processor        exchange.Processor
	ExceptionHandler exchange.ExceptionHandler
	PollStrategy     PollStrategy

	// StreamCache is used when the consumer enables stream caching
	StreamCache *streamcache.Strategy
}

// Factory builds a consumer for one configuration entry
type Factory func(cfg ConsumerConfig, deps FactoryDeps) (*ScheduledPollConsumer, error)

// Registry maps strategy type names to factories. It is filled once at
// startup and read afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a name twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.WrapInvalid(fmt.Errorf("name and factory are required"), "Registry", "Register", "factory check")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(fmt.Errorf("strategy %q already registered", name), "Registry", "Register", "duplicate check")
	}
	r.factories[name] = factory
	return nil
}

// Create builds the consumer described by cfg using the factory for cfg.Type
func (r *Registry) Create(cfg ConsumerConfig, deps FactoryDeps) (*ScheduledPollConsumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("unknown strategy type %q", cfg.Type), "Registry", "Create", "factory lookup")
	}

	consumer, err := factory(cfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", fmt.Sprintf("create consumer %q", cfg.Name))
	}
	return consumer, nil
}

// Names returns the registered type names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewConsumer wires a strategy into a BatchConsumer driven by a
// ScheduledPollConsumer. Connector factories call it once they have built
// their strategy.
func NewConsumer[T any](cfg ConsumerConfig, strategy ProcessingStrategy[T], deps FactoryDeps) (*ScheduledPollConsumer, *BatchConsumer[T], error) {
	batchCfg, err := cfg.BatchConfig()
	if err != nil {
		return nil, nil, err
	}
	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return nil, nil, err
	}

	batchDeps := BatchDeps{
		Processor:        deps.Processor,
		ExceptionHandler: deps.ExceptionHandler,
		MetricsRegistry:  deps.MetricsRegistry,
		Logger:           deps.Logger,
	}
	if cfg.StreamCaching {
		batchDeps.StreamCache = deps.StreamCache
	}
	batch, err := NewBatchConsumer(batchCfg, strategy, batchDeps)
	if err != nil {
		return nil, nil, err
	}

	pollStrategy := deps.PollStrategy
	if pollStrategy == nil {
		if pollStrategy, err = cfg.PollStrategy(); err != nil {
			return nil, nil, err
		}
	}

	consumer, err := NewScheduledPollConsumer(schedCfg, SchedulerDeps{
		Name:             cfg.Name,
		Poller:           batch,
		Processor:        deps.Processor,
		PollStrategy:     pollStrategy,
		ExceptionHandler: deps.ExceptionHandler,
		MetricsRegistry:  deps.MetricsRegistry,
		Logger:           deps.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return consumer, batch, nil
}
