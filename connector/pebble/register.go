package pebble

import (
	"sync"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/poll"
)

// TypeName is the consumer type handled by this connector
const TypeName = "pebble"

// Stores opens each database path once and shares it between consumers
type Stores struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewStores creates an empty set
func NewStores() *Stores {
	return &Stores{stores: make(map[string]*Store)}
}

// Get returns the store at path, opening it on first use
func (s *Stores) Get(path string) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[path]; ok {
		return store, nil
	}
	store, err := Open(StoreOptions{Path: path})
	if err != nil {
		return nil, err
	}
	s.stores[path] = store
	return store, nil
}

// Close closes every open store
func (s *Stores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for path, store := range s.stores {
		if err := store.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "pebble.Stores", "Close", "close "+path)
		}
		delete(s.stores, path)
	}
	return first
}

// Register adds the pebble factory to registry
func Register(registry *poll.Registry, stores *Stores) error {
	return registry.Register(TypeName, func(cfg poll.ConsumerConfig, deps poll.FactoryDeps) (*poll.ScheduledPollConsumer, error) {
		var opts Options
		if err := cfg.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		if opts.Path == "" {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "pebble", "Register", "path check")
		}
		store, err := stores.Get(opts.Path)
		if err != nil {
			return nil, err
		}
		strategy, err := NewStrategy(cfg.Name, store, opts)
		if err != nil {
			return nil, err
		}
		deps.GetLoggerWithComponent("pebble-connector").Debug("Pebble source ready",
			"consumer", cfg.Name, "path", store.Path(), "watermark", strategy.Watermark())
		consumer, _, err := poll.NewConsumer[Row](cfg, strategy, deps)
		return consumer, err
	})
}
