package memtable

import (
	"github.com/c360/streamkit/poll"
)

// TypeName is the consumer type handled by this connector
const TypeName = "memtable"

// Register adds the memtable factory to registry. Tables are looked up in
// catalog by the consumer's table option.
func Register(registry *poll.Registry, catalog *Catalog) error {
	return registry.Register(TypeName, func(cfg poll.ConsumerConfig, deps poll.FactoryDeps) (*poll.ScheduledPollConsumer, error) {
		var opts Options
		if err := cfg.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		strategy, err := NewStrategy(catalog.Table(opts.Table), opts)
		if err != nil {
			return nil, err
		}
		consumer, _, err := poll.NewConsumer[Row](cfg, strategy, deps)
		return consumer, err
	})
}
