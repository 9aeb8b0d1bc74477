package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/poll"
)

// TypeName is the consumer type handled by this connector
const TypeName = "jetstream"

const setupTimeout = 10 * time.Second

// Register adds the jetstream factory to registry. Consumers use the NATS
// client from their factory dependencies.
func Register(registry *poll.Registry) error {
	return registry.Register(TypeName, func(cfg poll.ConsumerConfig, deps poll.FactoryDeps) (*poll.ScheduledPollConsumer, error) {
		var opts Options
		if err := cfg.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if m := cfg.MaxMessagesPerPoll; m > 0 && (opts.FetchLimit == 0 || opts.FetchLimit > m) {
			opts.FetchLimit = m
		}
		client := deps.NATSClient
		if client == nil {
			return nil, errors.WrapInvalid(fmt.Errorf("consumer %q needs a NATS client", cfg.Name),
				"jetstream", "Register", "dependency check")
		}

		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		stream, err := client.Stream(ctx, opts.Stream)
		if err != nil {
			return nil, err
		}
		bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      poll.Resolve(opts.Bucket, DefaultBucket),
			Description: "streamkit consumer watermarks",
		})
		if err != nil {
			return nil, err
		}

		strategy, err := NewStrategy(cfg.Name, opts, StreamSource{Stream: stream},
			KVWatermarks{Store: client.NewKVStore(bucket)})
		if err != nil {
			return nil, err
		}
		deps.GetLoggerWithComponent("jetstream-connector").Debug("JetStream source ready",
			"consumer", cfg.Name, "stream", opts.Stream, "bucket", bucket.Bucket())
		consumer, _, err := poll.NewConsumer[Event](cfg, strategy, deps)
		return consumer, err
	})
}
