// Package streamkit is a small integration core for scheduled batch polling
// with stream caching.
//
// # Layout
//
// A message travels in an exchange (package exchange): a body, headers,
// properties and a unit of work whose completion callbacks release resources
// such as spool files.
//
// Polling consumers (package poll) are built from two parts:
//
//   - ScheduledPollConsumer runs the schedule: initial delay, fixed delay,
//     repeat count, greedy re-polls, idle and error backoff, suspension and a
//     PollStrategy hook around every poll.
//   - BatchConsumer turns the items returned by a ProcessingStrategy into
//     exchanges, caps them at MaxMessagesPerPoll and processes them
//     synchronously or on a worker pool, committing each item once its
//     exchange completes.
//
// Connectors (package connector/...) supply ProcessingStrategy
// implementations:
//
//   - memtable: a btree-backed in-memory table
//   - pebble: a Pebble key range with a persisted watermark
//   - jetstream: a NATS JetStream stream with watermarks kept in a KV bucket
//
// Timer consumers (package timer) fire exchanges on a schedule. Consumers
// naming the same timer share one executor goroutine.
//
// The stream cache (package streamcache) makes one-shot bodies re-readable.
// Small bodies stay in memory; larger ones are spooled to temp files,
// optionally AES encrypted, and deleted when the last exchange using them is
// done.
//
// # Ambient packages
//
//   - errors: classified errors (transient, invalid, fatal) with a uniform
//     "component.method: action failed" message format
//   - config: layered YAML/JSON configuration with schema validation and
//     STREAMKIT_* environment overrides
//   - metric: Prometheus registry, core metrics and the HTTP endpoint
//   - health: component health aggregated for /health and /ready
//   - natsclient: NATS connection, JetStream and KV helpers
//   - pkg/retry, pkg/worker, pkg/tlsutil: retry policies, bounded worker
//     pools and TLS client configuration
//
// # Running
//
//	streamkit run --config configs/streamkit.yaml
//	streamkit spool --threshold 1024 --cipher AES/CTR/NoPadding big.bin
//	streamkit version
package streamkit
