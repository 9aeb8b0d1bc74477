// Package poll implements scheduled batch polling consumers.
//
// A connector supplies a ProcessingStrategy: how to fetch items from its
// resource, how to turn one item into an exchange, and how to acknowledge an
// item once the pipeline handled it. BatchConsumer turns each fetch into a
// batch of exchanges and pushes them one by one into the processor, setting
// the batch properties on every exchange:
//
//	BatchIndex     0..n-1
//	BatchSize      n, after truncation to MaxMessagesPerPoll
//	BatchComplete  true on the last exchange only
//
// ScheduledPollConsumer drives a Poller on a fixed delay. It supports an
// initial delay, a repeat count, greedy polling (poll again at once while
// items are found), sending an empty exchange when idle, and backing off for
// a number of ticks after repeated idle or failed polls. Each poll is wrapped
// by a PollStrategy whose Rollback decides whether a failed poll is retried
// immediately.
//
// Consumers are usually built from configuration through a Registry of
// factories keyed by strategy type:
//
//	registry := poll.NewRegistry()
//	memtable.Register(registry, table)
//	consumer, err := registry.Create(cfg, deps)
//	if err != nil {
//	    return err
//	}
//	if err := consumer.Start(ctx); err != nil {
//	    return err
//	}
//	defer consumer.Stop(5 * time.Second)
//
// Switching between sync and async processing takes effect at the next batch;
// the mode is read once when a batch starts.
package poll
