// Package jetstream polls a JetStream stream by sequence number.
//
// Each poll reads the messages with a sequence strictly after the consumer's
// watermark, optionally filtered by subject. The watermark lives in a NATS KV
// bucket keyed by consumer name. It is advanced after a successful fetch, but
// only over the events the batch dispatched: events cut off by
// max_messages_per_poll or by a stop are fetched again by the next poll, and
// a restarted consumer continues after the last dispatched event. The fetch
// limit is capped at max_messages_per_poll.
// Committing can delete the message from the stream.
package jetstream
