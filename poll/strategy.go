package poll

import (
	"context"

	"github.com/c360/streamkit/exchange"
)

// ProcessingStrategy is implemented by each connector.
type ProcessingStrategy[T any] interface {
	// Poll fetches the items currently available. Advancing any watermark is
	// the strategy's job and must only happen when the fetch succeeded;
	// strategies that may fetch more than a batch takes implement
	// Acknowledger and advance there.
	Poll(ctx context.Context) ([]T, error)

	// CreateExchange wraps one item, setting the connector headers.
	CreateExchange(item T) *exchange.Exchange

	// Commit acknowledges an item after the processor handled it.
	Commit(ctx context.Context, ex *exchange.Exchange, item T) error
}

// Acknowledger is implemented by strategies whose read position should only
// move over items that were dispatched. Acknowledge receives the dispatched
// prefix of the polled items, in order, once per poll. Items cut off by
// MaxMessagesPerPoll or by Stop are not part of it and must be returned by
// a later Poll.
type Acknowledger[T any] interface {
	Acknowledge(ctx context.Context, dispatched []T) error
}

// Watermarked is implemented by strategies that track the last seen position
type Watermarked interface {
	Watermark() string
}

// Poller is what the scheduler drives. Poll returns the number of exchanges
// it processed.
type Poller interface {
	Poll(ctx context.Context) (int, error)
}

// BatchItem pairs an exchange with the item it was created from
type BatchItem[T any] struct {
	Exchange *exchange.Exchange
	Item     T

	// Empty marks the exchange sent for an empty result set; it has no item
	// to commit.
	Empty bool
}

// ProcessingMode selects how exchanges are handed to the processor
type ProcessingMode string

const (
	// ModeSync processes each exchange on the polling goroutine
	ModeSync ProcessingMode = "sync"
	// ModeAsync hands exchanges to a worker pool
	ModeAsync ProcessingMode = "async"
)
