package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/pkg/worker"
	"github.com/c360/streamkit/streamcache"
)

// BatchConfig holds the batch settings of a BatchConsumer
type BatchConfig struct {
	Name string

	// MaxMessagesPerPoll truncates each batch; zero means unlimited.
	MaxMessagesPerPoll int

	// RouteEmptyResultSet sends one exchange with an empty []T body when a
	// poll finds nothing.
	RouteEmptyResultSet bool

	Mode           ProcessingMode
	AsyncWorkers   int
	AsyncQueueSize int
}

// Validate checks the batch settings
func (c BatchConfig) Validate() error {
	if c.MaxMessagesPerPoll < 0 {
		return errors.WrapInvalid(fmt.Errorf("max_messages_per_poll %d", c.MaxMessagesPerPoll),
			"BatchConfig", "Validate", "max messages check")
	}
	switch c.Mode {
	case "", ModeSync, ModeAsync:
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown processing mode %q", c.Mode),
			"BatchConfig", "Validate", "processing mode check")
	}
	return nil
}

// BatchDeps holds the collaborators of a BatchConsumer. Processor is required.
type BatchDeps struct {
	Processor        exchange.Processor
	ExceptionHandler exchange.ExceptionHandler
	StreamCache      *streamcache.Strategy
	MetricsRegistry  *metric.MetricsRegistry
	Logger           *slog.Logger
}

// BatchConsumer turns fetched items into exchanges and processes them as a
// batch.
type BatchConsumer[T any] struct {
	name        string
	strategy    ProcessingStrategy[T]
	processor   exchange.Processor
	async       exchange.AsyncProcessor
	handler     exchange.ExceptionHandler
	streamCache *streamcache.Strategy
	logger      *slog.Logger
	metrics     *metric.Metrics
	pool        *worker.Pool[asyncTask[T]]

	maxMessages atomic.Int64
	routeEmpty  atomic.Bool
	mode        atomic.Value // ProcessingMode

	pending  atomic.Int64
	ready    atomic.Bool
	running  atomic.Bool
	stopping atomic.Bool

	processed    atomic.Int64
	failed       atomic.Int64
	lastActivity atomic.Value // time.Time
	startTime    time.Time
}

type asyncTask[T any] struct {
	item  BatchItem[T]
	start time.Time
}

// NewBatchConsumer creates a BatchConsumer for strategy
func NewBatchConsumer[T any](cfg BatchConfig, strategy ProcessingStrategy[T], deps BatchDeps) (*BatchConsumer[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil processing strategy"), "BatchConsumer", "NewBatchConsumer", "strategy check")
	}
	if deps.Processor == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil processor"), "BatchConsumer", "NewBatchConsumer", "processor check")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "batch-consumer", "consumer", cfg.Name)
	handler := deps.ExceptionHandler
	if handler == nil {
		handler = exchange.LoggingExceptionHandler{Logger: logger}
	}
	async, ok := deps.Processor.(exchange.AsyncProcessor)
	if !ok {
		async = exchange.AsAsync(deps.Processor)
	}

	c := &BatchConsumer[T]{
		name:        cfg.Name,
		strategy:    strategy,
		processor:   deps.Processor,
		async:       async,
		handler:     handler,
		streamCache: deps.StreamCache,
		logger:      logger,
		metrics:     deps.MetricsRegistry.CoreMetrics(),
	}
	c.maxMessages.Store(int64(cfg.MaxMessagesPerPoll))
	c.routeEmpty.Store(cfg.RouteEmptyResultSet)
	c.SetProcessingMode(cfg.Mode)
	c.lastActivity.Store(time.Time{})

	opts := []worker.Option[asyncTask[T]]{worker.WithLogger[asyncTask[T]](logger)}
	if deps.MetricsRegistry != nil && cfg.Name != "" {
		opts = append(opts, worker.WithMetricsRegistry[asyncTask[T]](deps.MetricsRegistry, metricPrefix(cfg.Name)))
	}
	c.pool = worker.NewPool(ResolveInt(cfg.AsyncWorkers, DefaultAsyncWorkers), cfg.AsyncQueueSize, c.runAsync, opts...)
	return c, nil
}

func metricPrefix(name string) string {
	b := []byte("streamkit_async_" + name)
	for i, ch := range b {
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_') {
			b[i] = '_'
		}
	}
	return string(b)
}

// Start starts the async worker pool
func (c *BatchConsumer[T]) Start(ctx context.Context) error {
	if c.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "BatchConsumer", "Start", "start consumer")
	}
	if err := c.pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, "BatchConsumer", "Start", "start async pool")
	}
	c.stopping.Store(false)
	c.running.Store(true)
	c.startTime = time.Now()
	return nil
}

// Stop makes any running batch return early and waits for async exchanges
// already handed out.
func (c *BatchConsumer[T]) Stop(timeout time.Duration) error {
	if !c.running.Load() {
		return nil
	}
	c.stopping.Store(true)
	c.running.Store(false)
	if err := c.pool.Stop(timeout); err != nil {
		return errors.WrapTransient(err, "BatchConsumer", "Stop", "stop async pool")
	}
	return nil
}

// SetProcessingMode switches between sync and async processing. The new mode
// applies from the next batch on.
func (c *BatchConsumer[T]) SetProcessingMode(mode ProcessingMode) {
	if mode == "" {
		mode = ModeSync
	}
	c.mode.Store(mode)
}

// ProcessingMode returns the current processing mode
func (c *BatchConsumer[T]) ProcessingMode() ProcessingMode {
	return c.mode.Load().(ProcessingMode)
}

// SetMaxMessagesPerPoll changes the batch limit; zero means unlimited.
func (c *BatchConsumer[T]) SetMaxMessagesPerPoll(n int) { c.maxMessages.Store(int64(n)) }

// MaxMessagesPerPoll returns the batch limit
func (c *BatchConsumer[T]) MaxMessagesPerPoll() int { return int(c.maxMessages.Load()) }

// SetRouteEmptyResultSet toggles sending an exchange for empty polls
func (c *BatchConsumer[T]) SetRouteEmptyResultSet(v bool) { c.routeEmpty.Store(v) }

// PendingExchanges returns how many exchanges of the current batch have not
// been dispatched yet.
func (c *BatchConsumer[T]) PendingExchanges() int { return int(c.pending.Load()) }

// Ready reports whether a fetch has succeeded at least once
func (c *BatchConsumer[T]) Ready() bool { return c.ready.Load() }

// Watermark returns the strategy watermark, if it keeps one
func (c *BatchConsumer[T]) Watermark() (string, bool) {
	w, ok := c.strategy.(Watermarked)
	if !ok {
		return "", false
	}
	return w.Watermark(), true
}

// Poll fetches items, turns them into a batch and processes it. It returns
// the number of exchanges processed.
func (c *BatchConsumer[T]) Poll(ctx context.Context) (int, error) {
	items, err := c.strategy.Poll(ctx)
	if err != nil {
		return 0, errors.WrapTransient(err, "BatchConsumer", "Poll", "fetch items")
	}
	if !c.ready.Swap(true) {
		c.metrics.RecordReady(c.name, true)
	}

	if len(items) == 0 {
		if !c.routeEmpty.Load() {
			return 0, nil
		}
		ex := exchange.NewWithBody([]T{})
		ex.SetProperty(exchange.PropertyConsumer, c.name)
		c.logger.Debug("Routing empty result set")
		return c.ProcessBatch(ctx, []BatchItem[T]{{Exchange: ex, Empty: true}})
	}

	c.logger.Debug("Polled items", "count", len(items))
	n, err := c.ProcessBatch(ctx, c.CreateExchanges(items))
	if ack, ok := c.strategy.(Acknowledger[T]); ok && n > 0 {
		// ctx may already be cancelled by Stop
		if aerr := ack.Acknowledge(context.WithoutCancel(ctx), items[:n]); aerr != nil && err == nil {
			err = errors.WrapTransient(aerr, "BatchConsumer", "Poll", "acknowledge items")
		}
	}
	return n, err
}

// CreateExchanges wraps items in exchanges, preserving order
func (c *BatchConsumer[T]) CreateExchanges(items []T) []BatchItem[T] {
	batch := make([]BatchItem[T], 0, len(items))
	for _, item := range items {
		ex := c.strategy.CreateExchange(item)
		ex.SetProperty(exchange.PropertyConsumer, c.name)
		batch = append(batch, BatchItem[T]{Exchange: ex, Item: item})
	}
	return batch
}

// ProcessBatch processes up to MaxMessagesPerPoll items of batch in order.
// Items beyond the limit are left alone for a later poll. Per-item failures
// go to the exception handler and do not stop the batch. When the consumer
// is stopping the batch ends early and the remaining count stays in
// PendingExchanges.
func (c *BatchConsumer[T]) ProcessBatch(ctx context.Context, batch []BatchItem[T]) (int, error) {
	total := len(batch)
	if limit := int(c.maxMessages.Load()); limit > 0 && total > limit {
		c.logger.Debug("Limiting batch to maximum messages per poll",
			"limit", limit, "available", total)
		total = limit
	}
	async := c.ProcessingMode() == ModeAsync

	c.pending.Store(int64(total))
	processed := 0
	for index := 0; index < total; index++ {
		if !c.batchAllowed(ctx) {
			c.logger.Debug("Batch interrupted", "processed", processed, "remaining", total-index)
			break
		}

		item := batch[index]
		ex := item.Exchange
		ex.SetProperty(exchange.PropertyBatchIndex, index)
		ex.SetProperty(exchange.PropertyBatchSize, total)
		ex.SetProperty(exchange.PropertyBatchComplete, index == total-1)
		c.pending.Store(int64(total - index - 1))
		ex.SetProperty(exchange.PropertyPendingExchanges, total-index-1)

		if async {
			if err := c.pool.SubmitWait(ctx, asyncTask[T]{item: item, start: time.Now()}); err != nil {
				c.pending.Store(int64(total - index))
				return processed, errors.WrapTransient(err, "BatchConsumer", "ProcessBatch", "dispatch exchange")
			}
		} else {
			c.processItem(ctx, item)
		}
		processed++
	}
	return processed, nil
}

func (c *BatchConsumer[T]) batchAllowed(ctx context.Context) bool {
	return ctx.Err() == nil && !c.stopping.Load()
}

func (c *BatchConsumer[T]) processItem(ctx context.Context, item BatchItem[T]) {
	start := time.Now()
	if err := c.cacheBody(item.Exchange); err != nil {
		c.complete(ctx, item, err, start)
		return
	}
	err := guard(func() error { return c.processor.Process(ctx, item.Exchange) })
	c.complete(ctx, item, err, start)
}

func (c *BatchConsumer[T]) runAsync(ctx context.Context, task asyncTask[T]) error {
	item := task.item
	if err := c.cacheBody(item.Exchange); err != nil {
		c.complete(ctx, item, err, task.start)
		return err
	}

	done := make(chan error, 1)
	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			defer func() { done <- err }()
			c.complete(ctx, item, err, task.start)
		})
	}
	if err := guard(func() error {
		c.async.ProcessAsync(ctx, item.Exchange, finish)
		return nil
	}); err != nil {
		finish(err)
	}
	return <-done
}

// guard runs fn, turning a panic into an error so one item cannot take
// down the rest of its batch.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), "BatchConsumer", "process", "process exchange")
		}
	}()
	return fn()
}

func (c *BatchConsumer[T]) cacheBody(ex *exchange.Exchange) error {
	if c.streamCache == nil {
		return nil
	}
	return c.streamCache.CacheBody(ex)
}

// complete commits a processed item, reports failures and ends the exchange.
func (c *BatchConsumer[T]) complete(ctx context.Context, item BatchItem[T], err error, start time.Time) {
	ex := item.Exchange
	if err != nil {
		ex.SetException(err)
	}

	if !ex.IsFailed() && !item.Empty {
		if cerr := guard(func() error { return c.strategy.Commit(ctx, ex, item.Item) }); cerr != nil {
			c.handler.HandleException("Error committing exchange", ex,
				errors.Wrap(cerr, "BatchConsumer", "complete", "commit"))
		}
	}
	if ex.IsFailed() {
		c.failed.Add(1)
		c.handler.HandleException("Error processing exchange", ex, ex.Exception())
	}

	c.processed.Add(1)
	c.lastActivity.Store(time.Now())
	c.metrics.RecordExchange(c.name, ex.IsFailed(), time.Since(start))
	ex.Done()
}

// Meta returns component metadata
func (c *BatchConsumer[T]) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "consumer",
		Description: fmt.Sprintf("Batch consumer %s (%s)", c.name, c.ProcessingMode()),
		Version:     "1.0.0",
	}
}

// Health reports the consumer health
func (c *BatchConsumer[T]) Health() component.HealthStatus {
	var uptime time.Duration
	if !c.startTime.IsZero() {
		uptime = time.Since(c.startTime)
	}
	return component.HealthStatus{
		Healthy:    c.running.Load(),
		Ready:      c.ready.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(c.failed.Load()),
		Uptime:     uptime,
	}
}

// DataFlow reports exchange throughput
func (c *BatchConsumer[T]) DataFlow() component.FlowMetrics {
	last, _ := c.lastActivity.Load().(time.Time)
	return component.ComputeFlow(c.processed.Load(), c.failed.Load(), c.startTime, last)
}
