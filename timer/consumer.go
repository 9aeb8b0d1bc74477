package timer

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
)

// Config configures a timer consumer
type Config struct {
	// Name of the shared timer; consumers with the same name share one
	// executor.
	Name   string        `json:"name"`
	Delay  time.Duration `json:"delay"`
	Period time.Duration `json:"period"`

	// RepeatCount stops firing after that many exchanges; zero is unlimited.
	RepeatCount int64 `json:"repeat_count"`

	FixedRate       bool `json:"fixed_rate"`
	IncludeMetadata bool `json:"include_metadata"`
}

// Validate checks the timer configuration
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "timer.Config", "Validate", "name check")
	}
	if c.Delay < 0 || c.Period < 0 || c.RepeatCount < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative delay, period or repeat count"),
			"timer.Config", "Validate", "range check")
	}
	return nil
}

// Deps holds the collaborators of a Consumer. Processor is required.
type Deps struct {
	Processor        exchange.Processor
	ExceptionHandler exchange.ExceptionHandler
	MetricsRegistry  *metric.MetricsRegistry
	Logger           *slog.Logger
}

// Consumer fires an exchange on each tick of a shared named timer
type Consumer struct {
	config    Config
	registry  *Registry
	processor exchange.Processor
	handler   exchange.ExceptionHandler
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu        sync.Mutex
	stop      func()
	timer     *Timer
	running   bool
	startTime time.Time
	cancel    context.CancelFunc

	counter  atomic.Int64
	errCount atomic.Int64
	lastFire atomic.Value // time.Time
}

// NewConsumer creates a consumer on registry
func NewConsumer(cfg Config, registry *Registry, deps Deps) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || deps.Processor == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("registry and processor are required"),
			"timer.Consumer", "NewConsumer", "dependency check")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "timer", "timer", cfg.Name)
	handler := deps.ExceptionHandler
	if handler == nil {
		handler = exchange.LoggingExceptionHandler{Logger: logger}
	}

	c := &Consumer{
		config:    cfg,
		registry:  registry,
		processor: deps.Processor,
		handler:   handler,
		logger:    logger,
		metrics:   deps.MetricsRegistry.CoreMetrics(),
	}
	c.lastFire.Store(time.Time{})
	return c, nil
}

// Initialize is a no-op; the configuration is checked in NewConsumer
func (c *Consumer) Initialize() error { return nil }

// Start acquires the shared timer and schedules this consumer on it
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "timer.Consumer", "Start", "start consumer")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.timer = c.registry.Acquire(c.config.Name)
	c.stop = c.timer.Schedule(c.config.Delay, c.config.Period, c.config.FixedRate, func(fired time.Time) bool {
		return c.fire(ctx, fired)
	})
	c.running = true
	c.startTime = time.Now()
	c.logger.Debug("Timer consumer started", "period", c.config.Period, "refs", c.registry.RefCount(c.config.Name))
	return nil
}

// Stop unschedules the consumer and releases the shared timer
func (c *Consumer) Stop(_ time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stop, cancel := c.stop, c.cancel
	c.mu.Unlock()

	cancel()
	stop()
	released := c.registry.Release(c.config.Name)
	c.logger.Debug("Timer consumer stopped", "fired", c.counter.Load(), "timer_released", released)
	return nil
}

// Counter returns how many exchanges this consumer fired
func (c *Consumer) Counter() int64 { return c.counter.Load() }

func (c *Consumer) fire(ctx context.Context, fired time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	count := c.counter.Add(1)

	ex := exchange.New()
	ex.SetProperty(exchange.PropertyConsumer, c.config.Name)
	if c.config.IncludeMetadata {
		ex.SetHeader(exchange.HeaderTimerName, c.config.Name)
		ex.SetHeader(exchange.HeaderTimerPeriod, c.config.Period)
		ex.SetHeader(exchange.HeaderTimerCounter, count)
		ex.SetHeader(exchange.HeaderTimerFiredTime, fired)
	}

	start := time.Now()
	if err := c.processor.Process(ctx, ex); err != nil {
		ex.SetException(err)
		c.errCount.Add(1)
		c.handler.HandleException("Error processing exchange", ex, err)
	}
	c.metrics.RecordExchange(c.config.Name, ex.IsFailed(), time.Since(start))
	c.lastFire.Store(fired)
	ex.Done()

	if c.config.RepeatCount > 0 && count >= c.config.RepeatCount {
		c.logger.Debug("Repeat count reached", "repeat_count", c.config.RepeatCount)
		return false
	}
	return true
}

// Meta returns component metadata
func (c *Consumer) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.config.Name,
		Type:        "timer",
		Description: fmt.Sprintf("Timer %s firing every %s", c.config.Name, c.config.Period),
		Version:     "1.0.0",
	}
}

// Health reports healthy while scheduled
func (c *Consumer) Health() component.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := component.HealthStatus{
		Healthy:    c.running,
		Ready:      c.running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errCount.Load()),
	}
	if c.running {
		status.Uptime = time.Since(c.startTime)
	}
	return status
}

// DataFlow reports the firing rate
func (c *Consumer) DataFlow() component.FlowMetrics {
	c.mu.Lock()
	start := c.startTime
	c.mu.Unlock()
	last, _ := c.lastFire.Load().(time.Time)
	return component.ComputeFlow(c.counter.Load(), c.errCount.Load(), start, last)
}
