package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/metric"
)

// SchedulerConfig controls when a ScheduledPollConsumer polls
type SchedulerConfig struct {
	InitialDelay time.Duration
	Delay        time.Duration

	// RepeatCount stops the scheduler after that many runs; zero is unlimited.
	RepeatCount int64

	// Greedy polls again immediately while the previous poll found messages.
	Greedy bool

	// GreedyRateLimit caps greedy re-polls per second; zero is unlimited.
	GreedyRateLimit float64

	// SendEmptyMessageWhenIdle sends an empty exchange when a poll finds nothing.
	SendEmptyMessageWhenIdle bool

	// BackoffMultiplier is how many runs to skip once a threshold is hit.
	// Zero disables backoff.
	BackoffMultiplier     int
	BackoffIdleThreshold  int
	BackoffErrorThreshold int
}

// Validate checks the scheduler settings
func (c SchedulerConfig) Validate() error {
	if c.Delay <= 0 {
		return errors.WrapInvalid(fmt.Errorf("delay must be positive, got %s", c.Delay),
			"SchedulerConfig", "Validate", "delay check")
	}
	if c.RepeatCount < 0 || c.BackoffMultiplier < 0 || c.BackoffIdleThreshold < 0 || c.BackoffErrorThreshold < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative counts are not allowed"),
			"SchedulerConfig", "Validate", "count check")
	}
	if c.BackoffMultiplier > 0 && c.BackoffIdleThreshold == 0 && c.BackoffErrorThreshold == 0 {
		return errors.WrapInvalid(fmt.Errorf("backoff_multiplier needs an idle or error threshold"),
			"SchedulerConfig", "Validate", "backoff check")
	}
	return nil
}

// SchedulerDeps holds the collaborators of a ScheduledPollConsumer. Processor
// is only needed with SendEmptyMessageWhenIdle.
type SchedulerDeps struct {
	Name             string
	Poller           Poller
	Processor        exchange.Processor
	PollStrategy     PollStrategy
	ExceptionHandler exchange.ExceptionHandler
	MetricsRegistry  *metric.MetricsRegistry
	Logger           *slog.Logger
}

// lifecycle is implemented by pollers with their own resources, such as
// BatchConsumer and its worker pool.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// Counters is a snapshot of the scheduler counters
type Counters struct {
	Runs    int64 `json:"runs"`
	Idle    int   `json:"idle"`
	Errors  int   `json:"errors"`
	Success int   `json:"success"`
	Backoff int   `json:"backoff"`
}

// ScheduledPollConsumer runs a Poller on a fixed delay.
type ScheduledPollConsumer struct {
	name         string
	config       SchedulerConfig
	poller       Poller
	processor    exchange.Processor
	pollStrategy PollStrategy
	handler      exchange.ExceptionHandler
	logger       *slog.Logger
	metrics      *metric.Metrics
	limiter      *rate.Limiter

	mu             sync.RWMutex
	state          component.State
	cancel         context.CancelFunc
	done           chan struct{}
	startTime      time.Time
	idleCounter    int
	errorCounter   int
	successCounter int
	backoffCounter int
	lastError      error
	firstPollDone  bool

	runs     atomic.Int64
	polled   atomic.Int64
	failures atomic.Int64
	lastPoll atomic.Value // time.Time
	polling  atomic.Bool
	suspend  atomic.Bool
}

var (
	_ component.LifecycleComponent = (*ScheduledPollConsumer)(nil)
	_ component.Suspendable        = (*ScheduledPollConsumer)(nil)
)

// NewScheduledPollConsumer creates a consumer; call Initialize and Start to
// begin polling.
func NewScheduledPollConsumer(cfg SchedulerConfig, deps SchedulerDeps) (*ScheduledPollConsumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Poller == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil poller"), "ScheduledPollConsumer", "New", "poller check")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduled-poll-consumer", "consumer", deps.Name)
	strategy := deps.PollStrategy
	if strategy == nil {
		strategy = DefaultPollStrategy{}
	}
	handler := deps.ExceptionHandler
	if handler == nil {
		handler = exchange.LoggingExceptionHandler{Logger: logger}
	}

	c := &ScheduledPollConsumer{
		name:         deps.Name,
		config:       cfg,
		poller:       deps.Poller,
		processor:    deps.Processor,
		pollStrategy: strategy,
		handler:      handler,
		logger:       logger,
		metrics:      deps.MetricsRegistry.CoreMetrics(),
		state:        component.StateCreated,
	}
	if cfg.Greedy && cfg.GreedyRateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.GreedyRateLimit), 1)
	}
	c.lastPoll.Store(time.Time{})
	return c, nil
}

// Name returns the consumer name
func (c *ScheduledPollConsumer) Name() string { return c.name }

// Poller returns the driven poller
func (c *ScheduledPollConsumer) Poller() Poller { return c.poller }

// Initialize checks that the consumer can run
func (c *ScheduledPollConsumer) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.SendEmptyMessageWhenIdle && c.processor == nil {
		return errors.WrapInvalid(fmt.Errorf("send_empty_message_when_idle needs a processor"),
			"ScheduledPollConsumer", "Initialize", "processor check")
	}
	if c.state == component.StateCreated {
		c.state = component.StateInitialized
	}
	return nil
}

// Start begins polling after the initial delay. Cancelling ctx stops the
// scheduler like Stop does, minus the wait.
func (c *ScheduledPollConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == component.StateStarted || c.state == component.StateSuspended {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "ScheduledPollConsumer", "Start", "start consumer")
	}
	if lc, ok := c.poller.(lifecycle); ok {
		if err := lc.Start(ctx); err != nil {
			c.state = component.StateFailed
			return errors.Wrap(err, "ScheduledPollConsumer", "Start", "start poller")
		}
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.state = component.StateStarted
	c.startTime = time.Now()
	c.suspend.Store(false)

	go c.loop(ctx, c.done)

	c.logger.Info("Consumer started",
		"initial_delay", c.config.InitialDelay,
		"delay", c.config.Delay,
		"greedy", c.config.Greedy)
	return nil
}

// Stop stops the scheduler, waiting up to timeout for a running poll.
func (c *ScheduledPollConsumer) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if c.state != component.StateStarted && c.state != component.StateSuspended {
		c.mu.Unlock()
		return nil
	}
	c.state = component.StateStopped
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	var stopErr error
	select {
	case <-done:
	case <-time.After(timeout):
		stopErr = errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"ScheduledPollConsumer", "Stop", "graceful shutdown")
	}

	if lc, ok := c.poller.(lifecycle); ok {
		if err := lc.Stop(timeout); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	c.metrics.RecordReady(c.name, false)
	c.logger.Info("Consumer stopped", "runs", c.runs.Load())
	return stopErr
}

// Suspend pauses polling without stopping the scheduler
func (c *ScheduledPollConsumer) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == component.StateStarted {
		c.state = component.StateSuspended
	}
	c.suspend.Store(true)
}

// Resume continues polling after Suspend
func (c *ScheduledPollConsumer) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == component.StateSuspended {
		c.state = component.StateStarted
	}
	c.suspend.Store(false)
}

// State returns the lifecycle state
func (c *ScheduledPollConsumer) State() component.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsSuspended reports whether polling is paused
func (c *ScheduledPollConsumer) IsSuspended() bool { return c.suspend.Load() }

// IsPolling reports whether a poll is in progress
func (c *ScheduledPollConsumer) IsPolling() bool { return c.polling.Load() }

// Ready reports whether the first poll completed
func (c *ScheduledPollConsumer) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstPollDone
}

// Counters returns a snapshot of the scheduler counters
func (c *ScheduledPollConsumer) Counters() Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Counters{
		Runs:    c.runs.Load(),
		Idle:    c.idleCounter,
		Errors:  c.errorCounter,
		Success: c.successCounter,
		Backoff: c.backoffCounter,
	}
}

// LastError returns the error of the last failed poll, nil after a success
func (c *ScheduledPollConsumer) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *ScheduledPollConsumer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if !sleep(ctx, c.config.InitialDelay) {
		return
	}
	for {
		if !c.run(ctx) {
			c.logger.Debug("Repeat count reached, scheduler finished", "repeat_count", c.config.RepeatCount)
			return
		}
		if !sleep(ctx, c.config.Delay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *ScheduledPollConsumer) runAllowed(ctx context.Context) bool {
	return ctx.Err() == nil
}

func (c *ScheduledPollConsumer) pollAllowed(ctx context.Context) bool {
	return c.runAllowed(ctx) && !c.suspend.Load()
}

// backoff reports whether this run should be skipped
func (c *ScheduledPollConsumer) backoff() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.config
	if cfg.BackoffMultiplier <= 0 {
		return false
	}
	idleHit := cfg.BackoffIdleThreshold > 0 && c.idleCounter >= cfg.BackoffIdleThreshold
	errorHit := cfg.BackoffErrorThreshold > 0 && c.errorCounter >= cfg.BackoffErrorThreshold
	if !idleHit && !errorHit {
		return false
	}

	c.backoffCounter++
	if c.backoffCounter <= cfg.BackoffMultiplier {
		if c.idleCounter > 0 {
			c.logger.Debug("Backing off after idle polls",
				"idle", c.idleCounter, "backoff", c.backoffCounter, "multiplier", cfg.BackoffMultiplier)
		} else {
			c.logger.Debug("Backing off after failed polls",
				"errors", c.errorCounter, "backoff", c.backoffCounter, "multiplier", cfg.BackoffMultiplier)
		}
		return true
	}

	c.idleCounter = 0
	c.errorCounter = 0
	c.backoffCounter = 0
	c.successCounter = 0
	return false
}

// run performs one scheduled run. It returns false once the repeat count is
// exhausted.
func (c *ScheduledPollConsumer) run(ctx context.Context) bool {
	if !c.runAllowed(ctx) || c.suspend.Load() {
		return true
	}
	if c.backoff() {
		return true
	}

	count := c.runs.Add(1)
	if c.config.RepeatCount > 0 && count > c.config.RepeatCount {
		return false
	}

	retryCounter := -1
	polled := 0
	var cause error
	for done := false; !done; {
		cause = nil
		done = true
		if !c.pollAllowed(ctx) {
			break
		}

		var err error
		var begun bool
		polled, begun, err = c.pollOnce(ctx, &retryCounter)
		switch {
		case err != nil:
			if c.pollStrategy.Rollback(ctx, c, retryCounter, err) {
				done = false
			} else {
				cause = err
			}
		case begun && polled > 0 && c.config.Greedy:
			done = false
			retryCounter = -1
			c.mu.Lock()
			c.errorCounter = 0
			c.lastError = nil
			c.firstPollDone = true
			c.mu.Unlock()
			if c.limiter != nil {
				if werr := c.limiter.Wait(ctx); werr != nil {
					done = true
				}
			}
			c.logger.Debug("Greedy polling after processing messages", "polled", polled)
		}

		if cause != nil && c.runAllowed(ctx) {
			c.handler.HandleException(
				fmt.Sprintf("Failed polling endpoint: %s. Will try again at next poll", c.name), nil, cause)
		}
	}

	c.mu.Lock()
	if cause != nil {
		c.idleCounter = 0
		c.successCounter = 0
		c.errorCounter++
		c.lastError = cause
		c.failures.Add(1)
	} else {
		if polled == 0 {
			c.idleCounter++
		} else {
			c.idleCounter = 0
		}
		c.successCounter++
		c.errorCounter = 0
		c.lastError = nil
	}
	c.firstPollDone = true
	c.mu.Unlock()
	c.lastPoll.Store(time.Now())
	return true
}

// pollOnce runs begin, poll, the idle exchange and commit. Panics in the
// poller are turned into errors so the scheduler keeps running.
func (c *ScheduledPollConsumer) pollOnce(ctx context.Context, retryCounter *int) (polled int, begun bool, err error) {
	c.polling.Store(true)
	defer c.polling.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), "ScheduledPollConsumer", "poll", "poll")
		}
	}()

	if !c.pollStrategy.Begin(c) {
		c.logger.Debug("Poll strategy declined to begin polling")
		return 0, false, nil
	}
	*retryCounter++
	if *retryCounter > 0 {
		c.logger.Debug("Retrying poll", "attempt", *retryCounter)
	}

	polled, err = c.poller.Poll(ctx)
	c.metrics.RecordPoll(c.name, err)
	if err != nil {
		return polled, true, err
	}
	c.polled.Add(int64(polled))

	if polled == 0 && c.config.SendEmptyMessageWhenIdle {
		if err := c.processEmptyMessage(ctx); err != nil {
			return 0, true, err
		}
	}
	c.pollStrategy.Commit(c, polled)
	return polled, true, nil
}

func (c *ScheduledPollConsumer) processEmptyMessage(ctx context.Context) error {
	ex := exchange.New()
	ex.SetProperty(exchange.PropertyConsumer, c.name)
	defer ex.Done()

	c.logger.Debug("Sending empty message as there were no messages from polling")
	if err := c.processor.Process(ctx, ex); err != nil {
		ex.SetException(err)
		return errors.Wrap(err, "ScheduledPollConsumer", "processEmptyMessage", "process empty exchange")
	}
	return nil
}

// Meta returns component metadata
func (c *ScheduledPollConsumer) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "consumer",
		Description: fmt.Sprintf("Scheduled poll consumer %s every %s", c.name, c.config.Delay),
		Version:     "1.0.0",
	}
}

// Health reports healthy while running without a failed last poll
func (c *ScheduledPollConsumer) Health() component.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := component.HealthStatus{
		Healthy:    c.state == component.StateStarted && c.lastError == nil,
		Ready:      c.firstPollDone,
		LastCheck:  time.Now(),
		ErrorCount: int(c.failures.Load()),
	}
	if c.lastError != nil {
		status.LastError = c.lastError.Error()
	}
	if !c.startTime.IsZero() {
		status.Uptime = time.Since(c.startTime)
	}
	return status
}

// DataFlow reports polled messages per second
func (c *ScheduledPollConsumer) DataFlow() component.FlowMetrics {
	c.mu.RLock()
	start := c.startTime
	c.mu.RUnlock()
	last, _ := c.lastPoll.Load().(time.Time)
	return component.ComputeFlow(c.polled.Load(), c.failures.Load(), start, last)
}
