package poll

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/streamkit/errors"
)

const (
	DefaultInitialDelay = time.Second
	DefaultDelay        = 500 * time.Millisecond
	DefaultAsyncWorkers = 4
)

// ConsumerConfig is the configuration of one polling consumer as it appears
// in the configuration file. Durations are strings such as "500ms".
type ConsumerConfig struct {
	Name string `json:"name"`
	Type string `json:"type"`

	InitialDelay             string  `json:"initial_delay,omitempty"`
	Delay                    string  `json:"delay,omitempty"`
	RepeatCount              int64   `json:"repeat_count,omitempty"`
	Greedy                   bool    `json:"greedy,omitempty"`
	GreedyRateLimit          float64 `json:"greedy_rate_limit,omitempty"`
	SendEmptyMessageWhenIdle bool    `json:"send_empty_message_when_idle,omitempty"`
	BackoffMultiplier        int     `json:"backoff_multiplier,omitempty"`
	BackoffIdleThreshold     int     `json:"backoff_idle_threshold,omitempty"`
	BackoffErrorThreshold    int     `json:"backoff_error_threshold,omitempty"`

	MaxMessagesPerPoll  int            `json:"max_messages_per_poll,omitempty"`
	RouteEmptyResultSet bool           `json:"route_empty_result_set,omitempty"`
	ProcessingMode      ProcessingMode `json:"processing_mode,omitempty"`
	AsyncWorkers        int            `json:"async_workers,omitempty"`
	AsyncQueueSize      int            `json:"async_queue_size,omitempty"`
	StreamCaching       bool           `json:"stream_caching,omitempty"`

	// PollRetries retries transient poll failures within one run;
	// SuspendAfterFailures suspends the consumer after that many failed polls
	// in a row. At most one of them may be set.
	PollRetries          int    `json:"poll_retries,omitempty"`
	PollRetryDelay       string `json:"poll_retry_delay,omitempty"`
	SuspendAfterFailures int    `json:"suspend_after_failures,omitempty"`

	// Options is decoded by the connector named in Type
	Options json.RawMessage `json:"options,omitempty"`
}

// Validate checks the consumer configuration
func (c ConsumerConfig) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ConsumerConfig", "Validate", "name check")
	}
	if c.Type == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: consumer %q has no type", errors.ErrMissingConfig, c.Name),
			"ConsumerConfig", "Validate", "type check")
	}
	if _, err := c.SchedulerConfig(); err != nil {
		return err
	}
	if _, err := c.BatchConfig(); err != nil {
		return err
	}
	if _, err := c.PollStrategy(); err != nil {
		return err
	}
	return nil
}

// PollStrategy returns the strategy selected by PollRetries or
// SuspendAfterFailures, or nil when neither is set.
func (c ConsumerConfig) PollStrategy() (PollStrategy, error) {
	switch {
	case c.PollRetries < 0 || c.SuspendAfterFailures < 0:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: negative poll_retries or suspend_after_failures", errors.ErrInvalidConfig),
			"ConsumerConfig", "PollStrategy", "range check")
	case c.PollRetries > 0 && c.SuspendAfterFailures > 0:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: poll_retries and suspend_after_failures are exclusive", errors.ErrInvalidConfig),
			"ConsumerConfig", "PollStrategy", "exclusivity check")
	case c.SuspendAfterFailures > 0:
		return &LimitedPollStrategy{Limit: c.SuspendAfterFailures}, nil
	case c.PollRetries > 0:
		rc := errors.DefaultRetryConfig()
		rc.MaxRetries = c.PollRetries
		if c.PollRetryDelay != "" {
			d, err := parseDuration(c.PollRetryDelay)
			if err != nil {
				return nil, errors.WrapInvalid(err, "ConsumerConfig", "PollStrategy", "parse poll_retry_delay")
			}
			rc.InitialDelay = d
		}
		return RetryPollStrategy{Retry: rc}, nil
	default:
		return nil, nil
	}
}

// SchedulerConfig parses the scheduler settings
func (c ConsumerConfig) SchedulerConfig() (SchedulerConfig, error) {
	initial, err := parseDuration(Resolve(c.InitialDelay, DefaultInitialDelay.String()))
	if err != nil {
		return SchedulerConfig{}, errors.WrapInvalid(err, "ConsumerConfig", "SchedulerConfig", "parse initial_delay")
	}
	delay, err := parseDuration(Resolve(c.Delay, DefaultDelay.String()))
	if err != nil {
		return SchedulerConfig{}, errors.WrapInvalid(err, "ConsumerConfig", "SchedulerConfig", "parse delay")
	}
	cfg := SchedulerConfig{
		InitialDelay:             initial,
		Delay:                    delay,
		RepeatCount:              c.RepeatCount,
		Greedy:                   c.Greedy,
		GreedyRateLimit:          c.GreedyRateLimit,
		SendEmptyMessageWhenIdle: c.SendEmptyMessageWhenIdle,
		BackoffMultiplier:        c.BackoffMultiplier,
		BackoffIdleThreshold:     c.BackoffIdleThreshold,
		BackoffErrorThreshold:    c.BackoffErrorThreshold,
	}
	return cfg, cfg.Validate()
}

// BatchConfig returns the batch settings
func (c ConsumerConfig) BatchConfig() (BatchConfig, error) {
	cfg := BatchConfig{
		Name:                c.Name,
		MaxMessagesPerPoll:  c.MaxMessagesPerPoll,
		RouteEmptyResultSet: c.RouteEmptyResultSet,
		Mode:                ProcessingMode(Resolve(string(c.ProcessingMode), string(ModeSync))),
		AsyncWorkers:        ResolveInt(c.AsyncWorkers, DefaultAsyncWorkers),
		AsyncQueueSize:      c.AsyncQueueSize,
	}
	return cfg, cfg.Validate()
}

// DecodeOptions unmarshals Options into v. Missing options leave v untouched.
func (c ConsumerConfig) DecodeOptions(v any) error {
	if len(c.Options) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Options, v); err != nil {
		return errors.WrapInvalid(err, "ConsumerConfig", "DecodeOptions", fmt.Sprintf("decode options of %q", c.Name))
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
