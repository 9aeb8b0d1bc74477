package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/pkg/security"
	"github.com/c360/streamkit/poll"
	"github.com/c360/streamkit/streamcache"
	"github.com/c360/streamkit/timer"
)

// Config represents the complete application configuration
type Config struct {
	Version     string                `json:"version,omitempty"`
	Log         LogConfig             `json:"log"`
	StreamCache streamcache.Config    `json:"stream_cache"`
	NATS        NATSConfig            `json:"nats"`
	Metrics     MetricsConfig         `json:"metrics"`
	Consumers   []poll.ConsumerConfig `json:"consumers,omitempty"`
	Timers      []TimerConfig         `json:"timers,omitempty"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// NATSConfig describes the NATS connection. An empty URLs list means NATS is
// not used.
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	Name          string   `json:"name,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
	MaxReconnects int      `json:"max_reconnects"`
	ReconnectWait string   `json:"reconnect_wait,omitempty"`
	Timeout       string   `json:"timeout,omitempty"`

	TLS security.ClientTLSConfig `json:"tls"`
}

// Enabled reports whether a NATS server is configured
func (n NATSConfig) Enabled() bool { return len(n.URLs) > 0 }

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// TimerConfig is a timer consumer as written in the configuration file
type TimerConfig struct {
	Name            string `json:"name"`
	Delay           string `json:"delay,omitempty"`
	Period          string `json:"period,omitempty"`
	RepeatCount     int64  `json:"repeat_count,omitempty"`
	FixedRate       bool   `json:"fixed_rate,omitempty"`
	IncludeMetadata bool   `json:"include_metadata,omitempty"`
}

// Timer parses the durations of a timer entry
func (t TimerConfig) Timer() (timer.Config, error) {
	delay, err := parseDuration(t.Delay)
	if err != nil {
		return timer.Config{}, errors.WrapInvalid(err, "TimerConfig", "Timer", "parse delay")
	}
	period, err := parseDuration(t.Period)
	if err != nil {
		return timer.Config{}, errors.WrapInvalid(err, "TimerConfig", "Timer", "parse period")
	}
	cfg := timer.Config{
		Name:            t.Name,
		Delay:           delay,
		Period:          period,
		RepeatCount:     t.RepeatCount,
		FixedRate:       t.FixedRate,
		IncludeMetadata: t.IncludeMetadata,
	}
	return cfg, cfg.Validate()
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Validate checks every section
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown log level %q", c.Log.Level), "Config", "Validate", "log level check")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown log format %q", c.Log.Format), "Config", "Validate", "log format check")
	}

	if err := c.StreamCache.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "stream_cache")
	}

	for _, d := range []string{c.NATS.ReconnectWait, c.NATS.Timeout} {
		if _, err := parseDuration(d); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "nats duration")
		}
	}

	if err := c.NATS.TLS.Validate(); err != nil {
		return errors.Wrap(err, "Config", "Validate", "nats tls")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(fmt.Errorf("metrics port %d out of range", c.Metrics.Port), "Config", "Validate", "metrics port check")
	}

	names := make(map[string]bool)
	for _, cc := range c.Consumers {
		if err := cc.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("consumer %q", cc.Name))
		}
		if names[cc.Name] {
			return errors.WrapInvalid(fmt.Errorf("duplicate consumer name %q", cc.Name), "Config", "Validate", "consumer names")
		}
		names[cc.Name] = true
		if cc.StreamCaching && !c.StreamCache.Enabled {
			return errors.WrapInvalid(fmt.Errorf("consumer %q enables stream caching but stream_cache is disabled", cc.Name),
				"Config", "Validate", "stream caching check")
		}
	}
	for _, tc := range c.Timers {
		if _, err := tc.Timer(); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("timer %q", tc.Name))
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns a JSON representation with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(fmt.Errorf("config cannot be nil"), "SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
