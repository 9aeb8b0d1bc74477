package streamcache

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/metric"
)

// StrategyDeps holds what a Strategy needs. A nil registry means no metrics.
type StrategyDeps struct {
	Config          Config
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Statistics counts the caches a Strategy produced
type Statistics struct {
	MemoryCounter int64 `json:"memory_counter"`
	MemorySize    int64 `json:"memory_size"`
	SpoolCounter  int64 `json:"spool_counter"`
	SpoolSize     int64 `json:"spool_size"`
}

// Strategy decides whether bodies stay in memory or spool to disk and owns
// the spool directory.
type Strategy struct {
	config  Config
	logger  *slog.Logger
	metrics *metric.Metrics

	memoryCounter atomic.Int64
	memorySize    atomic.Int64
	spoolCounter  atomic.Int64
	spoolSize     atomic.Int64

	mu       sync.Mutex
	spoolDir string
}

// NewStrategy validates the configuration and creates a Strategy
func NewStrategy(deps StrategyDeps) (*Strategy, error) {
	cfg := deps.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Strategy", "NewStrategy", "config validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Strategy{
		config:  cfg,
		logger:  logger.With("component", "stream-cache"),
		metrics: deps.MetricsRegistry.CoreMetrics(),
	}, nil
}

// Config returns the effective configuration
func (s *Strategy) Config() Config {
	return s.config
}

// Start creates the spool directory
func (s *Strategy) Start() error {
	dir, err := s.SpoolDirectory()
	if err != nil {
		return err
	}
	s.logger.Info("Stream caching started",
		"spool_directory", dir,
		"spool_threshold", s.config.SpoolThreshold,
		"spool_cipher", s.config.SpoolCipher)
	return nil
}

// Stop removes the spool directory when configured to. Files still in use
// by running exchanges go with it.
func (s *Strategy) Stop() error {
	s.mu.Lock()
	dir := s.spoolDir
	s.spoolDir = ""
	s.mu.Unlock()

	stats := s.Statistics()
	s.logger.Info("Stream caching stopped",
		"memory_counter", stats.MemoryCounter,
		"spool_counter", stats.SpoolCounter,
		"spool_size", stats.SpoolSize)

	if dir == "" || !s.config.RemoveSpoolDirectoryWhenStopping {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("Failed to remove spool directory", "dir", dir, "error", err)
	}
	return nil
}

// SpoolDirectory resolves the spool directory and creates it if needed
func (s *Strategy) SpoolDirectory() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spoolDir == "" {
		s.spoolDir = strings.ReplaceAll(s.config.SpoolDirectory, uuidPlaceholder, uuid.NewString())
	}
	if err := os.MkdirAll(s.spoolDir, 0o700); err != nil {
		return "", errors.WrapFatal(err, "Strategy", "SpoolDirectory", "create spool directory")
	}
	return s.spoolDir, nil
}

// ShouldSpool reports whether a body of the given size belongs on disk
func (s *Strategy) ShouldSpool(size int64) bool {
	return s.config.SpoolEnabled() && size > s.config.SpoolThreshold
}

// Statistics returns a snapshot of the cache counters
func (s *Strategy) Statistics() Statistics {
	return Statistics{
		MemoryCounter: s.memoryCounter.Load(),
		MemorySize:    s.memorySize.Load(),
		SpoolCounter:  s.spoolCounter.Load(),
		SpoolSize:     s.spoolSize.Load(),
	}
}

// ResetStatistics zeroes the cache counters
func (s *Strategy) ResetStatistics() {
	s.memoryCounter.Store(0)
	s.memorySize.Store(0)
	s.spoolCounter.Store(0)
	s.spoolSize.Store(0)
}

func (s *Strategy) record(cache StreamCache) {
	if cache.InMemory() {
		s.memoryCounter.Add(1)
		s.memorySize.Add(cache.Length())
		return
	}
	s.spoolCounter.Add(1)
	s.spoolSize.Add(cache.Length())
}
