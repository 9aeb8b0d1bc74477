package poll

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/streamkit/errors"
)

// PollStrategy wraps every poll of a ScheduledPollConsumer.
type PollStrategy interface {
	// Begin is called before polling; returning false skips this poll.
	Begin(c *ScheduledPollConsumer) bool

	// Commit is called after a successful poll.
	Commit(c *ScheduledPollConsumer, polled int)

	// Rollback is called when the poll failed. retryCount is 0 for the
	// first attempt. Returning true polls again immediately. ctx is the
	// scheduler context and is cancelled by Stop.
	Rollback(ctx context.Context, c *ScheduledPollConsumer, retryCount int, err error) bool
}

// DefaultPollStrategy never retries; failures go to the exception handler.
type DefaultPollStrategy struct{}

func (DefaultPollStrategy) Begin(*ScheduledPollConsumer) bool { return true }

func (DefaultPollStrategy) Commit(*ScheduledPollConsumer, int) {}

func (DefaultPollStrategy) Rollback(context.Context, *ScheduledPollConsumer, int, error) bool {
	return false
}

// LimitedPollStrategy suspends a consumer after Limit consecutive failed
// polls. A successful poll resets the count. Resume the consumer to start
// polling again.
type LimitedPollStrategy struct {
	Limit int

	mu     sync.Mutex
	failed map[*ScheduledPollConsumer]int
}

func (s *LimitedPollStrategy) Begin(*ScheduledPollConsumer) bool { return true }

func (s *LimitedPollStrategy) Commit(c *ScheduledPollConsumer, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, c)
}

func (s *LimitedPollStrategy) Rollback(_ context.Context, c *ScheduledPollConsumer, _ int, err error) bool {
	s.mu.Lock()
	if s.failed == nil {
		s.failed = make(map[*ScheduledPollConsumer]int)
	}
	s.failed[c]++
	count := s.failed[c]
	limit := s.Limit
	if limit <= 0 {
		limit = 3
	}
	suspend := count >= limit
	if suspend {
		delete(s.failed, c)
	}
	s.mu.Unlock()

	if suspend {
		c.logger.Warn("Suspending consumer after consecutive failed polls",
			slog.Int("failed_polls", count),
			slog.String("error", err.Error()))
		c.Suspend()
	}
	return false
}

// RetryPollStrategy polls again right away after a transient failure,
// sleeping with exponential backoff between attempts. A Stop ends the sleep
// and the retry.
type RetryPollStrategy struct {
	Retry errors.RetryConfig
}

func (RetryPollStrategy) Begin(*ScheduledPollConsumer) bool { return true }

func (RetryPollStrategy) Commit(*ScheduledPollConsumer, int) {}

func (s RetryPollStrategy) Rollback(ctx context.Context, c *ScheduledPollConsumer, retryCount int, err error) bool {
	if !s.Retry.ShouldRetry(err, retryCount) {
		return false
	}
	delay := s.Retry.ToRetryConfig().Delay(retryCount + 1)
	c.logger.Debug("Retrying failed poll",
		slog.Int("attempt", retryCount+1),
		slog.Duration("delay", delay),
		slog.String("class", errors.Classify(err).String()))
	return sleep(ctx, delay)
}
