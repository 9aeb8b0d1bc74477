package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/c360/streamkit/metric"
)

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNewPool_Defaults(t *testing.T) {
	noop := func(context.Context, testWork) error { return nil }

	pool := NewPool(5, 100, noop)
	if pool.workers != 5 || pool.queueSize != 100 {
		t.Errorf("got workers=%d queue=%d", pool.workers, pool.queueSize)
	}

	pool = NewPool(0, 0, noop)
	if pool.workers != defaultWorkers {
		t.Errorf("expected default %d workers, got %d", defaultWorkers, pool.workers)
	}
	if pool.queueSize != defaultQueueSize {
		t.Errorf("expected default queue size %d, got %d", defaultQueueSize, pool.queueSize)
	}
}

func TestNewPool_NilProcessor(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for nil processor")
		}
	}()
	NewPool[testWork](5, 100, nil)
}

func TestPool_Lifecycle(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 10, func(context.Context, testWork) error {
		processed.Add(1)
		return nil
	})

	if err := pool.Submit(testWork{}); !errors.Is(err, ErrPoolNotStarted) {
		t.Fatalf("expected ErrPoolNotStarted, got %v", err)
	}

	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := pool.Start(ctx); !errors.Is(err, ErrPoolAlreadyStarted) {
		t.Errorf("expected ErrPoolAlreadyStarted, got %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			t.Errorf("submit %d: %v", i, err)
		}
	}

	// Stop drains the queue
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := processed.Load(); got != 5 {
		t.Errorf("expected 5 processed, got %d", got)
	}
	if err := pool.Submit(testWork{id: 99}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
	if err := pool.Stop(time.Second); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 2, func(context.Context, testWork) error {
		<-release
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop(5 * time.Second)
	defer close(release)

	dropped := 0
	for i := 0; i < 5; i++ {
		if err := pool.Submit(testWork{id: i}); errors.Is(err, ErrQueueFull) {
			dropped++
		}
	}
	// one in hand, two queued at most
	if dropped < 2 {
		t.Errorf("expected at least 2 dropped, got %d", dropped)
	}
	if pool.Stats().Dropped != int64(dropped) {
		t.Errorf("stats dropped %d, counted %d", pool.Stats().Dropped, dropped)
	}
}

func TestPool_SubmitWaitBlocksForRoom(t *testing.T) {
	release := make(chan struct{})
	var processed atomic.Int64
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		<-release
		processed.Add(1)
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := pool.SubmitWait(ctx, testWork{id: i}); err != nil {
			t.Fatal(err)
		}
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	waitFor(t, func() bool { return pool.Stats().InFlight == 1 })
	if err := pool.SubmitWait(short, testWork{id: 2}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- pool.SubmitWait(ctx, testWork{id: 3}) }()
	close(release)
	if err := <-done; err != nil {
		t.Errorf("submit after release: %v", err)
	}

	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if got := processed.Load(); got != 3 {
		t.Errorf("expected 3 processed, got %d", got)
	}
}

func TestPool_ErrorsAndPanics(t *testing.T) {
	pool := NewPool(2, 10, func(_ context.Context, w testWork) error {
		if w.fail {
			return errors.New("simulated error")
		}
		if w.id < 0 {
			panic("boom")
		}
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		if err := pool.Submit(testWork{id: i, fail: i%2 == 0}); err != nil {
			t.Errorf("submit %d: %v", i, err)
		}
	}
	if err := pool.Submit(testWork{id: -1}); err != nil {
		t.Fatal(err)
	}
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	stats := pool.Stats()
	if stats.Processed != 11 {
		t.Errorf("expected 11 processed, got %d", stats.Processed)
	}
	if stats.Failed != 6 {
		t.Errorf("expected 6 failed, got %d", stats.Failed)
	}
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 4, func(_ context.Context, w testWork) error {
		if w.fail {
			return errors.New("fail")
		}
		return nil
	}, WithMetricsRegistry[testWork](registry, "test_async"))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = pool.Submit(testWork{id: 1})
	_ = pool.Submit(testWork{id: 2, fail: true})
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(pool.metrics.processed); got != 2 {
		t.Errorf("processed metric = %v", got)
	}
	if got := testutil.ToFloat64(pool.metrics.failed); got != 1 {
		t.Errorf("failed metric = %v", got)
	}
}

func TestPool_ContextCancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var processed atomic.Int64
	pool := NewPool(1, 10, func(_ context.Context, w testWork) error {
		time.Sleep(w.delay)
		processed.Add(1)
		return nil
	})
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		_ = pool.Submit(testWork{id: i, delay: 50 * time.Millisecond})
	}
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := pool.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if got := processed.Load(); got >= 5 {
		t.Errorf("expected cancellation to leave work unprocessed, processed %d", got)
	}
}
