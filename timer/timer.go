package timer

import (
	"context"
	"sync"
	"time"
)

// Timer runs scheduled tasks one at a time on a single goroutine.
type Timer struct {
	name  string
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func newTimer(name string) *Timer {
	t := &Timer{
		name:  name,
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Name returns the timer name
func (t *Timer) Name() string { return t.name }

func (t *Timer) run() {
	defer t.wg.Done()
	for {
		select {
		case task := <-t.tasks:
			task()
		case <-t.done:
			return
		}
	}
}

// close stops the executor after the running task, if any
func (t *Timer) close() {
	t.once.Do(func() { close(t.done) })
	t.wg.Wait()
}

// Closed reports whether the timer was torn down
func (t *Timer) Closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Schedule runs fn after delay and then every period until fn returns false,
// the returned stop function is called, or the timer closes. A non-positive
// period runs fn once. With fixedRate, ticks are measured from the start of
// the schedule and missed ticks are dropped; otherwise period is the pause
// between the end of one run and the start of the next.
//
// fn runs on the timer goroutine and must not call stop.
func (t *Timer) Schedule(delay, period time.Duration, fixedRate bool, fn func(fired time.Time) bool) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		if !t.wait(ctx, delay) {
			return
		}

		var ticks <-chan time.Time
		if fixedRate && period > 0 {
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			ticks = ticker.C
		}

		for {
			if !t.fire(ctx, fn) || period <= 0 {
				return
			}
			if ticks != nil {
				select {
				case <-ticks:
				case <-ctx.Done():
					return
				case <-t.done:
					return
				}
			} else if !t.wait(ctx, period) {
				return
			}
		}
	}()

	return func() {
		cancel()
		<-finished
	}
}

func (t *Timer) fire(ctx context.Context, fn func(time.Time) bool) bool {
	result := make(chan bool, 1)
	fired := time.Now()
	select {
	case t.tasks <- func() { result <- fn(fired) }:
	case <-ctx.Done():
		return false
	case <-t.done:
		return false
	}
	return <-result && ctx.Err() == nil
}

func (t *Timer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	w := time.NewTimer(d)
	defer w.Stop()
	select {
	case <-w.C:
		return true
	case <-ctx.Done():
		return false
	case <-t.done:
		return false
	}
}
