package timer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/exchange"
)

type collector struct {
	mu        sync.Mutex
	exchanges []*exchange.Exchange
}

func (c *collector) Process(_ context.Context, ex *exchange.Exchange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = append(c.exchanges, ex)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exchanges)
}

func TestRegistry_SharedTimerRefCount(t *testing.T) {
	r := NewRegistry()
	a := &collector{}
	b := &collector{}

	first, err := NewConsumer(Config{Name: "shared", Period: 5 * time.Millisecond}, r, Deps{Processor: a})
	require.NoError(t, err)
	second, err := NewConsumer(Config{Name: "shared", Period: 5 * time.Millisecond}, r, Deps{Processor: b})
	require.NoError(t, err)

	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, second.Start(context.Background()))
	assert.Equal(t, 2, r.RefCount("shared"))
	timer := first.timer
	assert.Same(t, timer, second.timer)

	require.NoError(t, first.Stop(time.Second))
	assert.Equal(t, 1, r.RefCount("shared"))
	assert.False(t, timer.Closed())

	// the remaining consumer keeps firing
	before := b.count()
	require.Eventually(t, func() bool { return b.count() > before+2 }, 2*time.Second, 5*time.Millisecond)
	stoppedAt := a.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stoppedAt, a.count())

	require.NoError(t, second.Stop(time.Second))
	assert.Equal(t, 0, r.RefCount("shared"))
	assert.True(t, timer.Closed())
	assert.Empty(t, r.Names())
}

func TestRegistry_AcquireRelease(t *testing.T) {
	r := NewRegistry()
	t1 := r.Acquire("a")
	t2 := r.Acquire("a")
	assert.Same(t, t1, t2)
	r.Acquire("b")
	assert.Equal(t, []string{"a", "b"}, r.Names())

	assert.False(t, r.Release("a"))
	assert.False(t, t1.Closed())
	assert.True(t, r.Release("a"))
	assert.True(t, t1.Closed())
	assert.False(t, r.Release("a"))

	r.Close()
	assert.Empty(t, r.Names())
}

func TestTimer_TasksDoNotOverlap(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	timer := r.Acquire("serial")

	var active, maxActive atomic.Int32
	task := func(time.Time) bool {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return true
	}
	stops := []func(){
		timer.Schedule(0, time.Millisecond, false, task),
		timer.Schedule(0, time.Millisecond, true, task),
		timer.Schedule(0, time.Millisecond, false, task),
	}
	time.Sleep(30 * time.Millisecond)
	for _, stop := range stops {
		stop()
	}
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestConsumer_RepeatCountAndMetadata(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	col := &collector{}

	c, err := NewConsumer(Config{
		Name:            "tick",
		Period:          time.Millisecond,
		RepeatCount:     3,
		IncludeMetadata: true,
	}, r, Deps{Processor: col})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop(time.Second)

	require.Eventually(t, func() bool { return col.count() == 3 }, 2*time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 3, col.count())
	assert.Equal(t, int64(3), c.Counter())

	for i, ex := range col.exchanges {
		assert.Equal(t, "tick", ex.Header(exchange.HeaderTimerName))
		assert.Equal(t, int64(i+1), ex.Header(exchange.HeaderTimerCounter))
		assert.IsType(t, time.Time{}, ex.Header(exchange.HeaderTimerFiredTime))
		assert.True(t, ex.UnitOfWork().IsDone())
	}
}

func TestConsumer_OneShotWithoutPeriod(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	col := &collector{}

	c, err := NewConsumer(Config{Name: "once", Delay: time.Millisecond}, r, Deps{Processor: col})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return col.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, col.count())
	assert.Nil(t, col.exchanges[0].Header(exchange.HeaderTimerName))
	require.NoError(t, c.Stop(time.Second))
}

func TestConsumer_ErrorsGoToHandler(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var handled atomic.Int32
	c, err := NewConsumer(Config{Name: "failing", Period: time.Millisecond, RepeatCount: 2}, r, Deps{
		Processor: exchange.ProcessorFunc(func(context.Context, *exchange.Exchange) error {
			return fmt.Errorf("downstream unavailable")
		}),
		ExceptionHandler: exchange.ExceptionHandlerFunc(func(_ string, ex *exchange.Exchange, _ error) {
			if ex.IsFailed() {
				handled.Add(1)
			}
		}),
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, 2, c.Health().ErrorCount)
	assert.True(t, c.Health().Healthy)
	require.NoError(t, c.Stop(time.Second))
	assert.False(t, c.Health().Healthy)
}

func TestConsumer_Lifecycle(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	c, err := NewConsumer(Config{Name: "lc", Period: time.Hour, Delay: time.Hour}, r, Deps{Processor: &collector{}})
	require.NoError(t, err)

	var _ component.LifecycleComponent = c
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))
	assert.Equal(t, "timer", c.Meta().Type)
	require.NoError(t, c.Stop(time.Second))
	require.NoError(t, c.Stop(time.Second))
	assert.Equal(t, 0, r.RefCount("lc"))
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Name: "x", Period: -time.Second}.Validate())
	assert.NoError(t, Config{Name: "x"}.Validate())
}
