package poll

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/errors"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(cfg ConsumerConfig, deps FactoryDeps) (*ScheduledPollConsumer, error) {
		var opts struct {
			Rows []string `json:"rows"`
		}
		if err := cfg.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		consumer, _, err := NewConsumer[string](cfg, newListStrategy(opts.Rows...), deps)
		return consumer, err
	}

	require.NoError(t, r.Register("list", factory))
	require.NoError(t, r.Register("other", factory))
	err := r.Register("list", factory)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, []string{"list", "other"}, r.Names())

	rec := &recorder{}
	consumer, err := r.Create(ConsumerConfig{
		Name:    "rows",
		Type:    "list",
		Options: json.RawMessage(`{"rows":["a","b"]}`),
	}, FactoryDeps{Processor: rec})
	require.NoError(t, err)
	assert.Equal(t, "rows", consumer.Name())

	_, err = r.Create(ConsumerConfig{Name: "x", Type: "missing"}, FactoryDeps{Processor: rec})
	assert.True(t, errors.IsInvalid(err))

	_, err = r.Create(ConsumerConfig{Name: "bad", Type: "list", Options: json.RawMessage(`{"rows":1}`)},
		FactoryDeps{Processor: rec})
	assert.Error(t, err)
}

func TestConsumerConfig(t *testing.T) {
	cfg := ConsumerConfig{Name: "a", Type: "t", Delay: "2s", MaxMessagesPerPoll: 10, ProcessingMode: ModeAsync}
	require.NoError(t, cfg.Validate())

	sched, err := cfg.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, sched.Delay)
	assert.Equal(t, DefaultInitialDelay, sched.InitialDelay)

	batch, err := cfg.BatchConfig()
	require.NoError(t, err)
	assert.Equal(t, ModeAsync, batch.Mode)
	assert.Equal(t, DefaultAsyncWorkers, batch.AsyncWorkers)

	tests := []struct {
		name string
		cfg  ConsumerConfig
	}{
		{"no name", ConsumerConfig{Type: "t"}},
		{"no type", ConsumerConfig{Name: "a"}},
		{"bad delay", ConsumerConfig{Name: "a", Type: "t", Delay: "soon"}},
		{"negative delay", ConsumerConfig{Name: "a", Type: "t", Delay: "-1s"}},
		{"bad mode", ConsumerConfig{Name: "a", Type: "t", ProcessingMode: "eventually"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.IsInvalid(tt.cfg.Validate()))
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "header", Resolve("header", "endpoint", "default"))
	assert.Equal(t, "endpoint", Resolve("", "endpoint", "default"))
	assert.Equal(t, "default", Resolve("", "", "default"))
	assert.Equal(t, "", Resolve())

	assert.Equal(t, 5, ResolveInt(0, 5, 10))
	assert.Equal(t, 10, ResolveInt(0, 0, 10))
}

func TestConsumerConfig_PollStrategy(t *testing.T) {
	base := ConsumerConfig{Name: "orders", Type: "memtable"}

	s, err := base.PollStrategy()
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg := base
	cfg.SuspendAfterFailures = 4
	s, err = cfg.PollStrategy()
	require.NoError(t, err)
	require.IsType(t, &LimitedPollStrategy{}, s)
	assert.Equal(t, 4, s.(*LimitedPollStrategy).Limit)

	cfg = base
	cfg.PollRetries = 2
	cfg.PollRetryDelay = "50ms"
	s, err = cfg.PollStrategy()
	require.NoError(t, err)
	require.IsType(t, RetryPollStrategy{}, s)
	assert.Equal(t, 2, s.(RetryPollStrategy).Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, s.(RetryPollStrategy).Retry.InitialDelay)

	for _, bad := range []ConsumerConfig{
		{Name: "a", Type: "memtable", PollRetries: 1, SuspendAfterFailures: 1},
		{Name: "a", Type: "memtable", PollRetries: -1},
		{Name: "a", Type: "memtable", PollRetries: 1, PollRetryDelay: "later"},
	} {
		_, err := bad.PollStrategy()
		assert.True(t, errors.IsInvalid(err))
		assert.True(t, errors.IsInvalid(bad.Validate()))
	}
}
