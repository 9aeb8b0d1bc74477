//go:build integration

package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/natsclient"
	"github.com/c360/streamkit/poll"
)

func TestIntegration_ConsumerResumesAfterRestart(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	_, err := tc.Client.CreateStream(ctx, jetstream.StreamConfig{Name: "ORDERS", Subjects: []string{"orders.>"}})
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := tc.Client.PublishToStream(ctx, fmt.Sprintf("orders.%d", i), []byte(fmt.Sprintf("order-%d", i)))
		require.NoError(t, err)
	}

	registry := poll.NewRegistry()
	require.NoError(t, Register(registry))

	var mu sync.Mutex
	var seen []uint64
	processor := exchange.ProcessorFunc(func(_ context.Context, ex *exchange.Exchange) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ex.Header(HeaderSequence).(uint64))
		return nil
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}

	opts, _ := json.Marshal(Options{Stream: "ORDERS", FetchLimit: 4})
	cfg := poll.ConsumerConfig{Name: "orders", Type: TypeName, InitialDelay: "1ms", Delay: "10ms",
		MaxMessagesPerPoll: 3, Options: opts}
	deps := poll.FactoryDeps{Dependencies: component.Dependencies{NATSClient: tc.Client}, Processor: processor}

	consumer, err := registry.Create(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))
	require.Eventually(t, func() bool { return count() == 6 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, consumer.Stop(time.Second))

	_, err = tc.Client.PublishToStream(ctx, "orders.6", []byte("order-6"))
	require.NoError(t, err)

	consumer, err = registry.Create(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop(time.Second)
	require.Eventually(t, func() bool { return count() == 7 }, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, seen)
	mu.Unlock()
}
