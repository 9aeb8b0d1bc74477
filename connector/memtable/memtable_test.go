package memtable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/poll"
)

func fill(t *Table, n int) {
	for i := 0; i < n; i++ {
		t.Insert(fmt.Sprintf("row-%02d", i), []byte(fmt.Sprintf("value-%d", i)))
	}
}

func TestTable_OrderedUnconsumed(t *testing.T) {
	table := NewTable("t")
	table.Insert("c", []byte("3"))
	table.Insert("a", []byte("1"))
	table.Insert("b", []byte("2"))

	rows := table.Unconsumed(0)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].Key)
	assert.Equal(t, "c", rows[2].Key)

	assert.True(t, table.MarkConsumed("a"))
	rows = table.Unconsumed(1)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].Key)

	assert.True(t, table.Delete("b"))
	assert.False(t, table.Delete("b"))
	assert.Equal(t, 2, table.Len())

	row, ok := table.Get("a")
	require.True(t, ok)
	assert.True(t, row.Consumed)

	table.Insert("a", []byte("again"))
	row, _ = table.Get("a")
	assert.False(t, row.Consumed)
}

func TestStrategy_OnConsume(t *testing.T) {
	tests := []struct {
		name       string
		onConsume  OnConsume
		wantLen    int
		wantPolled int
	}{
		{"mark", OnConsumeMark, 4, 0},
		{"default is mark", "", 4, 0},
		{"delete", OnConsumeDelete, 0, 0},
		{"none", OnConsumeNone, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewTable("orders")
			fill(table, 4)
			s, err := NewStrategy(table, Options{OnConsume: tt.onConsume})
			require.NoError(t, err)

			rows, err := s.Poll(context.Background())
			require.NoError(t, err)
			require.Len(t, rows, 4)
			for _, row := range rows {
				ex := s.CreateExchange(row)
				assert.Equal(t, row.Key, ex.Header(HeaderRowKey))
				assert.Equal(t, "orders", ex.Header(HeaderTable))
				assert.Equal(t, row.Value, ex.Body())
				require.NoError(t, s.Commit(context.Background(), ex, row))
			}

			assert.Equal(t, tt.wantLen, table.Len())
			rows, err = s.Poll(context.Background())
			require.NoError(t, err)
			assert.Len(t, rows, tt.wantPolled)
		})
	}
}

func TestStrategy_CommitMissingRow(t *testing.T) {
	table := NewTable("t")
	fill(table, 1)
	s, err := NewStrategy(table, Options{OnConsume: OnConsumeDelete})
	require.NoError(t, err)

	rows, _ := s.Poll(context.Background())
	table.Delete(rows[0].Key)
	err = s.Commit(context.Background(), nil, rows[0])
	assert.True(t, errors.IsInvalid(err))
}

func TestOptions_Validate(t *testing.T) {
	assert.Error(t, Options{}.Validate())
	assert.Error(t, Options{Table: "t", OnConsume: "archive"}.Validate())
	assert.Error(t, Options{Table: "t", FetchLimit: -1}.Validate())
	assert.NoError(t, Options{Table: "t", FetchLimit: 10, OnConsume: OnConsumeDelete}.Validate())
}

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) Process(_ context.Context, ex *exchange.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, _ := ex.Header(HeaderRowKey).(string)
	r.keys = append(r.keys, key)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func TestRegister_ConsumesTable(t *testing.T) {
	catalog := NewCatalog()
	fill(catalog.Table("orders"), 7)

	registry := poll.NewRegistry()
	require.NoError(t, Register(registry, catalog))
	assert.Error(t, Register(registry, catalog))

	rec := &recorder{}
	consumer, err := registry.Create(poll.ConsumerConfig{
		Name:               "orders-consumer",
		Type:               TypeName,
		InitialDelay:       "1ms",
		Delay:              "5ms",
		MaxMessagesPerPoll: 3,
		Options:            json.RawMessage(`{"table":"orders","on_consume":"delete"}`),
	}, poll.FactoryDeps{Processor: rec})
	require.NoError(t, err)

	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Stop(time.Second)

	require.Eventually(t, func() bool { return catalog.Table("orders").Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 7, rec.count())
	assert.Equal(t, []string{"orders"}, catalog.Names())

	rec.mu.Lock()
	assert.Equal(t, "row-00", rec.keys[0])
	assert.Equal(t, "row-06", rec.keys[6])
	rec.mu.Unlock()
}

func TestRegister_BadOptions(t *testing.T) {
	registry := poll.NewRegistry()
	require.NoError(t, Register(registry, NewCatalog()))

	_, err := registry.Create(poll.ConsumerConfig{
		Name:    "x",
		Type:    TypeName,
		Options: json.RawMessage(`{"on_consume":"delete"}`),
	}, poll.FactoryDeps{Processor: &recorder{}})
	assert.True(t, errors.IsInvalid(err))
}
