package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/poll"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(StoreOptions{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func putRows(t *testing.T, store *Store, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, store.Put([]byte(DefaultPrefix+k), []byte("v-"+k)))
	}
}

func keys(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}

func commitAll(t *testing.T, s *Strategy, rows []Row) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, s.Commit(context.Background(), s.CreateExchange(r), r))
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("rows0"), prefixEnd([]byte("rows/")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}

func TestStrategy_PollAfterWatermark(t *testing.T) {
	store := openStore(t)
	putRows(t, store, "b", "a", "c", "d")
	require.NoError(t, store.Put([]byte("other/x"), []byte("ignored")))

	s, err := NewStrategy("c1", store, Options{FetchLimit: 2, OnConsume: OnConsumeNone})
	require.NoError(t, err)

	rows, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys(rows))
	assert.Equal(t, []byte("v-a"), rows[0].Value)

	commitAll(t, s, rows)
	assert.Equal(t, "b", s.Watermark())

	rows, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, keys(rows))
	commitAll(t, s, rows)

	rows, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)

	// rows are still there with on_consume none
	_, ok, err := store.Get([]byte(DefaultPrefix + "a"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStrategy_WatermarkSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	store, err := Open(StoreOptions{Path: path})
	require.NoError(t, err)
	putRows(t, store, "1", "2", "3")

	s, err := NewStrategy("orders", store, Options{FetchLimit: 2, OnConsume: OnConsumeNone})
	require.NoError(t, err)
	rows, err := s.Poll(context.Background())
	require.NoError(t, err)
	commitAll(t, s, rows)
	require.NoError(t, store.Close())

	store, err = Open(StoreOptions{Path: path})
	require.NoError(t, err)
	defer store.Close()
	s, err = NewStrategy("orders", store, Options{OnConsume: OnConsumeNone})
	require.NoError(t, err)
	assert.Equal(t, "2", s.Watermark())

	rows, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, keys(rows))

	// another consumer on the same rows has its own watermark
	other, err := NewStrategy("audit", store, Options{OnConsume: OnConsumeNone})
	require.NoError(t, err)
	rows, err = other.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestStrategy_OnConsume(t *testing.T) {
	t.Run("delete", func(t *testing.T) {
		store := openStore(t)
		putRows(t, store, "a", "b")
		s, err := NewStrategy("c", store, Options{})
		require.NoError(t, err)

		rows, _ := s.Poll(context.Background())
		commitAll(t, s, rows)

		left, err := store.Scan([]byte(DefaultPrefix), prefixEnd([]byte(DefaultPrefix)), 0)
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("move", func(t *testing.T) {
		store := openStore(t)
		putRows(t, store, "a", "b")
		s, err := NewStrategy("c", store, Options{OnConsume: OnConsumeMove})
		require.NoError(t, err)

		rows, _ := s.Poll(context.Background())
		commitAll(t, s, rows)

		moved, err := store.Scan([]byte(DefaultConsumedPrefix), prefixEnd([]byte(DefaultConsumedPrefix)), 0)
		require.NoError(t, err)
		require.Len(t, moved, 2)
		assert.Equal(t, "consumed/a", string(moved[0].Key))
		assert.Equal(t, "v-b", string(moved[1].Value))

		left, _ := store.Scan([]byte(DefaultPrefix), prefixEnd([]byte(DefaultPrefix)), 0)
		assert.Empty(t, left)
	})
}

func TestStrategy_WatermarkFollowsCommittedPrefix(t *testing.T) {
	store := openStore(t)
	putRows(t, store, "a", "b", "c")
	s, err := NewStrategy("c", store, Options{OnConsume: OnConsumeNone})
	require.NoError(t, err)

	rows, _ := s.Poll(context.Background())
	// async consumers can commit out of order
	commitAll(t, s, rows[2:])
	assert.Equal(t, "", s.Watermark())
	commitAll(t, s, rows[:1])
	assert.Equal(t, "a", s.Watermark())
	commitAll(t, s, rows[1:2])
	assert.Equal(t, "c", s.Watermark())

	stored, ok, err := store.Get([]byte(metadataPrefix + "c"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", string(stored))
}

type failOnce struct {
	mu     sync.Mutex
	key    string
	failed bool
	seen   []string
}

func (f *failOnce) Process(_ context.Context, ex *exchange.Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := ex.Header(HeaderRow).(string)
	f.seen = append(f.seen, row)
	if row == f.key && !f.failed {
		f.failed = true
		return fmt.Errorf("row %s rejected", row)
	}
	return nil
}

func TestBatchConsumer_FailedRowIsPolledAgain(t *testing.T) {
	for _, action := range []OnConsume{OnConsumeDelete, OnConsumeMove, OnConsumeNone} {
		t.Run(string(action), func(t *testing.T) {
			store := openStore(t)
			putRows(t, store, "a", "b", "c")
			s, err := NewStrategy("c", store, Options{OnConsume: action})
			require.NoError(t, err)

			proc := &failOnce{key: "b"}
			c, err := poll.NewBatchConsumer[Row](poll.BatchConfig{Name: "c"}, s,
				poll.BatchDeps{Processor: proc, ExceptionHandler: exchange.ExceptionHandlerFunc(func(string, *exchange.Exchange, error) {})})
			require.NoError(t, err)

			_, err = c.Poll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "a", s.Watermark())

			_, err = c.Poll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "c", s.Watermark())
			assert.Equal(t, "b", proc.seen[3], "the failed row comes back first")

			if action != OnConsumeNone {
				left, err := store.Scan([]byte(DefaultPrefix), prefixEnd([]byte(DefaultPrefix)), 0)
				require.NoError(t, err)
				assert.Empty(t, left)
			}
		})
	}
}

func TestStrategy_TruncatedRowsArePolledAgain(t *testing.T) {
	store := openStore(t)
	putRows(t, store, "a", "b", "c", "d")
	s, err := NewStrategy("c", store, Options{OnConsume: OnConsumeNone})
	require.NoError(t, err)

	rows, err := s.Poll(context.Background())
	require.NoError(t, err)
	commitAll(t, s, rows[:2])
	assert.Equal(t, "b", s.Watermark())

	rows, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, keys(rows))
}

func TestStrategy_CreateExchange(t *testing.T) {
	store := openStore(t)
	s, err := NewStrategy("c", store, Options{})
	require.NoError(t, err)

	ex := s.CreateExchange(Row{Key: "k1", Value: []byte("body")})
	assert.Equal(t, "rows/k1", ex.Header(HeaderKey))
	assert.Equal(t, "k1", ex.Header(HeaderRow))
	assert.Equal(t, "k1", ex.Header(exchange.HeaderItemID))
	assert.Equal(t, []byte("body"), ex.Body())
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"move", Options{OnConsume: OnConsumeMove, FetchLimit: 10}, false},
		{"unknown action", Options{OnConsume: "archive"}, true},
		{"negative limit", Options{FetchLimit: -1}, true},
		{"overlapping prefixes", Options{Prefix: "data/", ConsumedPrefix: "data/done/"}, true},
		{"metadata prefix", Options{Prefix: "meta/"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.True(t, errors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type recorder struct {
	mu   sync.Mutex
	rows []string
}

func (r *recorder) Process(_ context.Context, ex *exchange.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, ex.Header(HeaderRow).(string))
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func TestRegister_ConsumesRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	stores := NewStores()
	defer stores.Close()

	store, err := stores.Get(path)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		putRows(t, store, fmt.Sprintf("%03d", i))
	}

	registry := poll.NewRegistry()
	require.NoError(t, Register(registry, stores))

	rec := &recorder{}
	opts, _ := json.Marshal(Options{Path: path, FetchLimit: 4})
	consumer, err := registry.Create(poll.ConsumerConfig{
		Name:         "range",
		Type:         TypeName,
		InitialDelay: "1ms",
		Delay:        "5ms",
		Options:      opts,
	}, poll.FactoryDeps{Processor: rec})
	require.NoError(t, err)

	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Stop(time.Second)

	require.Eventually(t, func() bool { return rec.count() == 10 }, 3*time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "000", rec.rows[0])
	assert.Equal(t, "009", rec.rows[9])
	rec.mu.Unlock()

	same, err := stores.Get(path)
	require.NoError(t, err)
	assert.Same(t, store, same)

	_, err = registry.Create(poll.ConsumerConfig{Name: "nopath", Type: TypeName}, poll.FactoryDeps{Processor: rec})
	assert.True(t, errors.IsInvalid(err))
}
