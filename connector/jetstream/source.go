package jetstream

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/natsclient"
)

// Source reads messages from a stream
type Source interface {
	// Next returns the first message with sequence >= seq whose subject
	// matches subject, or nil when there is none.
	Next(ctx context.Context, seq uint64, subject string) (*jetstream.RawStreamMsg, error)
	Delete(ctx context.Context, seq uint64) error
}

// StreamSource adapts a jetstream.Stream
type StreamSource struct {
	Stream jetstream.Stream
}

var _ Source = StreamSource{}

// Next implements Source
func (s StreamSource) Next(ctx context.Context, seq uint64, subject string) (*jetstream.RawStreamMsg, error) {
	msg, err := s.Stream.GetMsg(ctx, seq, jetstream.WithGetMsgSubject(subject))
	if stderrors.Is(err, jetstream.ErrMsgNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "StreamSource", "Next", "get message")
	}
	return msg, nil
}

// Delete implements Source
func (s StreamSource) Delete(ctx context.Context, seq uint64) error {
	err := s.Stream.DeleteMsg(ctx, seq)
	if err != nil && !stderrors.Is(err, jetstream.ErrMsgNotFound) {
		return errors.WrapTransient(err, "StreamSource", "Delete", "delete message")
	}
	return nil
}

// Watermarks stores the last fetched sequence per consumer
type Watermarks interface {
	Load(ctx context.Context, consumer string) (uint64, error)
	// Advance stores seq unless the stored value is already >= seq
	Advance(ctx context.Context, consumer string, seq uint64) error
}

// KVWatermarks keeps watermarks in a KV bucket
type KVWatermarks struct {
	Store *natsclient.KVStore
}

// Load implements Watermarks; a missing key is sequence zero
func (w KVWatermarks) Load(ctx context.Context, consumer string) (uint64, error) {
	entry, err := w.Store.Get(ctx, consumer)
	if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.WrapTransient(err, "KVWatermarks", "Load", "read watermark")
	}
	seq, err := strconv.ParseUint(string(entry.Value), 10, 64)
	if err != nil {
		return 0, errors.WrapInvalid(err, "KVWatermarks", "Load", "parse watermark")
	}
	return seq, nil
}

// Advance implements Watermarks
func (w KVWatermarks) Advance(ctx context.Context, consumer string, seq uint64) error {
	err := w.Store.UpdateWithRetry(ctx, consumer, func(current []byte) ([]byte, error) {
		if len(current) > 0 {
			stored, err := strconv.ParseUint(string(current), 10, 64)
			if err == nil && stored >= seq {
				return nil, natsclient.ErrKVSkipUpdate
			}
		}
		return []byte(strconv.FormatUint(seq, 10)), nil
	})
	if err != nil {
		return errors.WrapTransient(err, "KVWatermarks", "Advance", "store watermark")
	}
	return nil
}

// MemoryWatermarks keeps watermarks in process
type MemoryWatermarks struct {
	mu    sync.Mutex
	marks map[string]uint64
}

// NewMemoryWatermarks creates an empty store
func NewMemoryWatermarks() *MemoryWatermarks {
	return &MemoryWatermarks{marks: make(map[string]uint64)}
}

// Load implements Watermarks
func (w *MemoryWatermarks) Load(_ context.Context, consumer string) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.marks[consumer], nil
}

// Advance implements Watermarks
func (w *MemoryWatermarks) Advance(_ context.Context, consumer string, seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.marks[consumer] {
		w.marks[consumer] = seq
	}
	return nil
}
