package pebble

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/poll"
)

// Header names set on exchanges created from Pebble rows
const (
	HeaderKey = "StreamKitPebbleKey"
	HeaderRow = "StreamKitPebbleRow"
)

// Defaults
const (
	DefaultPrefix         = "rows/"
	DefaultConsumedPrefix = "consumed/"
	metadataPrefix        = "meta/watermark/"
)

// OnConsume is the action applied to a row after it was processed
type OnConsume string

const (
	OnConsumeDelete OnConsume = "delete"
	OnConsumeMove   OnConsume = "move"
	OnConsumeNone   OnConsume = "none"
)

// Options are the pebble connector options of a consumer entry
type Options struct {
	Path           string    `json:"path"`
	Prefix         string    `json:"prefix,omitempty"`
	ConsumedPrefix string    `json:"consumed_prefix,omitempty"`
	FetchLimit     int       `json:"fetch_limit,omitempty"`
	OnConsume      OnConsume `json:"on_consume,omitempty"`
}

// Validate checks the options
func (o Options) Validate() error {
	switch o.OnConsume {
	case "", OnConsumeDelete, OnConsumeMove, OnConsumeNone:
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown on_consume %q", o.OnConsume),
			"pebble.Options", "Validate", "on_consume check")
	}
	if o.FetchLimit < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative fetch_limit %d", o.FetchLimit),
			"pebble.Options", "Validate", "fetch_limit check")
	}
	prefix := poll.Resolve(o.Prefix, DefaultPrefix)
	consumed := poll.Resolve(o.ConsumedPrefix, DefaultConsumedPrefix)
	if overlaps(prefix, consumed) || overlaps(prefix, metadataPrefix) || overlaps(consumed, metadataPrefix) {
		return errors.WrapInvalid(fmt.Errorf("prefixes %q and %q overlap", prefix, consumed),
			"pebble.Options", "Validate", "prefix check")
	}
	return nil
}

func overlaps(a, b string) bool {
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Row is one polled entry; Key has the row prefix stripped
type Row struct {
	Key   string
	Value []byte
}

// Strategy polls the keys under a prefix of a Store
type Strategy struct {
	store        *Store
	name         string
	prefix       []byte
	consumed     []byte
	watermarkKey []byte
	limit        int
	onConsume    OnConsume

	mu        sync.Mutex
	watermark string
	// polled keys after the watermark, sorted, with their commit state
	order   []string
	settled map[string]bool
}

var (
	_ poll.ProcessingStrategy[Row] = (*Strategy)(nil)
	_ poll.Watermarked             = (*Strategy)(nil)
)

// NewStrategy creates a strategy for the consumer called name and loads its
// stored watermark
func NewStrategy(name string, store *Store, opts Options) (*Strategy, error) {
	if name == "" || store == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("name and store are required"), "pebble.Strategy", "NewStrategy", "dependency check")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Strategy{
		store:        store,
		name:         name,
		prefix:       []byte(poll.Resolve(opts.Prefix, DefaultPrefix)),
		consumed:     []byte(poll.Resolve(opts.ConsumedPrefix, DefaultConsumedPrefix)),
		watermarkKey: []byte(metadataPrefix + name),
		limit:        opts.FetchLimit,
		onConsume:    OnConsume(poll.Resolve(string(opts.OnConsume), string(OnConsumeDelete))),
		settled:      make(map[string]bool),
	}

	mark, ok, err := store.Get(s.watermarkKey)
	if err != nil {
		return nil, errors.Wrap(err, "pebble.Strategy", "NewStrategy", "load watermark")
	}
	if ok {
		s.watermark = string(mark)
	}
	return s, nil
}

// Watermark returns the highest key below which every polled row was
// committed
func (s *Strategy) Watermark() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// Poll returns the rows with keys strictly after the watermark
func (s *Strategy) Poll(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := s.prefix
	if mark := s.Watermark(); mark != "" {
		// the zero byte makes the bound exclusive of the watermark itself
		lower = append(append(bytes.Clone(s.prefix), mark...), 0)
	}
	kvs, err := s.store.Scan(lower, prefixEnd(s.prefix), s.limit)
	if err != nil {
		return nil, errors.Wrap(err, "pebble.Strategy", "Poll", "scan rows")
	}

	rows := make([]Row, 0, len(kvs))
	for _, kv := range kvs {
		rows = append(rows, Row{Key: string(kv.Key[len(s.prefix):]), Value: kv.Value})
	}
	s.track(rows)
	return rows, nil
}

// track records polled rows that are not yet known as uncommitted
func (s *Strategy) track(rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if _, ok := s.settled[r.Key]; ok || r.Key <= s.watermark {
			continue
		}
		i, _ := slices.BinarySearch(s.order, r.Key)
		s.order = slices.Insert(s.order, i, r.Key)
		s.settled[r.Key] = false
	}
}

// committedPrefix returns the watermark after the leading committed keys
// of order and how many keys that covers.
func (s *Strategy) committedPrefix() (string, int) {
	mark, n := s.watermark, 0
	for n < len(s.order) && s.settled[s.order[n]] {
		mark = s.order[n]
		n++
	}
	return mark, n
}

// CreateExchange wraps a row; the body is the row value
func (s *Strategy) CreateExchange(row Row) *exchange.Exchange {
	ex := exchange.NewWithBody(row.Value)
	ex.SetHeader(HeaderKey, string(s.prefix)+row.Key)
	ex.SetHeader(HeaderRow, row.Key)
	ex.SetHeader(exchange.HeaderItemID, row.Key)
	return ex
}

// Commit applies the on-consume action and advances the watermark in the
// same batch. The watermark only moves over a contiguous run of committed
// rows, so a row that failed stays reachable by the next poll; rows after it
// may then be polled again when on_consume is none.
func (s *Strategy) Commit(_ context.Context, _ *exchange.Exchange, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, tracked := s.settled[row.Key]
	if tracked {
		s.settled[row.Key] = true
	}
	mark, n := s.committedPrefix()
	key := append(bytes.Clone(s.prefix), row.Key...)

	err := s.store.Apply(func(b *pebble.Batch) error {
		switch s.onConsume {
		case OnConsumeDelete:
			if err := b.Delete(key, nil); err != nil {
				return err
			}
		case OnConsumeMove:
			if err := b.Set(append(bytes.Clone(s.consumed), row.Key...), row.Value, nil); err != nil {
				return err
			}
			if err := b.Delete(key, nil); err != nil {
				return err
			}
		}
		if mark == s.watermark {
			return nil
		}
		return b.Set(s.watermarkKey, []byte(mark), nil)
	})
	if err != nil {
		if tracked {
			s.settled[row.Key] = false
		}
		return errors.Wrap(err, "pebble.Strategy", "Commit", fmt.Sprintf("commit row %q", row.Key))
	}

	for _, k := range s.order[:n] {
		delete(s.settled, k)
	}
	s.order = s.order[n:]
	s.watermark = mark
	return nil
}
