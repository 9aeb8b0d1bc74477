package jetstream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/poll"
)

// Header names set on exchanges created from stream messages
const (
	HeaderStream    = "StreamKitJetStreamStream"
	HeaderSequence  = "StreamKitJetStreamSequence"
	HeaderSubject   = "StreamKitJetStreamSubject"
	HeaderTimestamp = "StreamKitJetStreamTimestamp"
)

// Defaults
const (
	DefaultBucket     = "streamkit_watermarks"
	DefaultFetchLimit = 100
	allSubjects       = ">"
)

// Options are the jetstream connector options of a consumer entry
type Options struct {
	Stream         string `json:"stream"`
	Subject        string `json:"subject,omitempty"`
	Bucket         string `json:"bucket,omitempty"`
	FetchLimit     int    `json:"fetch_limit,omitempty"`
	DeleteOnCommit bool   `json:"delete_on_commit,omitempty"`
}

// Validate checks the options
func (o Options) Validate() error {
	if o.Stream == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "jetstream.Options", "Validate", "stream check")
	}
	if o.FetchLimit < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative fetch_limit %d", o.FetchLimit),
			"jetstream.Options", "Validate", "fetch_limit check")
	}
	return nil
}

// Event is one message read from the stream
type Event struct {
	Sequence uint64
	Subject  string
	Time     time.Time
	Header   map[string][]string
	Data     []byte
}

// Strategy polls a stream after a stored watermark
type Strategy struct {
	stream     string
	subject    string
	limit      int
	deleteMsgs bool
	key        string
	source     Source
	marks      Watermarks

	mu        sync.Mutex
	watermark uint64
	loaded    bool
}

var (
	_ poll.ProcessingStrategy[Event] = (*Strategy)(nil)
	_ poll.Acknowledger[Event]       = (*Strategy)(nil)
	_ poll.Watermarked               = (*Strategy)(nil)
)

// NewStrategy creates a strategy for the consumer called name
func NewStrategy(name string, opts Options, source Source, marks Watermarks) (*Strategy, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if name == "" || source == nil || marks == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("name, source and watermarks are required"),
			"jetstream.Strategy", "NewStrategy", "dependency check")
	}
	return &Strategy{
		stream:     opts.Stream,
		subject:    poll.Resolve(opts.Subject, allSubjects),
		limit:      poll.ResolveInt(opts.FetchLimit, DefaultFetchLimit),
		deleteMsgs: opts.DeleteOnCommit,
		key:        watermarkKey(opts.Stream, name),
		source:     source,
		marks:      marks,
	}, nil
}

// watermarkKey maps a consumer to a valid KV key
func watermarkKey(stream, name string) string {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return clean(stream) + "." + clean(name)
}

// Watermark returns the last dispatched sequence
func (s *Strategy) Watermark() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.FormatUint(s.watermark, 10)
}

// Poll returns up to the fetch limit of messages after the watermark. The
// watermark itself moves in Acknowledge.
func (s *Strategy) Poll(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		mark, err := s.marks.Load(ctx, s.key)
		if err != nil {
			return nil, errors.Wrap(err, "jetstream.Strategy", "Poll", "load watermark")
		}
		s.watermark, s.loaded = mark, true
	}

	var events []Event
	next := s.watermark + 1
	for len(events) < s.limit {
		msg, err := s.source.Next(ctx, next, s.subject)
		if err != nil {
			return nil, errors.Wrap(err, "jetstream.Strategy", "Poll", fmt.Sprintf("fetch after %d", s.watermark))
		}
		if msg == nil {
			break
		}
		events = append(events, Event{
			Sequence: msg.Sequence,
			Subject:  msg.Subject,
			Time:     msg.Time,
			Header:   msg.Header,
			Data:     msg.Data,
		})
		next = msg.Sequence + 1
	}
	return events, nil
}

// Acknowledge advances the watermark to the last dispatched event. The
// in-memory watermark moves even when storing it fails, so the events are
// not delivered twice by this process.
func (s *Strategy) Acknowledge(ctx context.Context, dispatched []Event) error {
	if len(dispatched) == 0 {
		return nil
	}
	last := dispatched[len(dispatched)-1].Sequence

	s.mu.Lock()
	defer s.mu.Unlock()
	if last <= s.watermark {
		return nil
	}
	s.watermark = last
	if err := s.marks.Advance(ctx, s.key, last); err != nil {
		return errors.Wrap(err, "jetstream.Strategy", "Acknowledge", "advance watermark")
	}
	return nil
}

// CreateExchange wraps an event; the body is the message payload
func (s *Strategy) CreateExchange(ev Event) *exchange.Exchange {
	ex := exchange.NewWithBody(ev.Data)
	for name, values := range ev.Header {
		if len(values) == 1 {
			ex.SetHeader(name, values[0])
		} else {
			ex.SetHeader(name, values)
		}
	}
	ex.SetHeader(HeaderStream, s.stream)
	ex.SetHeader(HeaderSequence, ev.Sequence)
	ex.SetHeader(HeaderSubject, ev.Subject)
	ex.SetHeader(HeaderTimestamp, ev.Time)
	ex.SetHeader(exchange.HeaderItemID, strconv.FormatUint(ev.Sequence, 10))
	return ex
}

// Commit deletes the message when delete_on_commit is set
func (s *Strategy) Commit(ctx context.Context, _ *exchange.Exchange, ev Event) error {
	if !s.deleteMsgs {
		return nil
	}
	return s.source.Delete(ctx, ev.Sequence)
}
