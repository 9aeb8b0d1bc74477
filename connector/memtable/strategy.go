package memtable

import (
	"context"
	"fmt"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/poll"
)

// Header names set on exchanges created from table rows
const (
	HeaderTable  = "StreamKitMemTable"
	HeaderRowKey = "StreamKitMemTableKey"
)

// OnConsume is the action applied to a row after it was processed
type OnConsume string

const (
	// OnConsumeMark flags the row so later polls skip it
	OnConsumeMark OnConsume = "mark"
	// OnConsumeDelete removes the row
	OnConsumeDelete OnConsume = "delete"
	// OnConsumeNone leaves the row untouched; it is returned again next poll
	OnConsumeNone OnConsume = "none"
)

// Options are the memtable connector options of a consumer entry
type Options struct {
	Table      string    `json:"table"`
	FetchLimit int       `json:"fetch_limit,omitempty"`
	OnConsume  OnConsume `json:"on_consume,omitempty"`
}

// Validate checks the options
func (o Options) Validate() error {
	if o.Table == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "memtable.Options", "Validate", "table check")
	}
	switch o.OnConsume {
	case "", OnConsumeMark, OnConsumeDelete, OnConsumeNone:
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown on_consume %q", o.OnConsume),
			"memtable.Options", "Validate", "on_consume check")
	}
	if o.FetchLimit < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative fetch_limit %d", o.FetchLimit),
			"memtable.Options", "Validate", "fetch_limit check")
	}
	return nil
}

// Strategy polls a Table
type Strategy struct {
	table *Table
	opts  Options
}

var _ poll.ProcessingStrategy[Row] = (*Strategy)(nil)

// NewStrategy creates a strategy over table
func NewStrategy(table *Table, opts Options) (*Strategy, error) {
	if opts.Table == "" {
		opts.Table = table.Name()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.OnConsume == "" {
		opts.OnConsume = OnConsumeMark
	}
	return &Strategy{table: table, opts: opts}, nil
}

// Poll returns the unconsumed rows
func (s *Strategy) Poll(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.table.Unconsumed(s.opts.FetchLimit), nil
}

// CreateExchange wraps a row; the body is the row value
func (s *Strategy) CreateExchange(row Row) *exchange.Exchange {
	ex := exchange.NewWithBody(row.Value)
	ex.SetHeader(HeaderTable, s.table.Name())
	ex.SetHeader(HeaderRowKey, row.Key)
	ex.SetHeader(exchange.HeaderItemID, row.Key)
	return ex
}

// Commit applies the on-consume action
func (s *Strategy) Commit(_ context.Context, _ *exchange.Exchange, row Row) error {
	var found bool
	switch s.opts.OnConsume {
	case OnConsumeNone:
		return nil
	case OnConsumeDelete:
		found = s.table.Delete(row.Key)
	default:
		found = s.table.MarkConsumed(row.Key)
	}
	if !found {
		return errors.WrapInvalid(fmt.Errorf("row %q no longer exists", row.Key), "memtable.Strategy", "Commit", "apply on_consume")
	}
	return nil
}
