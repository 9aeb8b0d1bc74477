package exchange

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Exchange is a unit of work carrying a message through a pipeline.
type Exchange struct {
	id      string
	created time.Time
	in      *Message
	uow     *UnitOfWork

	mu         sync.RWMutex
	properties map[string]any
	err        error
}

// New creates an exchange with an empty message and a fresh unit of work
func New() *Exchange {
	return &Exchange{
		id:         uuid.NewString(),
		created:    time.Now(),
		in:         NewMessage(),
		uow:        &UnitOfWork{},
		properties: make(map[string]any),
	}
}

// NewWithBody creates an exchange carrying body
func NewWithBody(body any) *Exchange {
	ex := New()
	ex.in.SetBody(body)
	return ex
}

// ID returns the exchange identifier
func (e *Exchange) ID() string { return e.id }

// Created returns the creation time
func (e *Exchange) Created() time.Time { return e.created }

// Message returns the message
func (e *Exchange) Message() *Message { return e.in }

// Body is shorthand for Message().Body()
func (e *Exchange) Body() any { return e.in.Body() }

// SetBody is shorthand for Message().SetBody()
func (e *Exchange) SetBody(body any) { e.in.SetBody(body) }

// Header is shorthand for Message().Header()
func (e *Exchange) Header(name string) any { return e.in.Header(name) }

// SetHeader is shorthand for Message().SetHeader()
func (e *Exchange) SetHeader(name string, value any) { e.in.SetHeader(name, value) }

// Property returns an exchange property or nil
func (e *Exchange) Property(name string) any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.properties[name]
}

// SetProperty sets an exchange property
func (e *Exchange) SetProperty(name string, value any) {
	e.mu.Lock()
	e.properties[name] = value
	e.mu.Unlock()
}

// Properties returns a copy of all properties
func (e *Exchange) Properties() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.properties)
}

// Exception returns the error attached to the exchange
func (e *Exchange) Exception() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// SetException attaches an error, nil clears it
func (e *Exchange) SetException(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// IsFailed reports whether an exception is attached
func (e *Exchange) IsFailed() bool {
	return e.Exception() != nil
}

// UnitOfWork returns the unit of work of this exchange
func (e *Exchange) UnitOfWork() *UnitOfWork { return e.uow }

// Done completes the unit of work, running registered hooks exactly once.
func (e *Exchange) Done() {
	e.uow.complete(e)
}

// Copy creates a new exchange with its own id and unit of work, sharing the
// body value and cloning headers and properties. Bodies that need per-exchange
// copies are handled by Multicast.
func (e *Exchange) Copy() *Exchange {
	c := New()
	c.in.SetBody(e.in.Body())
	for k, v := range e.in.Headers() {
		c.in.SetHeader(k, v)
	}
	for k, v := range e.Properties() {
		c.properties[k] = v
	}
	return c
}
