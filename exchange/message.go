package exchange

import (
	"maps"
	"sync"
)

// Message is the payload part of an exchange: a body and its headers.
type Message struct {
	mu      sync.RWMutex
	body    any
	headers map[string]any
}

// NewMessage creates an empty message
func NewMessage() *Message {
	return &Message{headers: make(map[string]any)}
}

// Body returns the message body
func (m *Message) Body() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.body
}

// SetBody replaces the message body
func (m *Message) SetBody(body any) {
	m.mu.Lock()
	m.body = body
	m.mu.Unlock()
}

// Header returns a header value or nil
func (m *Message) Header(name string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headers[name]
}

// SetHeader sets a header value
func (m *Message) SetHeader(name string, value any) {
	m.mu.Lock()
	m.headers[name] = value
	m.mu.Unlock()
}

// RemoveHeader deletes a header
func (m *Message) RemoveHeader(name string) {
	m.mu.Lock()
	delete(m.headers, name)
	m.mu.Unlock()
}

// Headers returns a copy of all headers
func (m *Message) Headers() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.headers)
}
