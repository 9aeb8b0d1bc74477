package streamcache

import (
	"io"

	"github.com/c360/streamkit/exchange"
)

// StreamCache is a message body decoupled from its one-shot source.
//
// WriteTo always writes the full cached content and does not move the read
// position, so it can be called repeatedly with identical results. Note that
// io.Copy prefers WriteTo when it is available.
type StreamCache interface {
	io.Reader
	io.WriterTo
	io.Closer

	// Reset repositions the cache at its start. It never fails.
	Reset()

	// Copy returns an independent view over the same content, registered with ex
	// so the backing resource outlives ex.
	Copy(ex *exchange.Exchange) (StreamCache, error)

	// Length returns the content length in bytes, or -1 when unknown.
	Length() int64

	// Position returns the read cursor, or -1 when not supported.
	Position() int64

	// InMemory reports whether the content is held in memory.
	InMemory() bool
}
