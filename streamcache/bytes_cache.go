package streamcache

import (
	"bytes"
	"io"
	"sync"

	"github.com/c360/streamkit/exchange"
)

// ByteArrayInputStreamCache is a StreamCache over a byte slice. The slice is
// shared, not copied, and must not be modified afterwards.
type ByteArrayInputStreamCache struct {
	data []byte

	mu sync.Mutex
	r  *bytes.Reader
}

// NewByteArrayInputStreamCache wraps data without copying it
func NewByteArrayInputStreamCache(data []byte) *ByteArrayInputStreamCache {
	return &ByteArrayInputStreamCache{data: data, r: bytes.NewReader(data)}
}

func (c *ByteArrayInputStreamCache) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r.Read(p)
}

func (c *ByteArrayInputStreamCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.r.Reset(c.data)
}

// WriteTo writes the whole content without moving the read position
func (c *ByteArrayInputStreamCache) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.data)
	return int64(n), err
}

// Copy returns an independent view over the same bytes; ex is not needed to
// keep memory alive.
func (c *ByteArrayInputStreamCache) Copy(*exchange.Exchange) (StreamCache, error) {
	return NewByteArrayInputStreamCache(c.data), nil
}

func (c *ByteArrayInputStreamCache) CopyForExchange(ex *exchange.Exchange) (any, error) {
	return c.Copy(ex)
}

func (c *ByteArrayInputStreamCache) Close() error { return nil }

func (c *ByteArrayInputStreamCache) Length() int64 { return int64(len(c.data)) }

func (c *ByteArrayInputStreamCache) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.data)) - int64(c.r.Len())
}

func (c *ByteArrayInputStreamCache) InMemory() bool { return true }

// Bytes returns the cached content
func (c *ByteArrayInputStreamCache) Bytes() []byte { return c.data }

// ReaderInputStreamCache is a StreamCache over the unread part of a
// *bytes.Reader. It reads through ReaderAt, so the bytes are not copied and
// the source reader's position is left alone.
type ReaderInputStreamCache struct {
	src    *bytes.Reader
	offset int64
	length int64

	mu sync.Mutex
	r  *io.SectionReader
}

// NewReaderInputStreamCache wraps what is left to read in src
func NewReaderInputStreamCache(src *bytes.Reader) *ReaderInputStreamCache {
	offset := src.Size() - int64(src.Len())
	return newReaderInputStreamCache(src, offset, int64(src.Len()))
}

func newReaderInputStreamCache(src *bytes.Reader, offset, length int64) *ReaderInputStreamCache {
	return &ReaderInputStreamCache{
		src:    src,
		offset: offset,
		length: length,
		r:      io.NewSectionReader(src, offset, length),
	}
}

func (c *ReaderInputStreamCache) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r.Read(p)
}

func (c *ReaderInputStreamCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.r = io.NewSectionReader(c.src, c.offset, c.length)
}

// WriteTo writes the whole content without moving the read position
func (c *ReaderInputStreamCache) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, io.NewSectionReader(c.src, c.offset, c.length))
}

// Copy returns an independent view over the same bytes
func (c *ReaderInputStreamCache) Copy(*exchange.Exchange) (StreamCache, error) {
	return newReaderInputStreamCache(c.src, c.offset, c.length), nil
}

func (c *ReaderInputStreamCache) CopyForExchange(ex *exchange.Exchange) (any, error) {
	return c.Copy(ex)
}

func (c *ReaderInputStreamCache) Close() error { return nil }

func (c *ReaderInputStreamCache) Length() int64 { return c.length }

func (c *ReaderInputStreamCache) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, _ := c.r.Seek(0, io.SeekCurrent)
	return pos
}

func (c *ReaderInputStreamCache) InMemory() bool { return true }
