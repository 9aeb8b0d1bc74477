package streamcache

import (
	"bytes"
	"io"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
)

// CachedOutputStream buffers written bytes in memory and pages them to a
// spool file once the threshold is crossed.
type CachedOutputStream struct {
	strategy *Strategy
	manager  *TempFileManager

	mem    bytes.Buffer
	file   io.Writer
	size   int64
	closed bool
}

// NewCachedOutputStream creates a stream whose spool file, if any, lives as
// long as ex and every exchange a cache from it is copied to.
func (s *Strategy) NewCachedOutputStream(ex *exchange.Exchange) (*CachedOutputStream, error) {
	m := newTempFileManager(s)
	if err := m.AddExchange(ex); err != nil {
		return nil, err
	}
	return &CachedOutputStream{strategy: s, manager: m}, nil
}

func (c *CachedOutputStream) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errors.Wrap(errors.ErrStreamCacheClosed, "CachedOutputStream", "Write", "write")
	}
	if c.file == nil && c.strategy.ShouldSpool(c.size+int64(len(p))) {
		if err := c.pageToFile(); err != nil {
			return 0, err
		}
	}

	var n int
	var err error
	if c.file != nil {
		n, err = c.file.Write(p)
	} else {
		n, err = c.mem.Write(p)
	}
	c.size += int64(n)
	return n, err
}

func (c *CachedOutputStream) pageToFile() error {
	out, err := c.manager.CreateOutputStream()
	if err != nil {
		return err
	}
	if _, err := out.Write(c.mem.Bytes()); err != nil {
		return errors.WrapFatal(err, "CachedOutputStream", "pageToFile", "write spool file")
	}
	c.mem = bytes.Buffer{}
	c.file = out
	return nil
}

// Close finishes writing. A spooled file is flushed and becomes readable.
func (c *CachedOutputStream) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.file != nil {
		return c.manager.Finalize()
	}
	return nil
}

// NewStreamCache closes the stream and returns a cache over what was written.
// It can be called more than once; each call returns a new view.
func (c *CachedOutputStream) NewStreamCache() (StreamCache, error) {
	if err := c.Close(); err != nil {
		return nil, err
	}
	if c.file == nil {
		return NewByteArrayInputStreamCache(c.mem.Bytes()), nil
	}
	return c.manager.newStreamCache()
}

// Size returns the number of bytes written so far
func (c *CachedOutputStream) Size() int64 { return c.size }

// IsSpooled reports whether the content moved to a spool file
func (c *CachedOutputStream) IsSpooled() bool { return c.file != nil }

// TempFileManager returns the manager backing this stream
func (c *CachedOutputStream) TempFileManager() *TempFileManager { return c.manager }
