package streamcache

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
)

// FileInputStreamCache is one independently positioned view over a spool
// file. The file is opened lazily on the first Read.
type FileInputStreamCache struct {
	manager *TempFileManager
	path    string
	ciphers *CipherPair
	length  int64
	bufSize int

	mu     sync.Mutex
	file   *os.File
	reader io.Reader
	pos    int64
}

// Read reads from the current position, opening the file if needed
func (c *FileInputStreamCache) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reader == nil {
		if err := c.open(); err != nil {
			return 0, err
		}
	}
	n, err := c.reader.Read(p)
	c.pos += int64(n)
	return n, err
}

func (c *FileInputStreamCache) open() error {
	f, r, err := c.openReader()
	if err != nil {
		return err
	}
	c.file = f
	c.reader = r
	return nil
}

// openReader opens a fresh plaintext reader over the file
func (c *FileInputStreamCache) openReader() (*os.File, io.Reader, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "FileInputStreamCache", "Read", "open spool file")
	}
	var r io.Reader = bufio.NewReaderSize(f, c.bufSize)
	if c.ciphers != nil {
		r, err = c.ciphers.DecryptReader(r)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
	}
	return f, r, nil
}

// Reset drops the open handle; the next Read starts from the beginning.
func (c *FileInputStreamCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeLocked(); err != nil {
		c.manager.strategy.logger.Warn("Failed to close spool file on reset", "path", c.path, "error", err)
	}
	c.pos = 0
}

// WriteTo copies the whole content to w through a fresh handle, leaving the
// read position alone.
func (c *FileInputStreamCache) WriteTo(w io.Writer) (int64, error) {
	if c.ciphers == nil {
		f, err := os.Open(c.path)
		if err != nil {
			return 0, errors.Wrap(err, "FileInputStreamCache", "WriteTo", "open spool file")
		}
		defer f.Close()
		return io.Copy(w, f)
	}

	f, r, err := c.openReader()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.CopyBuffer(w, r, make([]byte, c.bufSize))
}

// Copy registers ex with the spool file and returns a new view over it
func (c *FileInputStreamCache) Copy(ex *exchange.Exchange) (StreamCache, error) {
	if err := c.manager.AddExchange(ex); err != nil {
		return nil, err
	}
	return c.manager.newStreamCache()
}

// CopyForExchange lets exchange.Multicast copy file-backed bodies
func (c *FileInputStreamCache) CopyForExchange(ex *exchange.Exchange) (any, error) {
	return c.Copy(ex)
}

// Close closes the open handle, if any. The file itself stays until the
// manager disposes of it.
func (c *FileInputStreamCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *FileInputStreamCache) closeLocked() error {
	f := c.file
	c.file = nil
	c.reader = nil
	if f == nil {
		return nil
	}
	return f.Close()
}

func (c *FileInputStreamCache) Length() int64 { return c.length }

func (c *FileInputStreamCache) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *FileInputStreamCache) InMemory() bool { return false }

// Path returns the spool file path
func (c *FileInputStreamCache) Path() string { return c.path }
