package streamcache

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
)

// FileState is the lifecycle state of a spool file
type FileState int

const (
	StateUninitialized FileState = iota
	StateWriting
	StateFinalized
	StateDisposed
)

func (s FileState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWriting:
		return "writing"
	case StateFinalized:
		return "finalized"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// TempFileManager owns one spool file and deletes it once the last exchange
// referencing it completes.
type TempFileManager struct {
	strategy *Strategy

	mu        sync.Mutex
	state     FileState
	path      string
	out       *spoolWriter
	written   int64
	ciphers   *CipherPair
	exchanges int
	caches    []*FileInputStreamCache
}

func newTempFileManager(s *Strategy) *TempFileManager {
	return &TempFileManager{strategy: s}
}

// State returns the current lifecycle state
func (m *TempFileManager) State() FileState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Path returns the spool file path, empty before CreateOutputStream
func (m *TempFileManager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// ActiveExchanges returns how many exchanges still reference the file
func (m *TempFileManager) ActiveExchanges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchanges
}

// AddExchange counts ex as a holder of the file until its unit of work
// completes.
func (m *TempFileManager) AddExchange(ex *exchange.Exchange) error {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return errors.WrapFatal(errors.ErrSpoolFileDisposed, "TempFileManager", "AddExchange", "register exchange")
	}
	m.exchanges++
	m.mu.Unlock()

	if !ex.UnitOfWork().OnCompletion(func(*exchange.Exchange) { m.release() }) {
		m.release()
		return errors.WrapFatal(errors.ErrUnitOfWorkDone, "TempFileManager", "AddExchange", "register exchange")
	}
	return nil
}

// CreateOutputStream creates the spool file. It can only be called once, and
// only while at least one exchange is registered.
func (m *TempFileManager) CreateOutputStream() (io.Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed || m.exchanges == 0 {
		m.strategy.logger.Error("Refusing to create spool file that would never be removed",
			"state", m.state.String())
		return nil, errors.WrapFatal(errors.ErrNoActiveExchanges, "TempFileManager", "CreateOutputStream", "create spool file")
	}
	if m.state != StateUninitialized {
		return nil, errors.WrapFatal(errors.ErrSpoolFileExists, "TempFileManager", "CreateOutputStream", "create spool file")
	}

	dir, err := m.strategy.SpoolDirectory()
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "cos*.tmp")
	if err != nil {
		return nil, errors.WrapFatal(err, "TempFileManager", "CreateOutputStream", "create spool file")
	}

	out := &spoolWriter{file: f, buf: bufio.NewWriterSize(f, m.strategy.config.BufferSize)}
	out.w = out.buf
	if cipherName := m.strategy.config.SpoolCipher; cipherName != "" {
		if m.ciphers == nil {
			m.ciphers, err = NewCipherPair(cipherName)
		}
		if err == nil {
			out.enc, err = m.ciphers.EncryptWriter(out.buf)
		}
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, errors.WrapFatal(err, "TempFileManager", "CreateOutputStream", "set up spool cipher")
		}
		out.w = out.enc
	}

	m.path = f.Name()
	m.out = out
	m.state = StateWriting
	m.strategy.logger.Debug("Created spool file", "path", m.path)
	return out, nil
}

// Finalize flushes and closes the spool file so it can be read. Calling it
// again is a no-op.
func (m *TempFileManager) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFinalized:
		return nil
	case StateWriting:
	case StateDisposed:
		return errors.WrapFatal(errors.ErrSpoolFileDisposed, "TempFileManager", "Finalize", "finalize spool file")
	default:
		return errors.WrapFatal(fmt.Errorf("no spool file in state %s", m.state),
			"TempFileManager", "Finalize", "finalize spool file")
	}

	out := m.out
	m.out = nil
	m.written = out.n
	m.state = StateFinalized
	if err := out.Close(); err != nil {
		return errors.WrapFatal(err, "TempFileManager", "Finalize", "close spool file")
	}
	m.strategy.metrics.RecordSpoolCreated(m.written)
	return nil
}

// newStreamCache returns a fresh view over the finalized file
func (m *TempFileManager) newStreamCache() (*FileInputStreamCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateFinalized {
		return nil, errors.WrapFatal(fmt.Errorf("%w: state %s", errors.ErrSpoolFileDisposed, m.state),
			"TempFileManager", "newStreamCache", "open spool file")
	}
	c := &FileInputStreamCache{
		manager: m,
		path:    m.path,
		ciphers: m.ciphers,
		length:  m.written,
		bufSize: m.strategy.config.BufferSize,
	}
	m.caches = append(m.caches, c)
	return c, nil
}

// release drops one holder and disposes of the file when none remain
func (m *TempFileManager) release() {
	m.mu.Lock()
	m.exchanges--
	if m.exchanges > 0 || m.state == StateDisposed {
		m.mu.Unlock()
		return
	}
	m.exchanges = 0
	caches := m.caches
	out := m.out
	path := m.path
	finalized := m.state == StateFinalized
	m.caches = nil
	m.out = nil
	m.state = StateDisposed
	m.mu.Unlock()

	m.dispose(caches, out, path, finalized)
}

func (m *TempFileManager) dispose(caches []*FileInputStreamCache, out *spoolWriter, path string, finalized bool) {
	logger := m.strategy.logger
	for _, c := range caches {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close spool file reader", "path", path, "error", err)
		}
	}
	if out != nil {
		if err := out.Close(); err != nil {
			logger.Warn("Failed to close spool file writer", "path", path, "error", err)
		}
	}
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("Failed to delete spool file", "path", path, "error", err)
		return
	}
	if finalized {
		m.strategy.metrics.RecordSpoolDeleted()
	}
	logger.Debug("Deleted spool file", "path", path)
}

// spoolWriter chains optional encryption, buffering and the file itself.
type spoolWriter struct {
	w    io.Writer
	enc  io.WriteCloser
	buf  *bufio.Writer
	file *os.File
	n    int64
}

func (s *spoolWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.n += int64(n)
	return n, err
}

func (s *spoolWriter) Close() error {
	var firstErr error
	if s.enc != nil {
		firstErr = s.enc.Close()
	}
	if err := s.buf.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
