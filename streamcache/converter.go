package streamcache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
)

// Convert turns body into a StreamCache owned by ex.
//
// Byte slices, strings and the unread part of a *bytes.Buffer or
// *bytes.Reader are wrapped in memory without copying. Any other io.Reader is drained, and closed if it is an io.Closer;
// it spools to disk when larger than the threshold.
func (s *Strategy) Convert(ex *exchange.Exchange, body any) (StreamCache, error) {
	var cache StreamCache
	switch v := body.(type) {
	case StreamCache:
		return v, nil
	case []byte:
		cache = NewByteArrayInputStreamCache(v)
	case string:
		cache = NewByteArrayInputStreamCache([]byte(v))
	case *bytes.Buffer:
		cache = NewByteArrayInputStreamCache(v.Bytes())
	case *bytes.Reader:
		cache = NewReaderInputStreamCache(v)
	case io.Reader:
		var err error
		cache, err = s.drain(ex, v)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: cannot cache body of type %T", errors.ErrInvalidData, body),
			"Strategy", "Convert", "convert body")
	}
	s.record(cache)
	return cache, nil
}

func (s *Strategy) drain(ex *exchange.Exchange, src io.Reader) (StreamCache, error) {
	if closer, ok := src.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				s.logger.Warn("Failed to close cached source", "error", err)
			}
		}()
	}

	cos, err := s.NewCachedOutputStream(ex)
	if err != nil {
		return nil, err
	}
	if _, err := io.CopyBuffer(cos, src, make([]byte, s.config.BufferSize)); err != nil {
		cos.Close()
		return nil, errors.Wrap(err, "Strategy", "Convert", "drain body")
	}
	return cos.NewStreamCache()
}

// CacheBody replaces the exchange body with a StreamCache when it is a
// stream. Other bodies are left alone.
func (s *Strategy) CacheBody(ex *exchange.Exchange) error {
	if _, ok := ex.Body().(io.Reader); !ok {
		return nil
	}
	cache, err := s.Convert(ex, ex.Body())
	if err != nil {
		return err
	}
	ex.SetBody(cache)
	return nil
}
