package pebble

import (
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/pebble"

	"github.com/c360/streamkit/errors"
)

// Store is a thin wrapper around a Pebble database
type Store struct {
	db   *pebble.DB
	path string
}

// StoreOptions configures Open
type StoreOptions struct {
	Path         string
	CacheSize    int64
	MaxOpenFiles int
}

// Open opens or creates the database at opts.Path
func Open(opts StoreOptions) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "pebble.Store", "Open", "path check")
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "pebble.Store", "Open", "create directory")
	}

	pebbleOpts := &pebble.Options{MaxOpenFiles: opts.MaxOpenFiles}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		pebbleOpts.Cache = cache
	}

	db, err := pebble.Open(opts.Path, pebbleOpts)
	if err != nil {
		return nil, errors.WrapFatal(err, "pebble.Store", "Open", "open database")
	}
	return &Store{db: db, path: opts.Path}, nil
}

// Path returns the database directory
func (s *Store) Path() string { return s.path }

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes a key
func (s *Store) Put(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return errors.WrapTransient(err, "pebble.Store", "Put", "write key")
	}
	return nil
}

// Get reads a key. The returned slice is a copy.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapTransient(err, "pebble.Store", "Get", "read key")
	}
	defer closer.Close()
	return bytes.Clone(value), true, nil
}

// KV is one key/value pair read from a Store
type KV struct {
	Key   []byte
	Value []byte
}

// Scan returns up to limit pairs in [lower, upper). A limit of zero or less
// returns all of them.
func (s *Store) Scan(lower, upper []byte, limit int) ([]KV, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.WrapTransient(err, "pebble.Store", "Scan", "create iterator")
	}

	var out []KV
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, KV{Key: bytes.Clone(iter.Key()), Value: bytes.Clone(iter.Value())})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return nil, errors.WrapTransient(err, "pebble.Store", "Scan", "iterate")
	}
	if err := iter.Close(); err != nil {
		return nil, errors.WrapTransient(err, "pebble.Store", "Scan", "close iterator")
	}
	return out, nil
}

// Apply commits the operations recorded by fn in one synced batch
func (s *Store) Apply(fn func(b *pebble.Batch) error) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := fn(batch); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.WrapTransient(err, "pebble.Store", "Apply", "commit batch")
	}
	return nil
}

// prefixEnd returns the smallest key greater than every key with prefix
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

var _ io.Closer = (*Store)(nil)
