// Package streamcache makes single-read byte streams re-readable.
//
// A body read from the network or a file can only be consumed once. The
// Strategy converts such a body into a StreamCache which can be reset, written
// out any number of times and copied for other exchanges.
//
// Small bodies stay in memory as a ByteArrayInputStreamCache. Once a body
// grows past the spool threshold, the CachedOutputStream that is draining it
// pages everything to a temp file in the spool directory, and readers get a
// FileInputStreamCache instead. When a spool cipher is configured the file is
// encrypted with a key that only lives in memory for as long as the file does.
//
// # Temp file lifecycle
//
// One TempFileManager owns one spool file and moves through
//
//	Uninitialized -> Writing -> Finalized -> Disposed
//
// Every exchange that holds a view of the file is registered with the manager
// and counted. The count goes down when the exchange's unit of work completes;
// when it reaches zero, open views are closed and the file is deleted, exactly
// once. Creating the file when no exchange is registered is refused, because
// nothing would ever delete it.
//
// Deletion failures are logged and swallowed. Creation failures are returned
// as fatal errors.
//
// # Usage
//
//	strategy, err := streamcache.NewStrategy(streamcache.StrategyDeps{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	cache, err := strategy.Convert(ex, resp.Body)
//	if err != nil {
//	    return err
//	}
//	ex.SetBody(cache)
//	defer ex.Done()
package streamcache
