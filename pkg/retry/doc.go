// Package retry provides exponential backoff for transient failures.
//
// It is used where StreamKit talks to something outside the process and a
// short retry is cheaper than failing the whole operation: connecting to NATS,
// updating a stored watermark, and retrying a failed fetch inside a single poll
// tick when the poll strategy asks for it.
//
// Basic use:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately.
package retry
