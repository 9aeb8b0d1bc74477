// Package worker provides a generic, bounded worker pool.
//
// The pool runs a fixed number of goroutines that take work items of type T
// from a buffered queue. It is the executor behind asynchronous batch
// processing: the polling goroutine hands exchanges to the pool and moves on.
//
// Two submit flavours exist. Submit never blocks and reports ErrQueueFull when
// the queue is at capacity. SubmitWait blocks until there is room or the
// context is done, which gives callers backpressure instead of dropped work.
//
// Statistics are always tracked with atomics. Prometheus metrics are optional
// and enabled with WithMetricsRegistry:
//
//	pool := worker.NewPool(4, 64, process,
//	    worker.WithMetricsRegistry[*exchange.Exchange](registry, "orders_async"),
//	)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// A processor that panics is counted as failed; the worker keeps running.
package worker
