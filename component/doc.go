// Package component defines the lifecycle and health contracts shared by
// StreamKit consumers.
//
// Every long-running piece (scheduled poll consumers, timer consumers) follows
// the same lifecycle pattern:
//
//   - Initialize() error                 // validate and prepare, no goroutines
//   - Start(ctx context.Context) error   // start work, ctx cancels it
//   - Stop(timeout time.Duration) error  // graceful shutdown with a deadline
//
// The component never stores the context it was started with beyond the
// goroutines it launches. Health reports whether the component is running and,
// for pollers, whether the first poll completed (readiness).
//
// Dependencies carries the runtime collaborators (logger, metrics registry,
// NATS client). Any of them may be nil; components fall back to slog.Default
// and skip metrics.
package component
