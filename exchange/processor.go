package exchange

import (
	"context"
	"log/slog"
)

// Processor processes an exchange synchronously.
type Processor interface {
	Process(ctx context.Context, ex *Exchange) error
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, ex *Exchange) error

// Process calls f(ctx, ex)
func (f ProcessorFunc) Process(ctx context.Context, ex *Exchange) error {
	return f(ctx, ex)
}

// Callback is invoked once asynchronous processing finished.
type Callback func(err error)

// AsyncProcessor processes an exchange and reports completion through a callback.
// The callback must be called exactly once.
type AsyncProcessor interface {
	ProcessAsync(ctx context.Context, ex *Exchange, done Callback)
}

// AsAsync adapts a Processor. If p already implements AsyncProcessor it is
// returned unchanged, otherwise processing runs on the caller goroutine.
func AsAsync(p Processor) AsyncProcessor {
	if ap, ok := p.(AsyncProcessor); ok {
		return ap
	}
	return syncAdapter{p}
}

type syncAdapter struct{ p Processor }

func (s syncAdapter) ProcessAsync(ctx context.Context, ex *Exchange, done Callback) {
	done(s.p.Process(ctx, ex))
}

// ExceptionHandler receives failures that must not abort the caller.
type ExceptionHandler interface {
	HandleException(msg string, ex *Exchange, err error)
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler
type ExceptionHandlerFunc func(msg string, ex *Exchange, err error)

// HandleException calls f
func (f ExceptionHandlerFunc) HandleException(msg string, ex *Exchange, err error) {
	f(msg, ex, err)
}

// LoggingExceptionHandler logs failures at warn level.
type LoggingExceptionHandler struct {
	Logger *slog.Logger
}

// HandleException logs the failure
func (h LoggingExceptionHandler) HandleException(msg string, ex *Exchange, err error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if ex != nil {
		logger.Warn(msg, "exchange_id", ex.ID(), "error", err)
		return
	}
	logger.Warn(msg, "error", err)
}
