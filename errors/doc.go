// Package errors provides the error classification used across StreamKit.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input or configuration, do not retry) and Fatal (resources would leak or
// data would be corrupted, stop and surface to the caller).
//
// The stream cache and the polling consumers lean on the classes directly:
//
//   - A failed fetch during a poll is transient. The scheduler hands it to the
//     exception handler and tries again on the next tick.
//   - A failed spool file creation is fatal. It is returned to the caller and
//     never swallowed, since dropping it would corrupt message bodies.
//   - A failed spool file deletion is not an error at all from the caller's
//     point of view. It is logged and forgotten.
//
// # Wrapping
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// via Wrap, WrapTransient, WrapInvalid and WrapFatal:
//
//	if err := f.Sync(); err != nil {
//	    return errors.WrapFatal(err, "TempFileManager", "CreateOutputStream", "spool file sync")
//	}
//
// Classification survives further wrapping with fmt.Errorf("...: %w", err), so
// IsTransient, IsFatal and IsInvalid work anywhere up the call chain.
package errors
