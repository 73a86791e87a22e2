// Package errors provides standardized error handling patterns for the node.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// Classification lets callers make retry and teardown decisions without
// matching on error strings, and integrates with Go's standard error
// handling: errors.Is(), errors.As() and wrapping chains all work through
// ClassifiedError.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	if closed {
//	    return errors.ErrSessionClosed
//	}
//
// Wrap errors with context for debugging:
//
//	if err := transport.Publish(subject, data); err != nil {
//	    return errors.WrapTransient(err, "Session", "Put", "publish sample")
//	}
//
// All wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Check classification where a retry or an abort has to be chosen:
//
//	if errors.IsTransient(err) {
//	    // back off and retry
//	} else if errors.IsFatal(err) {
//	    // tear down
//	}
//
// # Propagation policy
//
// Errors with a clear single caller (construction, Fetch, Get, Undeclare)
// are returned synchronously to that caller. Errors discovered inside
// background callbacks (a reply that cannot be extracted, a delivery
// handler closed mid-drain) have no pending call to return to; they are
// reported through slog and the metric counters instead.
package errors
