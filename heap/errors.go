package heap

import (
	"fmt"

	"go.uber.org/zap"
)

// FatalError marks a violated invariant (programmer error, per spec.md
// §7): use-after-close of a mutator, a LIFO stack underflow, pinned-root
// count overflow, or a safe-point-with callback that could not have
// upheld its preconditions. These are not user-recoverable; fatal panics
// with a *FatalError and logs an Error-level line first so the cause is
// visible even if something further up the stack recovers the panic
// (which is documented, not supported, behaviour).
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string { return "icicle: fatal: " + e.Message }

func (h *Heap[H]) fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	h.logger.Error("fatal invariant violation",
		zap.Uint64("heap_id", h.id),
		zap.String("message", msg),
		zap.String("diagnostics", h.diagnosticSummary()),
	)
	panic(&FatalError{Message: msg})
}
