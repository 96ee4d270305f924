package heap

import "fmt"

// diagnosticSummary renders a short one-line snapshot of the heap's
// bookkeeping state, attached to every fatal log line. This module has
// no goroutine stack-walking capability of its own — that belongs to
// the Go runtime, not this library — so the summary is limited to the
// counters the heap already tracks.
func (h *Heap[H]) diagnosticSummary() string {
	h.mu.Lock()
	blocks := h.blocks.Len()
	mutators := len(h.mutators)
	pinned := len(h.pinned)
	h.mu.Unlock()

	h.gc.mu.Lock()
	cycles := h.gc.cycles
	running := h.gc.running
	h.gc.mu.Unlock()

	return fmt.Sprintf(
		"blocks=%d mutators=%d pinned_roots=%d collections=%d collection_running=%t",
		blocks, mutators, pinned, cycles, running,
	)
}
