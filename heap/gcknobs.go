package heap

// maybeCollect triggers a cycle once the block registry has grown past
// the configured growth threshold, mirroring GOGC's role for the real
// runtime: a cheap counter check on the allocation slow path rather than
// a background monitor.
func (h *Heap[H]) maybeCollect(driver *Mutator[H]) {
	h.mu.Lock()
	grown := h.blocks.Len() > h.threshold
	h.mu.Unlock()
	if grown {
		h.collect(driver)
	}
}

// Collect forces a collection cycle, choosing an arbitrary registered
// mutator as the driver. If no mutator is registered there is nothing to
// collect and Collect is a no-op. Most callers should prefer
// Mutator.Collect, which fixes the driver to the calling mutator; Heap.Collect
// exists for callers (tests, diagnostics) that only hold the heap.
func (h *Heap[H]) Collect() {
	h.mu.Lock()
	var driver *Mutator[H]
	for m := range h.mutators {
		driver = m
		break
	}
	h.mu.Unlock()
	if driver != nil {
		h.collect(driver)
	}
}
