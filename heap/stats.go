package heap

// Stats is a point-in-time snapshot of a heap's bookkeeping counters,
// filled in under the heap's own lock. It is a diagnostic aid, not part
// of the collection algorithm itself.
type Stats struct {
	// LiveBlocks is the number of blocks currently in the heap's general
	// registry (retired blocks not held by any mutator as its current
	// allocator).
	LiveBlocks int

	// Mutators is the number of currently-registered mutators.
	Mutators int

	// PinnedRoots is the number of distinct addresses held by at least
	// one PinnedRoot.
	PinnedRoots int

	// Collections is the number of completed stop-the-world cycles.
	Collections uint64

	// LastCollectionNanos is the wall-clock duration of the most recent
	// completed cycle, in nanoseconds, or zero if none has run.
	LastCollectionNanos int64
}

// Stats returns a snapshot of the heap's current bookkeeping counters.
func (h *Heap[H]) Stats() Stats {
	h.mu.Lock()
	s := Stats{
		LiveBlocks:  h.blocks.Len(),
		Mutators:    len(h.mutators),
		PinnedRoots: len(h.pinned),
	}
	h.mu.Unlock()

	h.gc.mu.Lock()
	s.Collections = h.gc.cycles
	s.LastCollectionNanos = h.gc.lastDuration.Nanoseconds()
	h.gc.mu.Unlock()

	return s
}
