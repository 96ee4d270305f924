package heap

// PinnedRoot is a heap-global, heap-refcounted pinning root usable
// across threads and frames: on construction it increments the heap's
// pinned multiset, on Close it decrements, removing the entry once the
// count reaches zero.
type PinnedRoot[H any] struct {
	heap *Heap[H]
	ref  UnsafeRef[H]
}

// NewPinnedRoot pins ref for the lifetime of the returned PinnedRoot.
// Fatal if object's pinned count would overflow (spec.md §3, §7).
func NewPinnedRoot[H any](h *Heap[H], ref BorrowRef[H]) *PinnedRoot[H] {
	r := ref.borrowRef()
	h.checkOrigin(r)
	h.retainPinnedRoot(r)
	return &PinnedRoot[H]{heap: h, ref: r}
}

// Clone increments the pinned count and returns a new PinnedRoot
// referencing the same object.
func (p *PinnedRoot[H]) Clone() *PinnedRoot[H] {
	p.heap.retainPinnedRoot(p.ref)
	return &PinnedRoot[H]{heap: p.heap, ref: p.ref}
}

// Get returns the pinned reference.
func (p *PinnedRoot[H]) Get() UnsafeRef[H] {
	return p.ref
}

func (p *PinnedRoot[H]) borrowRef() UnsafeRef[H] { return p.ref }

// Close decrements the pinned count, releasing the pin once it reaches
// zero. A PinnedRoot must not be used after Close.
func (p *PinnedRoot[H]) Close() {
	p.heap.releasePinnedRoot(p.ref)
}
