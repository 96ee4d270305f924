package heap

import (
	"sync/atomic"
	"unsafe"
)

// Mutator is a per-thread handle providing bump allocation, the LIFO
// stack of stack-root batches, and the LIFO stack of pinned stack roots.
// It registers itself with the heap at construction and unregisters at
// Close. A Mutator must only be used from the goroutine that created it.
// The collector (running as another registered mutator acting as driver)
// reads this mutator's root stacks and may replace its allocator block,
// and does so only while this mutator reports itself at a safe point.
type Mutator[H any] struct {
	heap *Heap[H]

	allocator *Block[H]

	stackRootBatches [][]StackRoot[H]
	pinnedStackRoots []UnsafeRef[H]

	atSafePoint atomic.Bool
	closed      bool
}

// NewMutator creates a mutator for a heap and registers it. Creating a
// mutator is not a zero-cost operation; create one per thread and keep
// it around.
func NewMutator[H any](h *Heap[H]) (*Mutator[H], error) {
	block, err := newBlock(h, h.blockSize)
	if err != nil {
		return nil, err
	}
	m := &Mutator[H]{heap: h, allocator: block}
	h.registerMutator(m)
	return m, nil
}

// Close transfers the current allocator block back to the heap and
// unregisters the mutator. A Mutator must not be used after Close.
func (m *Mutator[H]) Close() {
	m.heap.addBlock(m.allocator)
	m.allocator = nil
	m.heap.unregisterMutator(m)
	m.closed = true
}

// SafePoint blocks until any currently-requested collection cycle
// completes; if none is requested it returns immediately.
func (m *Mutator[H]) SafePoint() {
	m.SafePointWith(func() {})
}

// SafePointWith enters the safe-point state before invoking f and
// restores it after. f runs in parallel with any ongoing collection
// cycle, so this is how a mutator wraps a blocking external call (file
// I/O, a syscall) without holding up collection. The caller must ensure
// f performs no allocation, no mutation of heap objects, and no reads of
// non-pinned references: the collector may relocate non-pinned objects
// while f runs.
func (m *Mutator[H]) SafePointWith(f func()) {
	m.atSafePoint.Store(true)
	f()
	m.heap.waitForCycle()
	m.atSafePoint.Store(false)
}

// Alloc allocates size bytes for an object of the given descriptor type,
// returning uninitialized memory the caller must fully initialize before
// any subsequent safe point.
func (m *Mutator[H]) Alloc(descriptor *Descriptor) UnsafeRef[H] {
	size := descriptor.Size
	var payload unsafe.Pointer
	if size > m.heap.blockSize {
		payload = m.allocLarge(size, descriptor)
	} else if p := m.allocator.tryAlloc(size, descriptor); p != nil {
		payload = p
	} else {
		payload = m.allocSmallSlow(size, descriptor)
	}
	return UnsafeRef[H]{addr: payload, origin: m.heap.id}
}

// allocLarge creates an ad-hoc block sized exactly for this one object
// and hands it directly to the heap. Per spec.md §9's adopted policy,
// oversize blocks are never moved or compacted: they are implicitly
// pinned.
func (m *Mutator[H]) allocLarge(size uintptr, descriptor *Descriptor) unsafe.Pointer {
	block, err := newBlock(m.heap, headerSize+size)
	if err != nil {
		m.heap.fatal("out of memory allocating oversize object: %v", err)
	}
	block.oversize = true
	payload := block.tryAlloc(size, descriptor)
	if payload == nil {
		m.heap.fatal("oversize block too small for the object it was sized for")
	}
	m.heap.addBlock(block)
	return payload
}

// allocSmallSlow retires the current allocator block to the heap and
// installs a fresh one, then allocates from it. The fresh block is
// installed as m.allocator before maybeCollect runs: a collection
// triggered from inside this call snapshots every mutator's current
// .allocator as well as the heap's general registry, and the retired
// block has already been handed to that registry above — leaving
// m.allocator pointed at it a moment longer would hand the collector the
// same block twice. maybeCollect may itself replace m.allocator again
// (sweepAndCompact installs a fresh block for any mutator whose
// allocator wasn't retained), so the final tryAlloc reads m.allocator
// back rather than closing over the now possibly-stale local variable.
func (m *Mutator[H]) allocSmallSlow(size uintptr, descriptor *Descriptor) unsafe.Pointer {
	old := m.allocator
	m.heap.addBlock(old)

	next, err := m.heap.acquireBlock(m.heap.blockSize)
	if err != nil {
		m.heap.fatal("out of memory allocating a new block: %v", err)
	}
	m.allocator = next

	m.heap.maybeCollect(m)

	payload := m.allocator.tryAlloc(size, descriptor)
	if payload == nil {
		m.heap.fatal("fresh block too small for an object that should have fit")
	}
	return payload
}

// WithStackRoots allocates a batch of n StackRoots initialized to undef,
// pushes it onto the mutator's batch stack so the collector can see it,
// invokes f with the batch, and pops the entry on return or panic.
func WithStackRoots[H any, R any](m *Mutator[H], n int, f func(roots []StackRoot[H]) R) R {
	undef := m.heap.preAlloc.Undef()
	batch := make([]StackRoot[H], n)
	for i := range batch {
		batch[i] = StackRoot[H]{ref: undef}
	}

	m.stackRootBatches = append(m.stackRootBatches, batch)
	defer func() {
		m.stackRootBatches = m.stackRootBatches[:len(m.stackRootBatches)-1]
	}()

	return f(batch)
}

// WithPinnedStackRoot pushes object onto the mutator's pinned-stack
// stack, constructs an immutable PinnedStackRoot bound to it, invokes f,
// and pops the entry on return or panic. While held, the referent cannot
// be relocated by the collector.
func WithPinnedStackRoot[H any, R any](m *Mutator[H], object BorrowRef[H], f func(root *PinnedStackRoot[H]) R) R {
	ref := object.borrowRef()
	m.heap.checkOrigin(ref)

	m.pinnedStackRoots = append(m.pinnedStackRoots, ref)
	defer func() {
		m.pinnedStackRoots = m.pinnedStackRoots[:len(m.pinnedStackRoots)-1]
	}()

	root := &PinnedStackRoot[H]{ref: ref}
	return f(root)
}

// Collect forces a collection cycle, with this mutator acting as the
// driver (the thread that performs the stop-the-world work while every
// other registered mutator waits at its next safe point).
func (m *Mutator[H]) Collect() {
	m.heap.collect(m)
}
