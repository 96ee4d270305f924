package heap

import (
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

// Heap owns all blocks, the pre-allocated set, the registry of live
// mutators, and a multiset of pinned objects. The H type parameter
// brands every reference drawn from this heap; see DESIGN.md's "Heap
// identity / brand" note for why Go generics only get this halfway
// there and why UnsafeRef also carries a runtime-checked heap id.
type Heap[H any] struct {
	id        uint64
	logger    *zap.Logger
	memSource MemorySource
	blockSize uintptr
	threshold int

	preAlloc PreAlloc[H]

	mu        sync.Mutex
	blocks    *blockList[H]
	mutators  map[*Mutator[H]]struct{}
	pinned    map[unsafe.Pointer]uint64
	pool      *blockPool

	gc gcState
}

// With is the sole entry point for constructing a heap: it constructs
// the heap, initializes pre-allocated objects, and invokes f with a
// branded reference whose lifetime is bounded to the call. The heap is
// destroyed when f returns or panics: every registered mutator must
// already have been closed by then, or destruction fatals (a live
// mutator outliving its heap is a use-after-free waiting to happen).
//
// Callers supply H as a marker type unique to this call site, e.g.:
//
//	type myHeap struct{}
//	result, err := heap.With(nil, func(h *heap.Heap[myHeap]) any { ...; return nil })
func With[H any, R any](opts []Option, f func(h *Heap[H]) R) (R, error) {
	var zero R
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Heap[H]{
		id:        allocHeapID(),
		logger:    cfg.logger,
		memSource: cfg.memSource,
		blockSize: cfg.blockSize,
		threshold: cfg.growthThreshold,
		blocks:    newBlockList[H](),
		mutators:  make(map[*Mutator[H]]struct{}),
		pinned:    make(map[unsafe.Pointer]uint64),
		pool:      newBlockPool(),
	}
	h.gc.cond = sync.NewCond(&h.gc.mu)

	preAlloc, err := initPreAlloc(h)
	if err != nil {
		return zero, err
	}
	h.preAlloc = preAlloc

	defer h.destroy()
	return f(h), nil
}

// PreAlloc returns the heap's pre-allocated singleton set.
func (h *Heap[H]) PreAlloc() *PreAlloc[H] { return &h.preAlloc }

func (h *Heap[H]) checkOrigin(ref UnsafeRef[H]) {
	if ref.origin != h.id {
		h.fatal("reference belongs to a different heap (origin %d, this heap %d)", ref.origin, h.id)
	}
}

func (h *Heap[H]) addBlock(b *Block[H]) {
	h.mu.Lock()
	h.blocks.PushFront(b)
	h.mu.Unlock()
}

func (h *Heap[H]) registerMutator(m *Mutator[H]) {
	h.mu.Lock()
	h.mutators[m] = struct{}{}
	h.mu.Unlock()
}

func (h *Heap[H]) unregisterMutator(m *Mutator[H]) {
	h.mu.Lock()
	if _, ok := h.mutators[m]; !ok {
		h.mu.Unlock()
		h.fatal("use-after-close of mutator")
	}
	delete(h.mutators, m)
	h.mu.Unlock()
}

func (h *Heap[H]) retainPinnedRoot(ref UnsafeRef[H]) {
	h.mu.Lock()
	count := h.pinned[ref.addr]
	if count == ^uint64(0) {
		h.mu.Unlock()
		h.fatal("too many pinned roots for object at %p", ref.addr)
		return
	}
	h.pinned[ref.addr] = count + 1
	h.mu.Unlock()
}

func (h *Heap[H]) releasePinnedRoot(ref UnsafeRef[H]) {
	h.mu.Lock()
	count, ok := h.pinned[ref.addr]
	if !ok {
		h.mu.Unlock()
		h.fatal("use-after-close of pinned root at %p", ref.addr)
		return
	}
	if count == 1 {
		delete(h.pinned, ref.addr)
	} else {
		h.pinned[ref.addr] = count - 1
	}
	h.mu.Unlock()
}

// destroy reclaims every block and releases backing memory. It does not
// wait for mutators to detach: if any mutator is still registered it
// fatals instead. Called exactly once, by With, on normal return or panic.
func (h *Heap[H]) destroy() {
	h.mu.Lock()
	live := len(h.mutators)
	h.mu.Unlock()
	if live != 0 {
		h.fatal("heap destroyed with %d mutator(s) still attached", live)
	}

	for _, b := range h.blocks.Blocks() {
		_ = b.release()
	}
	_ = h.preAlloc.block.release()

	for capacity, stack := range h.pool.free {
		for _, region := range stack {
			_ = h.memSource.Release(region)
		}
		delete(h.pool.free, capacity)
	}
}
