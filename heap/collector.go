package heap

import (
	"runtime"
	"sort"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

// gcState is the heap's stop-the-world request/acknowledge protocol:
// a mutex-guarded "a cycle is in progress" flag paired with a sync.Cond, the
// same primitive sync.Cond's own doc comment studies ("wait in a loop,
// holding L, until the condition is true"). spec.md §9 leaves the exact
// mechanism as an open question and suggests this shape; it is what
// Mutator.SafePointWith parks on and what collect resets on the way out.
type gcState struct {
	mu           sync.Mutex
	cond         *sync.Cond
	running      bool
	cycles       uint64
	lastDuration time.Duration
}

// waitForCycle blocks while a collection cycle is in progress. Called by
// SafePointWith after f returns, so that a mutator only resumes mutating
// once any relocations the cycle performed are complete and every root
// it holds reflects post-collection addresses.
func (h *Heap[H]) waitForCycle() {
	h.gc.mu.Lock()
	for h.gc.running {
		h.gc.cond.Wait()
	}
	h.gc.mu.Unlock()
}

// collect runs one full stop-the-world cycle with driver acting as the
// collector. Every other registered mutator is expected to reach a safe
// point (via SafePoint/SafePointWith) on its own; collect spin-waits for
// that rather than forcing preemption, since this module has no way to
// interrupt a goroutine that never calls back in.
func (h *Heap[H]) collect(driver *Mutator[H]) {
	h.gc.mu.Lock()
	if h.gc.running {
		h.gc.mu.Unlock()
		return
	}
	h.gc.running = true
	h.gc.mu.Unlock()

	start := time.Now()
	h.logger.Info("collection requested", zap.Uint64("heap_id", h.id))

	h.mu.Lock()
	var others []*Mutator[H]
	for m := range h.mutators {
		if m != driver {
			others = append(others, m)
		}
	}
	h.mu.Unlock()

	for _, m := range others {
		for !m.atSafePoint.Load() {
			runtime.Gosched()
		}
	}
	h.logger.Info("world stopped", zap.Int("other_mutators", len(others)))

	allMutators := append(others, driver)
	blocks := h.snapshotBlocks(allMutators)
	sorted := sortedByBase(blocks)

	for _, b := range blocks {
		b.trace(func(hdr *objectHeader, _ unsafe.Pointer) {
			hdr.flags = 0
			hdr.forward = nil
		})
	}

	pinnedBlocks := h.markPinned(sorted, allMutators)
	h.markReachable(sorted, allMutators)
	reclaimed, bytesLive := h.sweepAndCompact(blocks, pinnedBlocks, allMutators)
	h.rewriteRoots(allMutators)

	h.gc.mu.Lock()
	h.gc.running = false
	h.gc.cycles++
	h.gc.lastDuration = time.Since(start)
	h.gc.cond.Broadcast()
	h.gc.mu.Unlock()

	h.logger.Info("collection resumed",
		zap.Duration("duration", h.gc.lastDuration),
		zap.Int("blocks_reclaimed", reclaimed),
		zap.Uintptr("bytes_live", bytesLive),
	)
}

// snapshotBlocks gathers every block the collector must trace: the
// registry plus each live mutator's current allocator block.
func (h *Heap[H]) snapshotBlocks(mutators []*Mutator[H]) []*Block[H] {
	h.mu.Lock()
	blocks := h.blocks.Blocks()
	h.mu.Unlock()
	blocks = append(blocks, h.preAlloc.block)
	for _, m := range mutators {
		blocks = append(blocks, m.allocator)
	}
	return blocks
}

// rootStackSlots returns the address of every StackRoot slot in every
// batch of every mutator, for rewriteRoots to update in place.
func (h *Heap[H]) rootStackSlots(mutators []*Mutator[H]) []*unsafe.Pointer {
	var slots []*unsafe.Pointer
	for _, m := range mutators {
		for _, batch := range m.stackRootBatches {
			for i := range batch {
				slots = append(slots, batch[i].rootSlotAddr())
			}
		}
	}
	return slots
}

// rootAddrs returns every live UnsafeRef address reachable as a root:
// every StackRoot in every batch, every PinnedStackRoot, and the heap's
// pinned-root multiset, per spec.md §4.4 step 3.
func (h *Heap[H]) rootAddrs(mutators []*Mutator[H]) []unsafe.Pointer {
	var addrs []unsafe.Pointer
	for _, m := range mutators {
		for _, batch := range m.stackRootBatches {
			for i := range batch {
				if ref := batch[i].Get(); ref.valid() {
					addrs = append(addrs, ref.addr)
				}
			}
		}
		for _, ref := range m.pinnedStackRoots {
			addrs = append(addrs, ref.addr)
		}
	}
	h.mu.Lock()
	for addr := range h.pinned {
		addrs = append(addrs, addr)
	}
	h.mu.Unlock()
	return addrs
}

// pinnedRootAddrs returns just the stack-pinned and heap-pinned
// addresses (not plain StackRoots), the seed set for pin propagation.
func (h *Heap[H]) pinnedRootAddrs(mutators []*Mutator[H]) []unsafe.Pointer {
	var addrs []unsafe.Pointer
	for _, m := range mutators {
		for _, ref := range m.pinnedStackRoots {
			addrs = append(addrs, ref.addr)
		}
	}
	h.mu.Lock()
	for addr := range h.pinned {
		addrs = append(addrs, addr)
	}
	h.mu.Unlock()
	return addrs
}

// sortedByBase orders blocks by base address, the precondition ownsAny
// needs for its binary search.
func sortedByBase[H any](blocks []*Block[H]) []*Block[H] {
	sorted := append([]*Block[H](nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool {
		return uintptr(sorted[i].base()) < uintptr(sorted[j].base())
	})
	return sorted
}

// walk runs a worklist trace from seeds, setting bit on every reachable
// object's header exactly once. Every traced address is checked against
// blocks (sorted by sortedByBase) via ownsAny before being dereferenced:
// a Trace function that yields an address outside every known block is a
// corrupt descriptor, not a relocation this module can recover from.
func (h *Heap[H]) walk(blocks []*Block[H], seeds []unsafe.Pointer, bit uint32) {
	worklist := append([]unsafe.Pointer(nil), seeds...)
	for len(worklist) > 0 {
		addr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if addr == nil {
			continue
		}
		if _, ok := ownsAny(blocks, addr); !ok {
			h.fatal("traced reference at %p does not belong to any known block", addr)
		}
		hdr := headerOf(addr)
		if hdr.flags&bit != 0 {
			continue
		}
		hdr.flags |= bit
		hdr.descriptor.Trace(addr, func(field *unsafe.Pointer) {
			if *field != nil {
				worklist = append(worklist, *field)
			}
		})
	}
}

// markPinned propagates flagPinned from every pinned root (stack-pinned
// or heap-pinned) through the object graph, then returns the set of
// blocks that hold at least one pinned-reachable object: per spec.md
// §4.4's tie-break, an object reachable via both a pinned and
// non-pinned path is pinned, and per §9's adopted oversize policy those
// blocks are never compacted — this implementation treats any block
// holding a pinned survivor as retained-in-place for the whole cycle,
// rather than defragmenting around individual pinned objects within it.
func (h *Heap[H]) markPinned(blocks []*Block[H], mutators []*Mutator[H]) map[*Block[H]]bool {
	h.walk(blocks, h.pinnedRootAddrs(mutators), flagPinned)

	retained := map[*Block[H]]bool{h.preAlloc.block: true}
	for _, b := range blocks {
		if b.oversize {
			retained[b] = true
			continue
		}
		b.trace(func(hdr *objectHeader, _ unsafe.Pointer) {
			if hdr.flags&flagPinned != 0 {
				retained[b] = true
			}
		})
	}
	return retained
}

// markReachable propagates flagMarked from every root (pinned or not).
func (h *Heap[H]) markReachable(blocks []*Block[H], mutators []*Mutator[H]) {
	h.walk(blocks, h.rootAddrs(mutators), flagMarked)
}

// sweepAndCompact evacuates reachable, non-pinned objects out of blocks
// that are not retained, installs forwarding pointers in their old
// headers, and frees every block left with nothing live in it. Retained
// blocks are kept as-is (their unreachable objects are simply dead space
// until a future cycle, per Block's no-mid-life-shrink invariant).
func (h *Heap[H]) sweepAndCompact(blocks []*Block[H], retained map[*Block[H]]bool, mutators []*Mutator[H]) (int, uintptr) {
	var dest *Block[H]
	destRegistry := newBlockList[H]()
	reclaimed := 0
	var bytesLive uintptr

	ensureDest := func(need uintptr) *Block[H] {
		if dest != nil && dest.cursor+need <= dest.capacity {
			return dest
		}
		capacity := h.blockSize
		if need > capacity {
			capacity = need
		}
		nb, err := h.acquireBlock(capacity)
		if err != nil {
			h.fatal("out of memory compacting live objects: %v", err)
		}
		if dest != nil {
			destRegistry.PushFront(dest)
		}
		dest = nb
		return dest
	}

	// Evacuated blocks are not returned to the pool until every rewrite
	// pass below has run: a forwarded object's old header is read during
	// field rewriting, and handing its region back to acquireBlock early
	// would let ensureDest recycle it as a fresh dest block mid-cycle,
	// overwriting the very forwarding pointers the rewrite pass needs.
	var freed [][]byte

	for _, b := range blocks {
		if retained[b] {
			b.trace(func(hdr *objectHeader, _ unsafe.Pointer) {
				if hdr.flags&flagMarked != 0 {
					bytesLive += alignUp(headerSize+hdr.descriptor.Size, maxAlign)
				}
			})
			continue
		}

		b.trace(func(hdr *objectHeader, payload unsafe.Pointer) {
			if hdr.flags&flagMarked == 0 {
				return
			}
			need := alignUp(headerSize+hdr.descriptor.Size, maxAlign)
			target := ensureDest(need)
			newPayload := target.tryAlloc(hdr.descriptor.Size, hdr.descriptor)
			if newPayload == nil {
				target = ensureDest(need)
				newPayload = target.tryAlloc(hdr.descriptor.Size, hdr.descriptor)
			}
			copyObjectPayload(newPayload, payload, hdr.descriptor.Size)
			hdr.flags |= flagForwarded
			hdr.forward = newPayload
			bytesLive += need
		})
		freed = append(freed, b.region)
		reclaimed++
	}

	if dest != nil {
		destRegistry.PushFront(dest)
	}

	// Rewrite fields of every surviving object (both retained-in-place
	// and freshly compacted) to follow forwarding pointers installed
	// above.
	for _, b := range blocks {
		if !retained[b] {
			continue
		}
		b.trace(func(hdr *objectHeader, payload unsafe.Pointer) {
			if hdr.flags&flagMarked != 0 {
				hdr.descriptor.Trace(payload, rewriteField)
			}
		})
	}
	for e := destRegistry.Front(); e != nil; e = e.Next() {
		e.block.trace(func(hdr *objectHeader, payload unsafe.Pointer) {
			hdr.descriptor.Trace(payload, rewriteField)
		})
	}

	// Safe to recycle now: the two rewrite passes above have run. collect's
	// subsequent rewriteRoots call still reads forwarded objects' old
	// headers, but nothing below takes a region from the pool (the fresh
	// allocator blocks come from newBlock), so those headers are intact
	// when it runs.
	for _, region := range freed {
		h.pool.put(region)
	}

	liveAllocators := make(map[*Block[H]]bool, len(mutators))
	for _, m := range mutators {
		liveAllocators[m.allocator] = true
	}

	h.mu.Lock()
	newBlocks := newBlockList[H]()
	for b := range retained {
		if b == h.preAlloc.block || liveAllocators[b] {
			continue
		}
		newBlocks.PushFront(b)
	}
	for e := destRegistry.Front(); e != nil; e = e.Next() {
		newBlocks.PushFront(e.block)
	}
	h.blocks = newBlocks
	h.mu.Unlock()

	for _, m := range mutators {
		if retained[m.allocator] {
			continue
		}
		fresh, err := newBlock(h, h.blockSize)
		if err != nil {
			h.fatal("out of memory installing a post-collection allocator block: %v", err)
		}
		m.allocator = fresh
	}

	return reclaimed, bytesLive
}

// rewriteRoots follows forwarding pointers installed during compaction
// for every mutable StackRoot slot, so that Get() returns the
// post-collection address of the same logical object. PinnedStackRoot
// and PinnedRoot values need no rewriting: their referents are always
// in the pinned (retained) set and therefore never move.
func (h *Heap[H]) rewriteRoots(mutators []*Mutator[H]) {
	for _, slot := range h.rootStackSlots(mutators) {
		rewriteField(slot)
	}
}

func rewriteField(field *unsafe.Pointer) {
	addr := *field
	if addr == nil {
		return
	}
	hdr := headerOf(addr)
	if hdr.flags&flagForwarded != 0 {
		*field = hdr.forward
	}
}

func (h *Heap[H]) acquireBlock(capacity uintptr) (*Block[H], error) {
	if region, ok := h.pool.get(capacity); ok {
		return &Block[H]{heap: h, region: region, capacity: uintptr(len(region))}, nil
	}
	return newBlock(h, capacity)
}

func copyObjectPayload(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(dst), size)
	srcSlice := unsafe.Slice((*byte)(src), size)
	copy(dstSlice, srcSlice)
}
