package heap

import (
	"sort"
	"unsafe"
)

// DefaultBlockSize is the compile-time default capacity for a mutator's
// allocator block, per spec.md §4.1.
const DefaultBlockSize = 32 * 1024

// Block is a contiguous, aligned region of raw memory owned by the heap;
// it supports linear bump allocation up to its capacity and is the unit
// of tracing and reclamation. The bump-allocation and ownership-search
// shape is grounded on the chunked arena in thebagchi/arena-go's
// BumpAllocator, adapted from a growable chunk list to a single
// fixed-capacity region per mutator.
type Block[H any] struct {
	heap     *Heap[H]
	region   []byte
	capacity uintptr
	cursor   uintptr
	oversize bool // true for ad-hoc blocks created by Mutator.allocLarge
}

// newBlock acquires a region of at least capacity bytes from the heap's
// MemorySource. Failure here is recoverable: heap/mutator construction
// is the only place that tolerates it before any objects exist.
func newBlock[H any](h *Heap[H], capacity uintptr) (*Block[H], error) {
	region, err := h.memSource.Acquire(capacity)
	if err != nil {
		return nil, err
	}
	return &Block[H]{
		heap:     h,
		region:   region,
		capacity: uintptr(len(region)),
	}, nil
}

// base returns the address of the first byte of the block's region.
func (b *Block[H]) base() unsafe.Pointer {
	return regionBase(b.region)
}

// tryAlloc rounds size up to maxAlign and, if there is room left in the
// block, advances the cursor and returns a pointer to the payload (past
// the object header, which tryAlloc also installs).
func (b *Block[H]) tryAlloc(size uintptr, descriptor *Descriptor) unsafe.Pointer {
	need := alignUp(headerSize+size, maxAlign)
	aligned := alignUp(b.cursor, maxAlign)
	if aligned+need > b.capacity {
		return nil
	}
	header := unsafe.Pointer(uintptr(b.base()) + aligned)
	*(*objectHeader)(header) = objectHeader{descriptor: descriptor}
	b.cursor = aligned + need
	return payloadOf(header)
}

// owns reports whether addr falls inside this block's region.
func (b *Block[H]) owns(addr unsafe.Pointer) bool {
	start := uintptr(b.base())
	return uintptr(addr) >= start && uintptr(addr) < start+b.capacity
}

// trace walks every laid-out object from the block's base to its
// cursor, invoking fn with each object's header and payload.
func (b *Block[H]) trace(fn func(header *objectHeader, payload unsafe.Pointer)) {
	offset := uintptr(0)
	for offset < b.cursor {
		offset = alignUp(offset, maxAlign)
		if offset >= b.cursor {
			break
		}
		headerPtr := unsafe.Pointer(uintptr(b.base()) + offset)
		header := (*objectHeader)(headerPtr)
		payload := payloadOf(headerPtr)
		fn(header, payload)
		offset += alignUp(headerSize+header.descriptor.Size, maxAlign)
	}
}

func (b *Block[H]) release() error {
	return b.heap.memSource.Release(b.region)
}

// ownsAny performs a binary search over a base-address-sorted slice of
// blocks, the same technique used by thebagchi/arena-go's
// BumpAllocator.Owns over a sorted chunk list.
func ownsAny[H any](blocks []*Block[H], addr unsafe.Pointer) (*Block[H], bool) {
	target := uintptr(addr)
	idx := sort.Search(len(blocks), func(i int) bool {
		return uintptr(blocks[i].base()) > target
	})
	if idx == 0 {
		return nil, false
	}
	candidate := blocks[idx-1]
	if candidate.owns(addr) {
		return candidate, true
	}
	return nil, false
}
