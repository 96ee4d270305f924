package heap

import "unsafe"

// undefDescriptor describes the undef sentinel: a zero-size object with
// no outgoing references, used only as an address.
var undefDescriptor = &Descriptor{
	Size:  0,
	Align: 1,
	Trace: func(unsafe.Pointer, Visitor) {},
}

// PreAlloc holds the small fixed set of singleton objects created during
// heap initialization, so that roots can always be given an initial
// value without allocating. At minimum this is the undef sentinel named
// by spec.md §4.5; pre-allocated objects live in a dedicated, never
// moved block and are always reachable for the heap's entire lifetime.
type PreAlloc[H any] struct {
	block *Block[H]
	undef UnsafeRef[H]
}

// Undef returns the heap's undef sentinel reference.
func (p *PreAlloc[H]) Undef() UnsafeRef[H] { return p.undef }

// initPreAlloc allocates the pre-allocated set in its own never-moved
// block. Called exactly once, during Heap construction.
func initPreAlloc[H any](h *Heap[H]) (PreAlloc[H], error) {
	block, err := newBlock(h, DefaultBlockSize)
	if err != nil {
		return PreAlloc[H]{}, err
	}
	block.oversize = true // never moved or reclaimed

	payload := block.tryAlloc(0, undefDescriptor)
	if payload == nil {
		panic("icicle: pre-allocated block too small for undef sentinel")
	}

	return PreAlloc[H]{
		block: block,
		undef: UnsafeRef[H]{addr: payload, origin: h.id},
	}, nil
}
