package heap

import "unsafe"

// Visitor is invoked once per outgoing reference a traced object holds.
// addr points at the field itself (not at the referent), so that the
// collector can rewrite it in place after deciding where the referent
// moved to.
type Visitor func(addr *unsafe.Pointer)

// Descriptor describes one object type's layout: its size and alignment
// in bytes, and a routine that enumerates its outgoing UnsafeRef fields.
// The embedder supplies one Descriptor per dynamic type; this is the
// only thing the heap core needs to know about object shapes.
type Descriptor struct {
	// Size is the total size of the object, header excluded.
	Size uintptr

	// Align is the required alignment of the object's payload. Must be
	// a power of two and no greater than maxAlign.
	Align uintptr

	// Trace enumerates the outgoing UnsafeRef<H> fields of a
	// fully-initialized instance at payload, calling visit exactly once
	// per field. Trace must not allocate or block.
	Trace func(payload unsafe.Pointer, visit Visitor)
}

// maxAlign bounds every block's backing region alignment, matching the
// strictest alignment any Descriptor may request.
const maxAlign = unsafe.Alignof(struct {
	_ complex128
}{})

// header flag bits, packed into one word the way sync.Mutex packs its
// locked/woken/starving state into a single int32.
const (
	flagMarked    uint32 = 1 << iota // reachable in the current cycle
	flagForwarded                    // payload has a forwarding address installed
	flagPinned                       // cached hint: object is in the pinned set
)

// objectHeader precedes every allocated object's payload.
type objectHeader struct {
	descriptor *Descriptor
	flags      uint32
	forward    unsafe.Pointer // valid iff flagForwarded is set
}

const headerSize = unsafe.Sizeof(objectHeader{})

func headerOf(payload unsafe.Pointer) *objectHeader {
	return (*objectHeader)(unsafe.Pointer(uintptr(payload) - headerSize))
}

func payloadOf(header unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(header) + headerSize)
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}
