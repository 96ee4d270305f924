package heap

import "unsafe"

// UnsafeRef is an unverified raw reference to an object on a specific
// heap, branded with the heap identity H. It has no destructor and
// implies no ownership: it is only valid to dereference when (a) no
// safe point can occur before use, (b) the referent is pinned, or (c)
// the reference was just obtained from a live root.
type UnsafeRef[H any] struct {
	addr   unsafe.Pointer
	origin uint64
}

// valid reports whether r carries a non-nil address. The zero value of
// UnsafeRef is never a live reference; every root starts out pointing at
// the heap's pre-allocated undef sentinel instead (see PreAlloc.Undef).
func (r UnsafeRef[H]) valid() bool {
	return r.addr != nil
}

func (r UnsafeRef[H]) header() *objectHeader {
	return headerOf(r.addr)
}

// Payload returns the raw address of r's object payload, per the layout
// its Descriptor describes. Embedders use this to read and write object
// fields; the collector itself only ever touches payloads through a
// Descriptor's Trace function. The returned pointer is only safe to
// dereference under the same conditions documented on UnsafeRef itself.
func (r UnsafeRef[H]) Payload() unsafe.Pointer {
	return r.addr
}

// RebrandLike constructs an UnsafeRef for addr carrying the same heap
// origin as like. Embedders use this to reconstruct an UnsafeRef from a
// raw field read out of a traced payload (see objects.Car/Cdr), since
// origin itself is not exported.
func RebrandLike[H any](like UnsafeRef[H], addr unsafe.Pointer) UnsafeRef[H] {
	return UnsafeRef[H]{addr: addr, origin: like.origin}
}

// BorrowRef is implemented by anything that can yield an UnsafeRef<H>:
// StackRoot, PinnedStackRoot, and PinnedRoot all implement it, so
// WithPinnedStackRoot and NewPinnedRoot can accept any of them.
type BorrowRef[H any] interface {
	borrowRef() UnsafeRef[H]
}

func (r UnsafeRef[H]) borrowRef() UnsafeRef[H] { return r }
