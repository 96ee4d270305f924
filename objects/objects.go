// Package objects supplies two minimal object shapes used by the heap
// package's own tests: a boxed scalar with no outgoing
// references, and a two-field cons cell with two. Real embedders supply
// their own Descriptor per dynamic type; the out-of-scope interpreter
// value type this module would actually back is not reconstructed here.
package objects

import (
	"unsafe"

	"github.com/icicle-lang/icicle/heap"
)

// boxedPayload is a scalar with no outgoing references.
type boxedPayload struct {
	value int64
}

// Boxed describes a boxed int64 with no outgoing references: Trace
// never calls visit.
var Boxed = &heap.Descriptor{
	Size:  unsafe.Sizeof(boxedPayload{}),
	Align: unsafe.Alignof(boxedPayload{}),
	Trace: func(unsafe.Pointer, heap.Visitor) {},
}

// NewBoxed allocates a Boxed object holding value.
func NewBoxed[H any](m *heap.Mutator[H], value int64) heap.UnsafeRef[H] {
	ref := m.Alloc(Boxed)
	(*boxedPayload)(ref.Payload()).value = value
	return ref
}

// BoxedValue reads the scalar held by a Boxed object. ref must be a live
// reference produced by NewBoxed.
func BoxedValue[H any](ref heap.UnsafeRef[H]) int64 {
	return (*boxedPayload)(ref.Payload()).value
}

// SetBoxedValue overwrites the scalar held by a Boxed object.
func SetBoxedValue[H any](ref heap.UnsafeRef[H], value int64) {
	(*boxedPayload)(ref.Payload()).value = value
}

// consPayload is a two-field cell with two outgoing references, laid out
// the way the collector's field-rewrite pass expects: each field is
// itself the *unsafe.Pointer a Visitor is handed, so the collector can
// overwrite it in place after relocating the referent.
type consPayload struct {
	car unsafe.Pointer
	cdr unsafe.Pointer
}

// Cons describes a two-field cell with two outgoing references.
var Cons = &heap.Descriptor{
	Size:  unsafe.Sizeof(consPayload{}),
	Align: unsafe.Alignof(consPayload{}),
	Trace: func(payload unsafe.Pointer, visit heap.Visitor) {
		p := (*consPayload)(payload)
		visit(&p.car)
		visit(&p.cdr)
	},
}

// NewCons allocates a cons cell pointing at car and cdr.
func NewCons[H any](m *heap.Mutator[H], car, cdr heap.UnsafeRef[H]) heap.UnsafeRef[H] {
	ref := m.Alloc(Cons)
	p := (*consPayload)(ref.Payload())
	p.car = car.Payload()
	p.cdr = cdr.Payload()
	return ref
}

// Car returns the first field of a cons cell as an UnsafeRef branded to
// the same heap as ref itself.
func Car[H any](ref heap.UnsafeRef[H]) heap.UnsafeRef[H] {
	return heap.RebrandLike(ref, (*consPayload)(ref.Payload()).car)
}

// Cdr returns the second field of a cons cell.
func Cdr[H any](ref heap.UnsafeRef[H]) heap.UnsafeRef[H] {
	return heap.RebrandLike(ref, (*consPayload)(ref.Payload()).cdr)
}

// SetCar overwrites the first field of a cons cell.
func SetCar[H any](ref, car heap.UnsafeRef[H]) {
	(*consPayload)(ref.Payload()).car = car.Payload()
}

// SetCdr overwrites the second field of a cons cell.
func SetCdr[H any](ref, cdr heap.UnsafeRef[H]) {
	(*consPayload)(ref.Payload()).cdr = cdr.Payload()
}
