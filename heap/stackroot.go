package heap

import "unsafe"

// StackRoot is a movable, reassignable, non-pinning slot on a mutator's
// stack. It is pinned in memory for the lifetime of its enclosing
// WithStackRoots batch (so the collector can track its address), but
// does not pin its referent: the collector may relocate the object a
// StackRoot points at, rewriting the slot in place.
type StackRoot[H any] struct {
	ref UnsafeRef[H]
}

// Get returns the root's current reference. After a collection cycle
// this reflects the post-collection address of the same logical object.
func (s *StackRoot[H]) Get() UnsafeRef[H] {
	return s.ref
}

// Set overwrites the slot. The collector only reads the slot at safe
// points, so writes between safe points are race-free from its
// perspective.
func (s *StackRoot[H]) Set(ref UnsafeRef[H]) {
	s.ref = ref
}

func (s *StackRoot[H]) borrowRef() UnsafeRef[H] { return s.ref }

// rootSlotAddr returns the address of the slot's UnsafeRef field, for
// the collector to visit during root rewriting. Valid only because
// StackRoot values live in an array allocated by WithStackRoots and
// never move while the batch is active.
func (s *StackRoot[H]) rootSlotAddr() *unsafe.Pointer {
	return &s.ref.addr
}
