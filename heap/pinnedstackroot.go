package heap

// PinnedStackRoot is an immutable stack slot that forbids relocation of
// its referent for as long as it is alive. Unlike StackRoot it cannot be
// reassigned, and unlike PinnedRoot it costs nothing beyond a LIFO push
// on the owning mutator's pinned-stack stack.
type PinnedStackRoot[H any] struct {
	ref UnsafeRef[H]
}

// Get returns the immutable reference. The referent is guaranteed not to
// move while this root is alive.
func (p *PinnedStackRoot[H]) Get() UnsafeRef[H] {
	return p.ref
}

func (p *PinnedStackRoot[H]) borrowRef() UnsafeRef[H] { return p.ref }
