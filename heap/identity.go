package heap

import "sync/atomic"

// nextHeapID hands out a process-wide unique identity to every Heap that
// gets constructed. The identity is the runtime half of heap branding:
// the H type parameter rejects cross-heap use at compile time as long as
// call sites use distinct marker types for distinct heaps, and this
// counter catches the case where they don't.
var nextHeapID uint64

func allocHeapID() uint64 {
	return atomic.AddUint64(&nextHeapID, 1)
}
