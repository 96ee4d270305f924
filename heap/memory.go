package heap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AllocError is returned by a MemorySource when it cannot satisfy a
// request. It is the one recoverable error class this module exposes;
// everything else is a programmer error that calls fatal.
type AllocError struct {
	Requested uintptr
	Cause     error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("icicle: failed to acquire %d bytes: %v", e.Requested, e.Cause)
}

func (e *AllocError) Unwrap() error { return e.Cause }

// MemorySource is the external memory-acquisition boundary named in
// spec.md §6: the ability to request and release page-aligned regions
// for blocks. Implementations may use any platform-appropriate allocator.
type MemorySource interface {
	// Acquire returns a zeroed region of at least n bytes, aligned to at
	// least maxAlign. The returned slice's length is the usable capacity,
	// which may be larger than n (e.g. rounded up to a page).
	Acquire(n uintptr) ([]byte, error)

	// Release returns a region previously returned by Acquire. Release
	// is never called concurrently with use of the region.
	Release(region []byte) error
}

// MmapMemorySource acquires backing memory directly from the OS via
// mmap, released via munmap. This is the default on platforms where
// golang.org/x/sys/unix.Mmap is available.
type MmapMemorySource struct{}

func (MmapMemorySource) Acquire(n uintptr) ([]byte, error) {
	pageSize := uintptr(unix.Getpagesize())
	size := alignUp(n, pageSize)
	region, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &AllocError{Requested: n, Cause: err}
	}
	return region, nil
}

func (MmapMemorySource) Release(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Munmap(region)
}

// HeapMemorySource falls back to plain Go-heap-backed byte slices. It is
// portable to every platform the Go toolchain targets, at the cost of
// handing the allocated bytes to the ordinary Go garbage collector's
// bookkeeping (the bytes themselves are still governed entirely by this
// module's collector: nothing inside a Block's region is ever treated
// as a Go pointer by the runtime's own scanner, since Descriptor-traced
// fields are read and written through unsafe.Pointer arithmetic, not
// through Go pointer types).
type HeapMemorySource struct{}

func (HeapMemorySource) Acquire(n uintptr) ([]byte, error) {
	region := make([]byte, n)
	return region, nil
}

func (HeapMemorySource) Release(region []byte) error {
	return nil
}

// defaultMemorySource is used by Heap construction when the caller does
// not supply one via WithMemorySource. This module targets the unix
// family (as does golang.org/x/sys/unix itself); a caller on another
// platform supplies HeapMemorySource explicitly.
func defaultMemorySource() MemorySource {
	return MmapMemorySource{}
}

func regionBase(region []byte) unsafe.Pointer {
	if len(region) == 0 {
		return nil
	}
	return unsafe.Pointer(&region[0])
}
