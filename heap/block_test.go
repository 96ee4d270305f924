package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockTestMarker struct{}

var scalarDescriptor = &Descriptor{
	Size:  unsafe.Sizeof(int64(0)),
	Align: unsafe.Alignof(int64(0)),
	Trace: func(unsafe.Pointer, Visitor) {},
}

func TestBlockTryAllocAlignment(t *testing.T) {
	_, err := With[blockTestMarker](nil, func(h *Heap[blockTestMarker]) any {
		b, err := newBlock(h, DefaultBlockSize)
		require.NoError(t, err)
		defer b.release()

		p1 := b.tryAlloc(scalarDescriptor.Size, scalarDescriptor)
		require.NotNil(t, p1)
		assert.Equal(t, uintptr(0), uintptr(p1)%maxAlign)

		p2 := b.tryAlloc(scalarDescriptor.Size, scalarDescriptor)
		require.NotNil(t, p2)
		assert.Equal(t, uintptr(0), uintptr(p2)%maxAlign)
		assert.NotEqual(t, p1, p2)
		return nil
	})
	require.NoError(t, err)
}

func TestBlockTryAllocFailsWhenFull(t *testing.T) {
	// HeapMemorySource returns exactly the requested size; the default
	// mmap source would round the block up to a whole page.
	opts := []Option{WithMemorySource(HeapMemorySource{})}
	_, err := With[blockTestMarker](opts, func(h *Heap[blockTestMarker]) any {
		b, err := newBlock(h, headerSize+scalarDescriptor.Size)
		require.NoError(t, err)
		defer b.release()

		p1 := b.tryAlloc(scalarDescriptor.Size, scalarDescriptor)
		require.NotNil(t, p1)

		p2 := b.tryAlloc(scalarDescriptor.Size, scalarDescriptor)
		assert.Nil(t, p2, "block has no room for a second object")
		return nil
	})
	require.NoError(t, err)
}

func TestBlockOwnsAndOwnsAny(t *testing.T) {
	_, err := With[blockTestMarker](nil, func(h *Heap[blockTestMarker]) any {
		a, err := newBlock(h, DefaultBlockSize)
		require.NoError(t, err)
		defer a.release()
		b, err := newBlock(h, DefaultBlockSize)
		require.NoError(t, err)
		defer b.release()

		pa := a.tryAlloc(scalarDescriptor.Size, scalarDescriptor)
		require.NotNil(t, pa)

		assert.True(t, a.owns(pa))
		assert.False(t, b.owns(pa))

		sorted := sortedByBase([]*Block[blockTestMarker]{a, b})
		found, ok := ownsAny(sorted, pa)
		require.True(t, ok)
		assert.Same(t, a, found)

		_, ok = ownsAny(sorted, unsafe.Pointer(uintptr(0x1)))
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestBlockTraceVisitsEveryObject(t *testing.T) {
	_, err := With[blockTestMarker](nil, func(h *Heap[blockTestMarker]) any {
		b, err := newBlock(h, DefaultBlockSize)
		require.NoError(t, err)
		defer b.release()

		const n = 5
		for i := 0; i < n; i++ {
			require.NotNil(t, b.tryAlloc(scalarDescriptor.Size, scalarDescriptor))
		}

		count := 0
		b.trace(func(hdr *objectHeader, payload unsafe.Pointer) {
			count++
			assert.Same(t, scalarDescriptor, hdr.descriptor)
		})
		assert.Equal(t, n, count)
		return nil
	})
	require.NoError(t, err)
}
