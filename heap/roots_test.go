package heap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icicle-lang/icicle/heap"
	"github.com/icicle-lang/icicle/objects"
)

func TestStackRootsStartUndef(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		heap.WithStackRoots(m, 3, func(roots []heap.StackRoot[marker]) any {
			undef := h.PreAlloc().Undef()
			for i := range roots {
				assert.Equal(t, undef.Payload(), roots[i].Get().Payload())
			}
			return nil
		})
		return nil
	})
}

func TestStackRootSetIsReassignable(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		heap.WithStackRoots(m, 1, func(roots []heap.StackRoot[marker]) any {
			a := objects.NewBoxed(m, 1)
			roots[0].Set(a)
			assert.Equal(t, a.Payload(), roots[0].Get().Payload())

			b := objects.NewBoxed(m, 2)
			roots[0].Set(b)
			assert.Equal(t, b.Payload(), roots[0].Get().Payload())
			return nil
		})
		return nil
	})
}

func TestPinnedRootRefcountLaw(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		obj := objects.NewBoxed(m, 7)
		root := heap.NewPinnedRoot(h, obj)
		assert.Equal(t, 1, h.Stats().PinnedRoots)

		clone := root.Clone()
		assert.Equal(t, 1, h.Stats().PinnedRoots, "same object pinned twice is still one entry")

		root.Close()
		assert.Equal(t, 1, h.Stats().PinnedRoots, "clone still holds the pin")

		clone.Close()
		assert.Equal(t, 0, h.Stats().PinnedRoots)
		return nil
	})
}

func TestPinnedRootDoubleCloseFatals(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		obj := objects.NewBoxed(m, 1)
		root := heap.NewPinnedRoot(h, obj)
		root.Close()

		assert.Panics(t, func() {
			root.Close()
		})
		return nil
	})
}

func TestWithPinnedStackRootGetReturnsObject(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		obj := objects.NewBoxed(m, 99)
		heap.WithPinnedStackRoot(m, obj, func(root *heap.PinnedStackRoot[marker]) any {
			assert.Equal(t, obj.Payload(), root.Get().Payload())
			return nil
		})
		return nil
	})
}
