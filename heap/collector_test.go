package heap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icicle-lang/icicle/heap"
	"github.com/icicle-lang/icicle/objects"
)

func TestCollectKeepsStackRootedObjectLive(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		heap.WithStackRoots(m, 1, func(roots []heap.StackRoot[marker]) any {
			roots[0].Set(objects.NewBoxed(m, 4242))

			// Allocate a pile of garbage with no root at all, then force
			// a cycle: the rooted object must still read back correctly
			// afterwards, whether or not the collector moved it.
			for i := 0; i < 64; i++ {
				objects.NewBoxed(m, int64(i))
			}
			m.Collect()

			assert.EqualValues(t, 4242, objects.BoxedValue(roots[0].Get()))
			return nil
		})
		return nil
	})
}

func TestCollectNeverMovesPinnedRoot(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		obj := objects.NewBoxed(m, 99)
		root := heap.NewPinnedRoot(h, obj)
		defer root.Close()

		addrBefore := root.Get().Payload()
		for i := 0; i < 64; i++ {
			objects.NewBoxed(m, int64(i))
		}
		m.Collect()

		assert.Equal(t, addrBefore, root.Get().Payload())
		assert.EqualValues(t, 99, objects.BoxedValue(root.Get()))
		return nil
	})
}

func TestCollectReclaimsUnreachableGarbage(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		// Enough unrooted objects to retire several allocator blocks to
		// the registry; with no roots, the cycle frees every one of them.
		n := int(heap.DefaultBlockSize/8) + 16
		for i := 0; i < n; i++ {
			objects.NewBoxed(m, int64(i))
		}
		statsBefore := h.Stats()
		m.Collect()
		statsAfter := h.Stats()

		assert.Equal(t, statsBefore.Collections+1, statsAfter.Collections)
		assert.Less(t, statsAfter.LiveBlocks, statsBefore.LiveBlocks)
		return nil
	})
}

func TestCollectRewritesConsCellFields(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		m, err := heap.NewMutator(h)
		require.NoError(t, err)
		defer m.Close()

		heap.WithStackRoots(m, 1, func(roots []heap.StackRoot[marker]) any {
			car := objects.NewBoxed(m, 1)
			cdr := objects.NewBoxed(m, 2)
			cell := objects.NewCons(m, car, cdr)
			roots[0].Set(cell)

			for i := 0; i < 64; i++ {
				objects.NewBoxed(m, int64(i))
			}
			m.Collect()

			got := roots[0].Get()
			assert.EqualValues(t, 1, objects.BoxedValue(objects.Car(got)))
			assert.EqualValues(t, 2, objects.BoxedValue(objects.Cdr(got)))
			return nil
		})
		return nil
	})
}
