package heap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icicle-lang/icicle/heap"
	"github.com/icicle-lang/icicle/objects"
)

// marker is a heap-brand type used throughout this package's tests.
// Reusing the same marker across two heap instances is exactly the
// scenario the runtime origin check exists to catch; see
// TestCrossHeapOriginRefused.
type marker struct{}

func withTestHeap[R any](t *testing.T, f func(h *heap.Heap[marker]) R) R {
	t.Helper()
	r, err := heap.With(nil, f)
	require.NoError(t, err)
	return r
}

func TestWithInitializesUndef(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		undef := h.PreAlloc().Undef()
		assert.NotNil(t, undef.Payload())
		return nil
	})
}

func TestStatsReflectsMutatorLifecycle(t *testing.T) {
	withTestHeap(t, func(h *heap.Heap[marker]) any {
		before := h.Stats()
		assert.Equal(t, 0, before.Mutators)

		m, err := heap.NewMutator(h)
		require.NoError(t, err)

		mid := h.Stats()
		assert.Equal(t, 1, mid.Mutators)

		m.Close()
		after := h.Stats()
		assert.Equal(t, 0, after.Mutators)
		return nil
	})
}

func TestDestroyFatalsWithLiveMutator(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = heap.With(nil, func(h *heap.Heap[marker]) any {
			_, err := heap.NewMutator(h)
			require.NoError(t, err)
			return nil // mutator never closed: With's deferred destroy must fatal
		})
	})
}

func TestCrossHeapOriginRefused(t *testing.T) {
	// Two independent heaps sharing one brand type on purpose: the static
	// brand can't separate them (same H), so this exercises the runtime
	// heap-identity check spec.md §8 Property 1 calls for.
	var captured heap.UnsafeRef[marker]
	_, err := heap.With(nil, func(hA *heap.Heap[marker]) any {
		mA, err := heap.NewMutator(hA)
		require.NoError(t, err)
		captured = objects.NewBoxed(mA, 42)
		mA.Close()
		return nil
	})
	require.NoError(t, err)

	_, err = heap.With(nil, func(hB *heap.Heap[marker]) any {
		assert.Panics(t, func() {
			heap.NewPinnedRoot(hB, captured)
		})
		return nil
	})
	require.NoError(t, err)
}
