package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinnedReferencesSurvive(t *testing.T) {
	m := testVM(t, DefaultConfig())
	kept, err := m.NewArray("[I", 16)
	require.NoError(t, err)
	m.Pin(kept)
	dropped, err := m.NewArray("[J", 16)
	require.NoError(t, err)

	stats := m.CollectGarbage()
	assert.Equal(t, 1, stats.Freed)
	assert.Positive(t, stats.FreedBytes)
	assert.True(t, m.Heap().Valid(kept))
	assert.False(t, m.Heap().Valid(dropped))

	_, err = m.Heap().Get(dropped)
	assert.ErrorIs(t, err, ErrNullReference, "a freed handle is detectably dangling")

	// Pins nest.
	m.Pin(kept)
	m.Unpin(kept)
	m.CollectGarbage()
	assert.True(t, m.Heap().Valid(kept))
	m.Unpin(kept)
	m.CollectGarbage()
	assert.False(t, m.Heap().Valid(kept))
}

func TestSlotReuseKeepsOldHandlesDangling(t *testing.T) {
	m := testVM(t, DefaultConfig())
	old, err := m.NewArray("[B", 4)
	require.NoError(t, err)
	m.CollectGarbage()

	fresh, err := m.NewArray("[B", 4)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)
	assert.False(t, m.Heap().Valid(old))
	assert.True(t, m.Heap().Valid(fresh))
}

func TestCyclesAreCollected(t *testing.T) {
	m := testVM(t, DefaultConfig())
	a, err := m.NewArray("[Ljava/lang/Object;", 1)
	require.NoError(t, err)
	b, err := m.NewArray("[Ljava/lang/Object;", 1)
	require.NoError(t, err)

	arrA, err := m.Heap().Array(a)
	require.NoError(t, err)
	arrB, err := m.Heap().Array(b)
	require.NoError(t, err)
	arrA.Elems[0] = Reference(b)
	arrB.Elems[0] = Reference(a)

	m.Pin(a)
	stats := m.CollectGarbage()
	assert.Equal(t, 0, stats.Freed)
	assert.Equal(t, 2, stats.Marked, "b is reachable through a")

	m.Unpin(a)
	stats = m.CollectGarbage()
	assert.Equal(t, 2, stats.Freed)
	assert.Equal(t, 0, m.Heap().Live())
}

func TestStaticsAreRoots(t *testing.T) {
	b := NewClassBuilder("g/Holder", "")
	b.Field("keep", "[I", AccPublic|AccStatic)
	m := NewVM(NewLoader(sourceOf(t, b)), DefaultConfig())

	arr, err := m.NewArray("[I", 8)
	require.NoError(t, err)
	require.NoError(t, m.SetStatic("g/Holder", "keep", Reference(arr)))

	m.CollectGarbage()
	assert.True(t, m.Heap().Valid(arr))

	require.NoError(t, m.SetStatic("g/Holder", "keep", NullValue()))
	m.CollectGarbage()
	assert.False(t, m.Heap().Valid(arr))
}

func TestHeapExhausted(t *testing.T) {
	config := DefaultConfig()
	config.HeapBudget = 1 << 10
	m := testVM(t, config)

	_, err := m.NewArray("[J", 1<<10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeapExhausted)

	// Garbage is reclaimed before giving up.
	for range 100 {
		_, err := m.NewArray("[I", 16)
		require.NoError(t, err)
	}
	assert.Positive(t, m.Heap().Stats().Cycles)
	assert.LessOrEqual(t, m.Heap().Stats().PeakUsed, config.HeapBudget)
}

func TestNegativeArrayLength(t *testing.T) {
	m := testVM(t, DefaultConfig())
	_, err := m.NewArray("[I", -1)
	assert.ErrorIs(t, err, ErrNegativeLength)
}

func TestObjectFieldsStartZeroed(t *testing.T) {
	m := testVM(t, DefaultConfig())
	c, err := m.Loader().Resolve(pointClass)
	require.NoError(t, err)
	r, err := m.Heap().AllocObject(c)
	require.NoError(t, err)

	obj, err := m.Heap().Object(r)
	require.NoError(t, err)
	for _, f := range c.InstanceFields {
		assert.Equal(t, Int(0), obj.Fields[f.Offset], f.Name)
	}
}
