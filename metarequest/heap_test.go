package metarequest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAndDrainReady_ContiguousRun(t *testing.T) {
	t.Parallel()
	var h bodyHeap
	pushReady(&h, 2, []byte("c"))
	pushReady(&h, 0, []byte("a"))
	pushReady(&h, 1, []byte("b"))

	var delivered [][]byte
	next := 0
	err := drainReady(&h, &next, func(_ int, data []byte) error {
		delivered = append(delivered, data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, next)
	require.Len(t, delivered, 3)
	assert.Equal(t, []byte("a"), delivered[0])
	assert.Equal(t, []byte("b"), delivered[1])
	assert.Equal(t, []byte("c"), delivered[2])
}

func TestDrainReady_StopsAtGap(t *testing.T) {
	t.Parallel()
	var h bodyHeap
	pushReady(&h, 0, []byte("a"))
	pushReady(&h, 2, []byte("c")) // part 1 missing

	var delivered []int
	next := 0
	err := drainReady(&h, &next, func(idx int, _ []byte) error {
		delivered = append(delivered, idx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, delivered)
	assert.Equal(t, 1, next)
	assert.Equal(t, 1, h.Len(), "part 2 stays buffered until part 1 arrives")
}

func TestDrainReady_PropagatesDeliverError(t *testing.T) {
	t.Parallel()
	var h bodyHeap
	pushReady(&h, 0, []byte("a"))
	next := 0
	sentinel := assert.AnError
	err := drainReady(&h, &next, func(int, []byte) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, next, "cursor does not advance on a rejected delivery")
}
