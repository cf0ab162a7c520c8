package metarequest

import "container/heap"

// readyBody is one completed part awaiting in-order delivery.
type readyBody struct {
	partIndex int
	data      []byte
}

// bodyHeap is a min-heap keyed by part index, used to buffer parts that
// complete out of order until the ones before them have been delivered
// (spec §4.3, "ordered priority-queue of completed bodies").
type bodyHeap []readyBody

func (h bodyHeap) Len() int            { return len(h) }
func (h bodyHeap) Less(i, j int) bool  { return h[i].partIndex < h[j].partIndex }
func (h bodyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bodyHeap) Push(x any)         { *h = append(*h, x.(readyBody)) } //nolint:forcetypeassert
func (h *bodyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// pushReady inserts a completed body into the heap.
func pushReady(h *bodyHeap, partIndex int, data []byte) {
	heap.Push(h, readyBody{partIndex: partIndex, data: data})
}

// drainReady pops every entry whose partIndex equals the running
// nextExpected cursor, in order, invoking deliver for each and advancing
// the cursor. It stops at the first gap.
func drainReady(h *bodyHeap, nextExpected *int, deliver func(partIndex int, data []byte) error) error {
	for h.Len() > 0 && (*h)[0].partIndex == *nextExpected {
		item := heap.Pop(h).(readyBody) //nolint:forcetypeassert
		if err := deliver(item.partIndex, item.data); err != nil {
			return err
		}
		*nextExpected++
	}
	return nil
}
