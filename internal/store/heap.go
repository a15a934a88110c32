package store

import "container/heap"

// timerHeap is a container/heap.Interface over *entry, ordered by
// next pop time, used for the overflow tier beyond both wheels'
// horizons.
type timerHeap []*entry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].nextPop.Before(h[j].nextPop) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*entry)
	e.heapIdx = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}

func heapPush(h *timerHeap, e *entry) {
	heap.Push(h, e)
}

func heapPop(h *timerHeap) *entry {
	return heap.Pop(h).(*entry)
}

// heapRemove removes e from the heap in O(log n), using its tracked
// heapIdx.
func heapRemove(h *timerHeap, e *entry) {
	heap.Remove(h, e.heapIdx)
}
