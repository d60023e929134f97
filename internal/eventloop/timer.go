package eventloop

import "container/heap"

// timer is one entry in the loop's deadline min-heap (spec §4.7 step 2:
// "key = deadline, tiebreak = monotonic id").
type timer struct {
	deadline  int64 // unix nanoseconds
	id        uint64
	cancelled bool
	fire      func()
	index     int // heap.Interface bookkeeping
}

// timerHeap is a container/heap min-heap ordered by (deadline, id).
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].id < h[j].id
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

var _ heap.Interface = (*timerHeap)(nil)
