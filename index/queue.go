package index

// PriorityQueue is a binary heap of results ordered by Less. As a max-heap
// its top is the worst result, which makes it a bounded top-k collector; as
// a min-heap its top is the best candidate to expand next.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Result
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue(isMaxHeap bool, capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: isMaxHeap,
		items:     make([]Result, 0, max(capacity, 1)),
	}
}

// Len returns the number of queued results.
func (pq *PriorityQueue) Len() int {
	return len(pq.items)
}

// Top returns the top result without removing it.
func (pq *PriorityQueue) Top() (Result, bool) {
	if len(pq.items) == 0 {
		return Result{}, false
	}
	return pq.items[0], true
}

// Push inserts r.
func (pq *PriorityQueue) Push(r Result) {
	pq.items = append(pq.items, r)
	pq.siftUp(len(pq.items) - 1)
}

// PushBounded inserts r into a max-heap holding at most capacity results,
// replacing the current worst when r is better.
func (pq *PriorityQueue) PushBounded(r Result, capacity int) bool {
	if len(pq.items) < capacity {
		pq.Push(r)
		return true
	}
	if capacity == 0 || !Less(r, pq.items[0]) {
		return false
	}
	pq.items[0] = r
	pq.siftDown(0)
	return true
}

// Pop removes and returns the top result.
func (pq *PriorityQueue) Pop() (Result, bool) {
	n := len(pq.items)
	if n == 0 {
		return Result{}, false
	}

	top := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]
	if len(pq.items) > 0 {
		pq.siftDown(0)
	}
	return top, true
}

// Sorted drains the queue and returns its results ordered best first.
func (pq *PriorityQueue) Sorted() []Result {
	out := make([]Result, len(pq.items))
	if pq.isMaxHeap {
		for i := len(out) - 1; i >= 0; i-- {
			out[i], _ = pq.Pop()
		}
	} else {
		for i := range out {
			out[i], _ = pq.Pop()
		}
	}
	return out
}

// Reset empties the queue, keeping its storage.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return Less(pq.items[j], pq.items[i])
	}
	return Less(pq.items[i], pq.items[j])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.items[i], pq.items[parent] = pq.items[parent], pq.items[i]
		i = parent
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && pq.less(right, left) {
			child = right
		}
		if !pq.less(child, i) {
			break
		}
		pq.items[i], pq.items[child] = pq.items[child], pq.items[i]
		i = child
	}
}
