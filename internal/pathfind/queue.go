package pathfind

import "container/heap"

type queueItem struct {
	idx  int
	dist float64
}

// queue is a min-heap of cells keyed by tentative distance. Stale entries
// are skipped by the caller instead of decreased in place.
type queue struct {
	items []queueItem
}

func newQueue(capacity int) *queue {
	return &queue{items: make([]queueItem, 0, capacity)}
}

func (q *queue) Len() int { return len(q.items) }

func (q *queue) Less(i, j int) bool {
	if q.items[i].dist != q.items[j].dist {
		return q.items[i].dist < q.items[j].dist
	}
	return q.items[i].idx < q.items[j].idx
}

func (q *queue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *queue) Push(x any) { q.items = append(q.items, x.(queueItem)) }

func (q *queue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items = q.items[:n-1]
	return it
}

func (q *queue) push(idx int, dist float64) {
	heap.Push(q, queueItem{idx: idx, dist: dist})
}

func (q *queue) pop() queueItem {
	return heap.Pop(q).(queueItem)
}
