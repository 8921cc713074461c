// Package queue provides the priority work queue used by the dispatcher.
//
// Items are ordered by priority (higher first) and, within a priority, by
// insertion order. Items can be removed or re-prioritized in place. The
// queue is not safe for concurrent use; the dispatcher guards it with its
// own mutex.
package queue

import "container/heap"

// Item is a queued value with its scheduling key.
type Item[T any] struct {
	Value T

	priority int
	seq      uint64
	index    int // heap index, -1 once removed
}

// Priority returns the item's current priority.
func (it *Item[T]) Priority() int { return it.priority }

// Queued reports whether the item is still in a queue.
func (it *Item[T]) Queued() bool { return it.index >= 0 }

// Queue is a stable max-priority queue.
type Queue[T any] struct {
	h       itemHeap[T]
	nextSeq uint64
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.h) }

// Push adds a value at the given priority and returns its handle.
func (q *Queue[T]) Push(value T, priority int) *Item[T] {
	it := &Item[T]{Value: value, priority: priority, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.h, it)
	return it
}

// Peek returns the next item without removing it.
func (q *Queue[T]) Peek() (*Item[T], bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return q.h[0], true
}

// Pop removes and returns the next item.
func (q *Queue[T]) Pop() (*Item[T], bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*Item[T]), true
}

// PopAtLeast removes and returns the next item if its priority is at
// least min.
func (q *Queue[T]) PopAtLeast(min int) (*Item[T], bool) {
	if len(q.h) == 0 || q.h[0].priority < min {
		return nil, false
	}
	return heap.Pop(&q.h).(*Item[T]), true
}

// MaxPriority returns the highest queued priority.
func (q *Queue[T]) MaxPriority() (int, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].priority, true
}

// Remove takes the item out of the queue. It returns false if the item was
// already dequeued.
func (q *Queue[T]) Remove(it *Item[T]) bool {
	if it == nil || it.index < 0 || it.index >= len(q.h) || q.h[it.index] != it {
		return false
	}
	heap.Remove(&q.h, it.index)
	return true
}

// Update changes the item's priority. The item moves to the back of its new
// priority band, as if it had just been posted there.
func (q *Queue[T]) Update(it *Item[T], priority int) bool {
	if it == nil || it.index < 0 || it.index >= len(q.h) || q.h[it.index] != it {
		return false
	}
	it.priority = priority
	it.seq = q.nextSeq
	q.nextSeq++
	heap.Fix(&q.h, it.index)
	return true
}

// Drain removes every item and returns them in dequeue order.
func (q *Queue[T]) Drain() []*Item[T] {
	out := make([]*Item[T], 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(*Item[T]))
	}
	return out
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	it := x.(*Item[T])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
