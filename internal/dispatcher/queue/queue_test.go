package queue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func drainValues(q *Queue[string]) []string {
	var out []string
	for _, it := range q.Drain() {
		out = append(out, it.Value)
	}
	return out
}

func TestQueuePriorityOrder(t *testing.T) {
	q := New[string]()
	q.Push("low", 1)
	q.Push("high", 9)
	q.Push("mid", 5)

	want := []string{"high", "mid", "low"}
	if diff := cmp.Diff(want, drainValues(q)); diff != "" {
		t.Errorf("dequeue order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := New[string]()
	for _, v := range []string{"a", "b", "c", "d"} {
		q.Push(v, 3)
	}
	q.Push("x", 4)

	want := []string{"x", "a", "b", "c", "d"}
	if diff := cmp.Diff(want, drainValues(q)); diff != "" {
		t.Errorf("dequeue order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueRemove(t *testing.T) {
	q := New[string]()
	q.Push("a", 1)
	b := q.Push("b", 1)
	q.Push("c", 1)

	if !q.Remove(b) {
		t.Fatal("expected Remove to succeed")
	}
	if b.Queued() {
		t.Error("removed item still reports queued")
	}
	if q.Remove(b) {
		t.Error("expected second Remove to fail")
	}

	want := []string{"a", "c"}
	if diff := cmp.Diff(want, drainValues(q)); diff != "" {
		t.Errorf("dequeue order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueUpdateMovesToBackOfBand(t *testing.T) {
	q := New[string]()
	a := q.Push("a", 1)
	q.Push("b", 5)
	q.Push("c", 5)

	if !q.Update(a, 5) {
		t.Fatal("expected Update to succeed")
	}
	if a.Priority() != 5 {
		t.Errorf("Priority() = %d, want 5", a.Priority())
	}

	want := []string{"b", "c", "a"}
	if diff := cmp.Diff(want, drainValues(q)); diff != "" {
		t.Errorf("dequeue order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueuePopAtLeast(t *testing.T) {
	q := New[string]()
	q.Push("bg", 4)
	q.Push("normal", 9)

	it, ok := q.PopAtLeast(5)
	if !ok || it.Value != "normal" {
		t.Fatalf("PopAtLeast(5) = %v, %v; want normal", it, ok)
	}
	if _, ok := q.PopAtLeast(5); ok {
		t.Error("expected no item at or above 5")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueEmpty(t *testing.T) {
	q := New[int]()
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue should fail")
	}
	if _, ok := q.Peek(); ok {
		t.Error("Peek on empty queue should fail")
	}
	if _, ok := q.MaxPriority(); ok {
		t.Error("MaxPriority on empty queue should fail")
	}
	if q.Update(nil, 1) || q.Remove(nil) {
		t.Error("nil item operations should fail")
	}
}
