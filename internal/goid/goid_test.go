package goid

import "testing"

func TestCurrentStable(t *testing.T) {
	a := Current()
	b := Current()
	if a == 0 {
		t.Fatal("expected non-zero goroutine ID")
	}
	if a != b {
		t.Errorf("expected same ID on same goroutine, got %d and %d", a, b)
	}
}

func TestCurrentDiffersAcrossGoroutines(t *testing.T) {
	mine := Current()
	ch := make(chan ID)
	go func() { ch <- Current() }()
	other := <-ch

	if other == 0 {
		t.Fatal("expected non-zero goroutine ID")
	}
	if other == mine {
		t.Errorf("expected different IDs, both were %d", mine)
	}
}

func TestIDString(t *testing.T) {
	if got := ID(17).String(); got != "17" {
		t.Errorf("String() = %q, want %q", got, "17")
	}
}
