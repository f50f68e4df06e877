package state

import (
	"sync/atomic"
	"testing"
)

func TestManagerState(t *testing.T) {
	var m Manager

	if m.GetState() != Starting {
		t.Fatalf("initial state should be Starting, not %v", m.GetState())
	}

	m.SetState(Terminating)
	if m.GetState() != Terminating {
		t.Fatalf("state should be Terminating, not %v", m.GetState())
	}

	if s := State(42).String(); s != "Unknown" {
		t.Fatalf("expected Unknown, got %s", s)
	}
}

func TestManagerGoFunc(t *testing.T) {
	var m Manager
	var count int32

	block := make(chan struct{})
	for i := 0; i < WGLIMIT; i++ {
		if !m.GoFunc(func() {
			<-block
			atomic.AddInt32(&count, 1)
		}) {
			t.Fatalf("goroutine %d should have been launched", i)
		}
	}

	if m.GoFunc(func() {}) {
		t.Fatal("goroutine beyond WGLIMIT should not be launched")
	}

	close(block)
	m.WaitRoutines()

	if atomic.LoadInt32(&count) != WGLIMIT {
		t.Fatalf("expected %d goroutines to run, got %d", WGLIMIT, count)
	}
}
