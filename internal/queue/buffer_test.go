package queue

import (
	"sync"
	"testing"
)

func TestFIFOOrder(t *testing.T) {
	b := New[int](4)
	for i := 0; i < 10; i++ {
		if !b.Push(i) {
			t.Fatalf("Push(%d) refused", i)
		}
	}
	for i := 0; i < 10; i++ {
		v, ok := b.TryPop()
		if !ok {
			t.Fatalf("TryPop ran dry at %d", i)
		}
		if v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}
	if _, ok := b.TryPop(); ok {
		t.Error("TryPop returned item from empty buffer")
	}
}

func TestGrowPreservesOrderAcrossWrap(t *testing.T) {
	b := New[int](4)
	// Advance head so the ring wraps before growing.
	for i := 0; i < 3; i++ {
		b.Push(i)
	}
	b.TryPop()
	b.TryPop()
	for i := 3; i < 12; i++ {
		b.Push(i)
	}

	want := 2
	for {
		v, ok := b.TryPop()
		if !ok {
			break
		}
		if v != want {
			t.Fatalf("popped %d, want %d", v, want)
		}
		want++
	}
	if want != 12 {
		t.Errorf("drained up to %d, want 12", want)
	}
	if stats := b.Stats(); stats.Grows == 0 {
		t.Error("expected at least one growth")
	}
}

func TestDrainBounded(t *testing.T) {
	b := New[string](2)
	for _, s := range []string{"a", "b", "c", "d"} {
		b.Push(s)
	}
	first := b.Drain(3)
	if len(first) != 3 || first[0] != "a" || first[2] != "c" {
		t.Errorf("Drain(3) = %v, want [a b c]", first)
	}
	rest := b.Drain(0)
	if len(rest) != 1 || rest[0] != "d" {
		t.Errorf("Drain(0) = %v, want [d]", rest)
	}
	if got := b.Drain(5); got != nil {
		t.Errorf("Drain on empty buffer = %v, want nil", got)
	}
}

func TestCloseDrainsThenStops(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)
	b.Close()

	if b.Push(3) {
		t.Error("Push accepted after Close")
	}
	if v, ok := b.Pop(); !ok || v != 1 {
		t.Errorf("Pop = %d,%v, want 1,true", v, ok)
	}
	if v, ok := b.Pop(); !ok || v != 2 {
		t.Errorf("Pop = %d,%v, want 2,true", v, ok)
	}
	if _, ok := b.Pop(); ok {
		t.Error("Pop returned item after close and drain")
	}
}

func TestPopUnblocksOnClose(t *testing.T) {
	b := New[int](1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := b.Pop(); ok {
			t.Error("blocked Pop returned an item")
		}
	}()
	b.Close()
	<-done
}

func TestConcurrentPushPop(t *testing.T) {
	const producers, perProducer = 4, 250
	b := New[int](8)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Push(i)
			}
		}()
	}
	go func() {
		wg.Wait()
		b.Close()
	}()

	received := 0
	for {
		if _, ok := b.Pop(); !ok {
			break
		}
		received++
	}
	if received != producers*perProducer {
		t.Errorf("received %d items, want %d", received, producers*perProducer)
	}
}
