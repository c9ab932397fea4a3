package queue

import (
	"context"
	"testing"
	"time"
)

func TestLossyDropOldest(t *testing.T) {
	const capacity = 4
	const extra = 3
	q := NewLossy[int](capacity)

	for i := 0; i < capacity+extra; i++ {
		q.Push(i)
	}

	if got := q.Dropped(); got != extra {
		t.Fatalf("Dropped() = %d, want %d", got, extra)
	}
	if got := q.Len(); got != capacity {
		t.Fatalf("Len() = %d, want %d", got, capacity)
	}

	snap := q.Snapshot()
	for i, v := range snap {
		want := extra + i
		if v != want {
			t.Fatalf("Snapshot()[%d] = %d, want %d", i, v, want)
		}
	}
}

func TestLossyPopOrder(t *testing.T) {
	q := NewLossy[string](2)
	q.Push("a")
	q.Push("b")
	q.Push("c") // evicts "a"

	ctx := context.Background()
	v, ok := q.Pop(ctx)
	if !ok || v != "b" {
		t.Fatalf("Pop() = %q, %v, want b, true", v, ok)
	}
	v, ok = q.Pop(ctx)
	if !ok || v != "c" {
		t.Fatalf("Pop() = %q, %v, want c, true", v, ok)
	}
}

func TestLossyPopBlocksThenDelivers(t *testing.T) {
	q := NewLossy[int](1)
	ctx := context.Background()

	result := make(chan int, 1)
	go func() {
		v, ok := q.Pop(ctx)
		if !ok {
			return
		}
		result <- v
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-result:
		if v != 42 {
			t.Fatalf("Pop() delivered %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() never returned after Push")
	}
}

func TestLossyPopContextCancel(t *testing.T) {
	q := NewLossy[int](1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Pop(ctx)
		if ok {
			t.Error("Pop() returned ok=true after context cancel")
		}
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop() did not return after context cancellation")
	}
}

func TestLossyCloseDrainsThenStops(t *testing.T) {
	q := NewLossy[int](2)
	q.Push(1)
	q.Close()

	ctx := context.Background()
	v, ok := q.Pop(ctx)
	if !ok || v != 1 {
		t.Fatalf("Pop() after Close = %d, %v, want 1, true", v, ok)
	}

	_, ok = q.Pop(ctx)
	if ok {
		t.Fatal("Pop() after drain of closed queue returned ok=true")
	}

	q.Push(99)
	if q.Len() != 0 {
		t.Fatal("Push() after Close should be a no-op")
	}
}

func TestLossyZeroCapacityTreatedAsOne(t *testing.T) {
	q := NewLossy[int](0)
	q.Push(1)
	q.Push(2)
	if got := q.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if got := q.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}
