package spsc

import (
	"sync"
	"testing"
)

func TestQueuePushPopOrder(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) failed, want success", i)
		}
	}
	if q.Push(99) {
		t.Fatalf("Push on full queue succeeded, want false")
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("Pop on empty queue succeeded, want false")
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const n = 100000
	q := New[int](64)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !q.Push(i) {
			}
		}
	}()

	received := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(received) < n {
			v, ok := q.Pop()
			if !ok {
				continue
			}
			received = append(received, v)
		}
	}()

	wg.Wait()

	for i, v := range received {
		if v != i {
			t.Fatalf("received[%d] = %d, want %d (out of order)", i, v, i)
		}
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1000: 1024}
	for in, want := range cases {
		if got := nextPowerOfTwo(in); got != want {
			t.Fatalf("nextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}
