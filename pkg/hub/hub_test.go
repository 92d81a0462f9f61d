package hub

import (
	"sync"
	"testing"
	"time"
)

func drain(t *testing.T, sub *Subscriber[int], n int) []int {
	t.Helper()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		select {
		case v := <-sub.Events():
			out = append(out, v)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Expected %d items, got %d", n, len(out))
		}
	}
	return out
}

func TestReplayThenLive(t *testing.T) {
	h := New[int](200, 0)
	for i := 0; i < 5; i++ {
		h.Publish(i)
	}

	sub := h.Subscribe()
	h.Publish(5)
	h.Publish(6)

	got := drain(t, sub, 7)
	for i, v := range got {
		if v != i {
			t.Errorf("Expected item %d at position %d, got %d", i, i, v)
		}
	}

	select {
	case v := <-sub.Events():
		t.Errorf("Expected no more items, got %d", v)
	default:
	}
}

func TestBufferEviction(t *testing.T) {
	h := New[int](3, 0)
	for i := 0; i < 4; i++ {
		h.Publish(i)
	}

	backlog := h.Backlog()
	if len(backlog) != 3 {
		t.Fatalf("Expected backlog of 3, got %d", len(backlog))
	}
	for i, v := range backlog {
		if v != i+1 {
			t.Errorf("Expected oldest evicted, backlog[%d] = %d, want %d", i, v, i+1)
		}
	}
}

func TestReplayLimit(t *testing.T) {
	h := New[int](1000, 50)
	for i := 0; i < 80; i++ {
		h.Publish(i)
	}

	sub := h.Subscribe()
	got := drain(t, sub, 50)
	if got[0] != 30 || got[49] != 79 {
		t.Errorf("Expected replay of items 30..79, got %d..%d", got[0], got[49])
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New[int](10, 0)
	sub := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", h.Subscribers())
	}
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	if h.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", h.Subscribers())
	}
}

func TestDeadSubscriberCleanup(t *testing.T) {
	h := New[int](4, 0)
	stuck := h.Subscribe()
	live := h.Subscribe()
	_ = stuck

	// The stuck subscriber never reads; once its channel fills, a
	// publish pass must drop it without blocking. The live subscriber
	// is drained after every publish so it stays registered.
	for i := 0; i < 50; i++ {
		h.Publish(i)
		select {
		case <-live.Events():
		case <-time.After(100 * time.Millisecond):
			t.Fatal("live subscriber starved")
		}
	}

	if h.Subscribers() != 1 {
		t.Errorf("Expected stuck subscriber removed, registry size = %d", h.Subscribers())
	}

	// Further publishes must not panic or block.
	h.Publish(99)
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	h := New[int](200, 0)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Publish(base + i)
			}
		}(w * 1000)
	}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				sub := h.Subscribe()
				h.Unsubscribe(sub)
			}
		}()
	}
	wg.Wait()

	if got := len(h.Backlog()); got != 200 {
		t.Errorf("Expected full backlog of 200 after 400 publishes, got %d", got)
	}
}

func TestSubscriberOrdering(t *testing.T) {
	h := New[int](100, 0)
	sub := h.Subscribe()
	for i := 0; i < 100; i++ {
		h.Publish(i)
	}
	got := drain(t, sub, 100)
	for i, v := range got {
		if v != i {
			t.Fatalf("Delivery out of order at %d: got %d", i, v)
		}
	}
}
