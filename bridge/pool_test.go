package bridge

import (
	"sync"
	"testing"
)

func TestPoolRegisterAndResolve(t *testing.T) {
	pool := NewPool()

	id, waiter := pool.Register()
	if len(id) != idLength {
		t.Fatalf("Expected %d-char id, got %d: %q", idLength, len(id), id)
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			t.Fatalf("Expected alphanumeric id, got %q", id)
		}
	}

	if !pool.Resolve(id, Outcome{Payload: map[string]any{"round": float64(1)}}) {
		t.Fatal("Expected resolve to deliver to waiter")
	}

	outcome := <-waiter
	if outcome.Err != "" {
		t.Fatalf("Expected success outcome, got err %q", outcome.Err)
	}
	if outcome.Payload["round"] != float64(1) {
		t.Errorf("Unexpected payload: %v", outcome.Payload)
	}
	if pool.PendingCount() != 0 {
		t.Errorf("Expected empty pool after resolve, got %d pending", pool.PendingCount())
	}
}

func TestPoolResolveExactlyOnce(t *testing.T) {
	pool := NewPool()
	id, waiter := pool.Register()

	const attempts = 16
	var wg sync.WaitGroup
	delivered := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			delivered <- pool.Resolve(id, Outcome{Payload: map[string]any{"attempt": n}})
		}(i)
	}
	wg.Wait()
	close(delivered)

	successes := 0
	for ok := range delivered {
		if ok {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("Expected exactly one successful resolution, got %d", successes)
	}

	select {
	case <-waiter:
	default:
		t.Fatal("Expected waiter to have received the outcome")
	}
	select {
	case extra := <-waiter:
		t.Fatalf("Expected single delivery, got second outcome %v", extra)
	default:
	}
}

func TestPoolResolveUnknownID(t *testing.T) {
	pool := NewPool()
	if pool.Resolve("nosuchid", Outcome{Err: "late"}) {
		t.Error("Expected resolve of unknown id to be a no-op")
	}
}

func TestPoolAbandon(t *testing.T) {
	pool := NewPool()
	id, _ := pool.Register()

	pool.Abandon(id)
	if pool.PendingCount() != 0 {
		t.Fatalf("Expected empty pool after abandon, got %d pending", pool.PendingCount())
	}
	if pool.Resolve(id, Outcome{Err: "late"}) {
		t.Error("Expected resolve after abandon to be a no-op")
	}
}

func TestRequestIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := newRequestID()
		if seen[id] {
			t.Fatalf("Duplicate request id generated: %q", id)
		}
		seen[id] = true
	}
}
