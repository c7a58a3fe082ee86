package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestLockTableExclusive(t *testing.T) {
	locks := NewLockTable()
	if !locks.Acquire("a1", "r1") {
		t.Fatal("first acquire must succeed")
	}
	if locks.Acquire("a1", "r2") {
		t.Fatal("second acquire must fail while held")
	}
	if locks.Acquire("a1", "r1") {
		t.Fatal("re-acquire by the holder must also fail")
	}
	holder, held := locks.Holder("a1")
	if !held || holder != "r1" {
		t.Fatalf("expected holder r1 got %q held=%v", holder, held)
	}

	locks.Release("a1")
	if _, held := locks.Holder("a1"); held {
		t.Fatal("lock still held after release")
	}
	if !locks.Acquire("a1", "r2") {
		t.Fatal("acquire after release must succeed")
	}
}

func TestLockTableConcurrentSingleWinner(t *testing.T) {
	locks := NewLockTable()
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if locks.Acquire("a1", "r") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner got %d", wins)
	}
}

func TestLockTableReleaseStale(t *testing.T) {
	locks := NewLockTable()
	locks.Acquire("old", "r1")
	locks.Acquire("fresh", "r2")
	locks.Acquire("done", "r3")
	locks.MarkAccepted("done")

	now := time.Now().Add(time.Minute)
	stale := locks.ReleaseStale(30*time.Second, now)
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale locks got %d", len(stale))
	}
	for _, s := range stale {
		if s.AlertID == "done" {
			t.Fatal("accepted lock must not be reclaimed")
		}
	}
	if _, held := locks.Holder("done"); !held {
		t.Fatal("accepted lock was dropped")
	}
	if _, held := locks.Holder("old"); held {
		t.Fatal("stale lock still held")
	}
}

func TestLockTableZeroLeaseDisablesReclaim(t *testing.T) {
	locks := NewLockTable()
	locks.Acquire("a1", "r1")
	if got := locks.ReleaseStale(0, time.Now().Add(time.Hour)); got != nil {
		t.Fatalf("zero lease must not reclaim, got %v", got)
	}
}
