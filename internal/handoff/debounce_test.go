package handoff

import (
	"sync"
	"testing"
	"time"
)

func TestDebounceCoalescesRapidTriggers(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)

	var mu sync.Mutex
	calls := 0
	fire := func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	d.trigger("s1", fire)
	time.Sleep(10 * time.Millisecond)
	d.trigger("s1", fire)
	time.Sleep(10 * time.Millisecond)
	d.trigger("s1", fire)

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (three rapid triggers should coalesce)", calls)
	}
}

func TestDebounceKeysAreIndependent(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)

	var mu sync.Mutex
	seen := map[string]int{}
	fire := func(key string) {
		mu.Lock()
		seen[key]++
		mu.Unlock()
	}

	d.trigger("s1", func() { fire("s1") })
	d.trigger("s2", func() { fire("s2") })

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if seen["s1"] != 1 || seen["s2"] != 1 {
		t.Fatalf("seen = %v, want both keys fired exactly once", seen)
	}
}

func TestStopAllCancelsPendingTimers(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)

	fired := false
	d.trigger("s1", func() { fired = true })
	d.stopAll()

	time.Sleep(60 * time.Millisecond)
	if fired {
		t.Fatal("stopAll should have cancelled the pending trigger")
	}
}
