package keymutex

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_LockUnlock_ReleasesEntry(t *testing.T) {
	r := New()
	h := r.Lock("k")
	if r.Len() != 1 {
		t.Fatalf("expected 1 tracked key while held, got %d", r.Len())
	}
	r.Unlock("k", h)
	if r.Len() != 0 {
		t.Fatalf("expected 0 tracked keys after unlock, got %d", r.Len())
	}
}

func TestRegistry_SerializesSameKey(t *testing.T) {
	r := New()
	var counter int32
	var maxConcurrent int32
	var wg sync.WaitGroup

	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			h := r.Lock("shared")
			cur := atomic.AddInt32(&counter, 1)
			for {
				m := atomic.LoadInt32(&maxConcurrent)
				if cur <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&counter, -1)
			r.Unlock("shared", h)
		}()
	}
	wg.Wait()

	if maxConcurrent != 1 {
		t.Fatalf("expected mutual exclusion on the same key, saw %d concurrent holders", maxConcurrent)
	}
	if r.Len() != 0 {
		t.Fatalf("expected registry to drain to 0, got %d", r.Len())
	}
}

func TestRegistry_DistinctKeysDoNotBlockEachOther(t *testing.T) {
	r := New()
	h1 := r.Lock("a")
	done := make(chan struct{})
	go func() {
		h2 := r.Lock("b")
		r.Unlock("b", h2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a distinct key should not block on an unrelated held key")
	}
	r.Unlock("a", h1)
}

func TestRegistry_ConcurrentDistinctKeysLeaveNoResidue(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%26))
			h := r.Lock(key)
			r.Unlock(key, h)
		}(i)
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("expected registry to drain to 0, got %d", r.Len())
	}
}
