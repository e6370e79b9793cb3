package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// A mixed workload of concurrent write/read/delete/fetch on random keys
// across several namespaces. Should pass under -race without reports.
func TestRace_MixedWorkload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShardCount = 16
	cfg.MaxBytes = 1 << 20
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	namespaces := []string{"", "alpha", "beta"}
	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 2000
	deadline := time.Now().Add(500 * time.Millisecond)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				ns := namespaces[r.Intn(len(namespaces))]
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4:
					c.Delete(ctx, k, ns)
				case 5, 6, 7, 8, 9:
					ttl := time.Duration(10+r.Intn(20)) * time.Millisecond
					_ = c.Write(ctx, k, "x", &ttl, ns)
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19:
					_ = c.Write(ctx, k, "x", nil, ns)
				case 20, 21:
					_, _ = c.Fetch(ctx, k, ns, nil, false, true, func(context.Context) (any, error) {
						return "loaded", nil
					})
				default:
					_, _, _ = c.Read(ctx, k, ns)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// One hundred goroutines call Fetch on the same absent key concurrently.
// The loader must run exactly once (singleflight coalescing).
func TestRace_FetchSingleflight(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	var calls int32
	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.Fetch(ctx, key, "", nil, false, true, func(context.Context) (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(2 * time.Millisecond)
				return "v:" + key, nil
			})
			if err != nil {
				t.Errorf("fetch error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("loader should run exactly once, got %d", got)
	}
}
