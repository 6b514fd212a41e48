package throttle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"treacle/internal/throttle"
)

func TestAcquire_Unlimited(t *testing.T) {
	for _, ceiling := range []int{0, -1} {
		lim := throttle.New(ceiling)
		if !lim.Unlimited() {
			t.Errorf("New(%d).Unlimited() = false, want true", ceiling)
		}
		if lim.Burst() != 0 {
			t.Errorf("New(%d).Burst() = %d, want 0", ceiling, lim.Burst())
		}
		start := time.Now()
		if err := lim.Acquire(context.Background(), 10_000_000); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("unlimited Acquire took %v, want immediate", elapsed)
		}
	}
}

func TestAcquire_RateLowerBound(t *testing.T) {
	// Acquiring N bytes at ceiling C takes at least (N-burst)/C seconds:
	// the initial burst is free, everything after refills at C per second.
	const ceiling = 64_000
	const total = 2 * ceiling
	lim := throttle.New(ceiling)

	start := time.Now()
	for sent := 0; sent < total; sent += 1000 {
		if err := lim.Acquire(context.Background(), 1000); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	want := time.Duration(float64(total-ceiling)/ceiling*float64(time.Second)) - 100*time.Millisecond
	if elapsed < want {
		t.Errorf("acquired %d bytes at %d B/s in %v, want >= %v", total, ceiling, elapsed, want)
	}
}

func TestAcquire_OversizedRequest(t *testing.T) {
	// A single request larger than one second's budget is split internally:
	// it waits proportionally longer but never errors or deadlocks.
	const ceiling = 40_000
	const n = 100_000
	lim := throttle.New(ceiling)

	start := time.Now()
	if err := lim.Acquire(context.Background(), n); err != nil {
		t.Fatalf("Acquire(%d) error = %v", n, err)
	}
	elapsed := time.Since(start)

	want := time.Duration(float64(n-ceiling)/ceiling*float64(time.Second)) - 100*time.Millisecond
	if elapsed < want {
		t.Errorf("Acquire(%d) at %d B/s took %v, want >= %v", n, ceiling, elapsed, want)
	}
}

func TestAcquire_ConcurrentSharedCeiling(t *testing.T) {
	// Concurrent callers drawing from one limiter stay within the aggregate
	// ceiling: total grants over the run never beat the refill rate.
	const ceiling = 50_000
	lim := throttle.New(ceiling)

	// Use up the free initial burst so the clock below measures refill only.
	if err := lim.Acquire(context.Background(), ceiling); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sent := 0; sent < ceiling/4; sent += 500 {
				if err := lim.Acquire(context.Background(), 500); err != nil {
					t.Errorf("Acquire() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// 4 goroutines moved one second's worth of bytes combined.
	if want := 900 * time.Millisecond; elapsed < want {
		t.Errorf("concurrent acquires finished in %v, want >= %v (shared ceiling)", elapsed, want)
	}
}

func TestAcquire_ContextCancel(t *testing.T) {
	lim := throttle.New(100)
	// Drain the burst so the next acquire must wait.
	if err := lim.Acquire(context.Background(), 100); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lim.Acquire(ctx, 100)
	if err == nil {
		t.Fatal("Acquire() with expired context returned nil, want error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancelled Acquire returned after %v, want prompt abort", elapsed)
	}
}

func TestAcquire_NegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Acquire(-1) did not panic")
		}
	}()
	throttle.New(1000).Acquire(context.Background(), -1)
}
