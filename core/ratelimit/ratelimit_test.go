package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDoEnforcesGapBetweenCalls(t *testing.T) {
	interval := 50 * time.Millisecond
	l := New(interval)
	ctx := context.Background()

	var ends, starts []time.Time
	for i := 0; i < 3; i++ {
		err := l.Do(ctx, "k", func(ctx context.Context) error {
			starts = append(starts, time.Now())
			time.Sleep(5 * time.Millisecond)
			ends = append(ends, time.Now())
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// The gap is measured end-of-call to start-of-next.
	for i := 1; i < 3; i++ {
		if gap := starts[i].Sub(ends[i-1]); gap < interval {
			t.Errorf("gap %d = %v, expected >= %v", i, gap, interval)
		}
	}
}

func TestDoSerializesConcurrentCallers(t *testing.T) {
	interval := 20 * time.Millisecond
	l := New(interval)
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(ctx, "k", func(ctx context.Context) error {
				mu.Lock()
				stamps = append(stamps, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if len(stamps) != 4 {
		t.Fatalf("%d calls ran", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < interval {
			t.Errorf("concurrent gap %d = %v, expected >= %v", i, gap, interval)
		}
	}
}

func TestDoCancelledContext(t *testing.T) {
	l := New(time.Minute)
	ctx := context.Background()

	// First call records an end time so the second has to wait.
	if err := l.Do(ctx, "k", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	ran := false
	err := l.Do(cctx, "k", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != context.DeadlineExceeded {
		t.Fatalf("err = %v, expected deadline exceeded", err)
	}
	if ran {
		t.Error("function ran despite cancelled wait")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(time.Minute)
	ctx := context.Background()

	if err := l.Do(ctx, "a", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.Do(ctx, "b", func(ctx context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("call for a different key blocked on the first key's interval")
	}
}
