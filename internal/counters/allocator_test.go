package counters_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/dantte-lp/counterd/internal/counters"
)

// TestIDAllocatorLowestFree verifies that ids are minted in ascending order
// and that released ids are reused lowest first.
func TestIDAllocatorLowestFree(t *testing.T) {
	t.Parallel()

	alloc := counters.NewIDAllocator(16)

	for want := range int32(5) {
		got, err := alloc.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != want {
			t.Fatalf("Allocate() = %d, want %d", got, want)
		}
	}

	alloc.Release(3)
	alloc.Release(1)

	for _, want := range []int32{1, 3, 5} {
		got, err := alloc.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != want {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}

	if alloc.InUse() != 6 {
		t.Errorf("InUse() = %d, want 6", alloc.InUse())
	}
}

// TestIDAllocatorReleaseTail verifies that releasing the highest ids lets
// them be minted again in order.
func TestIDAllocatorReleaseTail(t *testing.T) {
	t.Parallel()

	alloc := counters.NewIDAllocator(8)
	for range 4 {
		if _, err := alloc.Allocate(); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}

	alloc.Release(2)
	alloc.Release(3)
	alloc.Release(1)

	if alloc.InUse() != 1 {
		t.Fatalf("InUse() = %d, want 1", alloc.InUse())
	}
	for _, id := range []int32{1, 2, 3} {
		if alloc.IsAllocated(id) {
			t.Errorf("IsAllocated(%d) = true after release", id)
		}
	}

	got, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != 1 {
		t.Errorf("Allocate() = %d, want 1", got)
	}
}

func TestIDAllocatorExhausted(t *testing.T) {
	t.Parallel()

	alloc := counters.NewIDAllocator(2)
	for range 2 {
		if _, err := alloc.Allocate(); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}

	if _, err := alloc.Allocate(); !errors.Is(err, counters.ErrIDExhausted) {
		t.Fatalf("Allocate() err = %v, want ErrIDExhausted", err)
	}

	alloc.Release(0)
	if got, err := alloc.Allocate(); err != nil || got != 0 {
		t.Errorf("Allocate() after release = %d, %v; want 0, nil", got, err)
	}
}

func TestIDAllocatorReleaseUnknown(t *testing.T) {
	t.Parallel()

	alloc := counters.NewIDAllocator(4)
	id, err := alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	alloc.Release(-1)
	alloc.Release(3)
	alloc.Release(id)
	alloc.Release(id)

	if alloc.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", alloc.InUse())
	}
}

// TestIDAllocatorConcurrent verifies that concurrent allocations never hand
// out the same id twice.
func TestIDAllocatorConcurrent(t *testing.T) {
	t.Parallel()

	const (
		goroutines = 8
		perWorker  = 64
	)

	alloc := counters.NewIDAllocator(goroutines * perWorker)
	results := make(chan int32, goroutines*perWorker)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range perWorker {
				id, err := alloc.Allocate()
				if err != nil {
					t.Errorf("Allocate: %v", err)
					return
				}
				results <- id
			}
		})
	}
	wg.Wait()
	close(results)

	seen := make(map[int32]struct{}, goroutines*perWorker)
	for id := range results {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != goroutines*perWorker {
		t.Errorf("allocated %d ids, want %d", len(seen), goroutines*perWorker)
	}
}
