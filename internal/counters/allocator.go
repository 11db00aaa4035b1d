package counters

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrIDExhausted indicates every counter id up to the allocator's limit is
// in use.
var ErrIDExhausted = errors.New("counter id allocator exhausted")

// IDAllocator hands out counter ids in the range [0, limit). Allocate always
// returns the lowest id not currently in use, so ids freed by Release are
// reused before new ones are minted. Thread-safe via sync.Mutex.
type IDAllocator struct {
	mu    sync.Mutex
	limit int32
	next  int32
	free  []int32 // sorted ascending, all < next
}

// NewIDAllocator creates an allocator for at most limit concurrent ids.
func NewIDAllocator(limit int32) *IDAllocator {
	return &IDAllocator{limit: limit}
}

// Allocate returns the lowest free id. Returns ErrIDExhausted when limit ids
// are in use.
func (a *IDAllocator) Allocate() (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) > 0 {
		id := a.free[0]
		a.free = a.free[1:]
		return id, nil
	}

	if a.next >= a.limit {
		return 0, fmt.Errorf("allocate counter id (limit %d): %w", a.limit, ErrIDExhausted)
	}

	id := a.next
	a.next++
	return id, nil
}

// Release returns id to the allocator. Releasing an id that is not
// allocated is a no-op.
func (a *IDAllocator) Release(id int32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id < 0 || id >= a.next {
		return
	}

	pos, found := slices.BinarySearch(a.free, id)
	if found {
		return
	}

	// Releasing the highest id shrinks the minted range instead of growing
	// the free list.
	if id == a.next-1 {
		a.next--
		for n := len(a.free); n > 0 && a.free[n-1] == a.next-1; n-- {
			a.free = a.free[:n-1]
			a.next--
		}
		return
	}

	a.free = slices.Insert(a.free, pos, id)
}

// IsAllocated reports whether id is currently in use.
func (a *IDAllocator) IsAllocated(id int32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id < 0 || id >= a.next {
		return false
	}
	_, found := slices.BinarySearch(a.free, id)
	return !found
}

// InUse returns the number of allocated ids.
func (a *IDAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return int(a.next) - len(a.free)
}
