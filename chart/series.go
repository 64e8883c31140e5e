package chart

import (
	"sync"
)

// ring is a bounded, ordered series buffer. Appending past capacity
// overwrites the oldest entry, so the buffer always holds the most recent
// entries in insertion order.
type ring[T any] struct {
	data  []T
	start int
	count int
	mtx   sync.RWMutex
}

// newRing initializes a ring with the provided capacity.
func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{
		data: make([]T, capacity),
	}
}

// append adds the provided entry, evicting the oldest entry when the ring is
// at capacity.
func (r *ring[T]) append(entry T) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	size := len(r.data)
	end := (r.start + r.count) % size
	r.data[end] = entry

	if r.count == size {
		// Overwrite the oldest entry when the ring is at capacity.
		r.start = (r.start + 1) % size
	} else {
		r.count++
	}
}

// all returns a copy of the ring's entries, oldest first.
func (r *ring[T]) all() []T {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	set := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		set[i] = r.data[(r.start+i)%len(r.data)]
	}

	return set
}

// last returns the most recently appended entry.
func (r *ring[T]) last() (T, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}

	end := (r.start + r.count - 1) % len(r.data)
	return r.data[end], true
}

// len returns the number of entries currently held.
func (r *ring[T]) len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	return r.count
}

// clear empties the ring.
func (r *ring[T]) clear() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.start = 0
	r.count = 0
}
