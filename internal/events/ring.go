package events

import "sync"

// ring keeps the last size values added.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	pos   int
	count int
}

func newRing[T any](size int) *ring[T] {
	if size <= 0 {
		size = 1
	}
	return &ring[T]{items: make([]T, size)}
}

func (r *ring[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.pos] = v
	r.pos = (r.pos + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// last returns up to n of the newest values accepted by keep (all when nil),
// oldest first.
func (r *ring[T]) last(n int, keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.count == 0 {
		return nil
	}

	size := len(r.items)
	var out []T
	for i := 1; i <= r.count && len(out) < n; i++ {
		v := r.items[(r.pos-i+size)%size]
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	// Collected newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
