package history

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/bashautom/internal/shell"
)

// Entry is one recorded command result.
type Entry struct {
	ID         string              `json:"id"`
	Session    string              `json:"session"`
	RecordedAt time.Time           `json:"recorded_at"`
	Result     shell.CommandResult `json:"result"`
}

// Ring is a fixed-capacity circular buffer of entries.
type Ring struct {
	mu       sync.RWMutex
	buf      []Entry
	capacity int
	pos      int // next write position
	full     bool
	total    uint64
}

// NewRing creates a ring with the given capacity. Capacities below one are
// raised to one.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf:      make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest once full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.pos] = e
	r.pos = (r.pos + 1) % r.capacity
	if r.pos == 0 {
		r.full = true
	}
	r.total++
}

// All returns the entries oldest first.
func (r *Ring) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Entry, r.pos)
		copy(out, r.buf[:r.pos])
		return out
	}

	out := make([]Entry, r.capacity)
	copy(out, r.buf[r.pos:])
	copy(out[r.capacity-r.pos:], r.buf[:r.pos])
	return out
}

// Last returns up to n of the newest entries, oldest first. n <= 0 returns
// everything.
func (r *Ring) Last(n int) []Entry {
	all := r.All()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Len returns the number of entries held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.capacity
	}
	return r.pos
}

// Total returns how many entries were ever added, evicted ones included.
func (r *Ring) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}
