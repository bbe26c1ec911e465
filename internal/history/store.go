package history

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/bashautom/internal/shared/id"
	"github.com/GriffinCanCode/bashautom/internal/shell"
)

// DefaultCapacity is the per-session ring size used for capacities <= 0.
const DefaultCapacity = 100

// Store holds one ring per session.
type Store struct {
	capacity int

	mu    sync.RWMutex
	rings map[string]*Ring
}

// NewStore creates a store whose rings hold capacity entries each.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[string]*Ring),
	}
}

// Record stores a copy of res under session.
func (s *Store) Record(session string, res *shell.CommandResult) {
	if res == nil {
		return
	}
	s.ring(session).Add(Entry{
		ID:         id.NewCommandID().String(),
		Session:    session,
		RecordedAt: time.Now(),
		Result:     *res,
	})
}

// Hook returns a shell.ResultHook that records into the store.
func (s *Store) Hook() shell.ResultHook {
	return s.Record
}

// Get returns up to limit of the newest entries of session, oldest first.
// limit <= 0 returns all held entries.
func (s *Store) Get(session string, limit int) []Entry {
	s.mu.RLock()
	r, ok := s.rings[session]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.Last(limit)
}

// All returns every held entry across sessions in record order.
func (s *Store) All() []Entry {
	s.mu.RLock()
	rings := make([]*Ring, 0, len(s.rings))
	for _, r := range s.rings {
		rings = append(rings, r)
	}
	s.mu.RUnlock()

	var out []Entry
	for _, r := range rings {
		out = append(out, r.All()...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Sessions returns the names with recorded history, in order.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.rings))
	for name := range s.rings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Forget drops the history of session.
func (s *Store) Forget(session string) {
	s.mu.Lock()
	delete(s.rings, session)
	s.mu.Unlock()
}

func (s *Store) ring(session string) *Ring {
	s.mu.RLock()
	r, ok := s.rings[session]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rings[session]; !ok {
		r = NewRing(s.capacity)
		s.rings[session] = r
	}
	return r
}
