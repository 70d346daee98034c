package timeline

import (
	"sync"
	"sync/atomic"
)

// Store holds the current timeline. Writers swap in a whole new graph, so a
// reader never observes a partially applied change.
type Store struct {
	current atomic.Pointer[Timeline]
	version atomic.Uint64

	mu   sync.Mutex
	subs []func(Timeline, uint64)
}

func NewStore(tl Timeline) *Store {
	s := &Store{}
	c := tl.Clone()
	s.current.Store(&c)
	return s
}

// Snapshot returns a private copy of the current timeline.
func (s *Store) Snapshot() Timeline {
	return s.current.Load().Clone()
}

// Duration returns the timeline window length without copying the graph.
func (s *Store) Duration() float64 {
	return s.current.Load().Duration
}

func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Replace installs tl as the current timeline.
func (s *Store) Replace(tl Timeline) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swap(tl)
}

// Update applies fn to a copy of the current timeline and installs the result.
func (s *Store) Update(fn func(Timeline) Timeline) Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.current.Load().Clone())
	s.swap(next)
	return next.Clone()
}

// ReplaceLayer swaps a single layer by id.
func (s *Store) ReplaceLayer(l Layer) {
	s.Update(func(tl Timeline) Timeline {
		return tl.WithLayer(l)
	})
}

// Subscribe registers fn to run after every replacement. Callbacks run with
// the writer lock held and must not write to the store.
func (s *Store) Subscribe(fn func(Timeline, uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) swap(tl Timeline) uint64 {
	c := tl.Clone()
	s.current.Store(&c)
	v := s.version.Add(1)
	for _, fn := range s.subs {
		fn(c.Clone(), v)
	}
	return v
}
