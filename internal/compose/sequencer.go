package compose

import "sync"

// Ticket identifies one composition attempt for a key.
type Ticket struct {
	Key        string
	Generation uint64
}

// Sequencer hands out increasing generations per key so that a slow
// composition finishing after a newer one started can be discarded. Keys
// are forgotten once their newest attempt is done.
type Sequencer struct {
	mu   sync.Mutex
	next uint64
	gens map[string]uint64
}

// NewSequencer creates an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{gens: make(map[string]uint64)}
}

// Begin starts a new generation for key, superseding any in flight.
// Generations are unique across keys so a pruned key never reissues one.
func (s *Sequencer) Begin(key string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.gens[key] = s.next
	return Ticket{Key: key, Generation: s.next}
}

// Current reports whether t is still the newest generation for its key.
func (s *Sequencer) Current(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[t.Key] == t.Generation
}

// Done releases t. The key is dropped when t is its newest generation.
func (s *Sequencer) Done(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[t.Key] == t.Generation {
		delete(s.gens, t.Key)
	}
}

// Len returns the number of keys with an attempt in flight.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gens)
}
