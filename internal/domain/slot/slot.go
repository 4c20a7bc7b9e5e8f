// Package slot holds the identity most recently recognized by the detection loop.
//
// The loop is the only writer. Mark requests read it concurrently. There is
// no history: a read returns whatever the last completed cycle published.
package slot

import "sync"

// Slot is a guarded single-value holder.
type Slot struct {
	mu       sync.RWMutex
	cycle    uint64
	personID int
	ok       bool
}

// New returns an empty slot.
func New() *Slot {
	return &Slot{}
}

// Publish stores the result of cycle. Writes for a cycle not newer than the
// last published one are ignored and reported as false.
func (s *Slot) Publish(cycle uint64, personID int, ok bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cycle <= s.cycle {
		return false
	}
	s.cycle = cycle
	s.personID = personID
	s.ok = ok
	if !ok {
		s.personID = 0
	}
	return true
}

// Read returns the last published person, or ok=false when the last cycle
// had no confident match.
func (s *Slot) Read() (personID int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.personID, s.ok
}

// Cycle returns the number of the last published cycle.
func (s *Slot) Cycle() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle
}
