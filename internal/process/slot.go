package process

import "sync"

// Slot holds the single current Handle of a session. Only the supervisor
// replaces it; everyone else reads it to drop events from superseded
// children.
type Slot struct {
	mu      sync.RWMutex
	current Handle
}

// Current returns the installed Handle, or nil.
func (s *Slot) Current() Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace installs h and returns the Handle it superseded.
func (s *Slot) Replace(h Handle) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current
	s.current = h
	return old
}

// Is reports whether h is the installed Handle.
func (s *Slot) Is(h Handle) bool {
	if h == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.ID() == h.ID()
}
