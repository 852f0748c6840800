package loader

import "sync"

// State is the last committed render state. Results are only committed when
// they were issued for the level that is still active.
type State struct {
	mu        sync.RWMutex
	active    int
	committed Result
	has       bool
}

// ActiveLevel returns the level new refreshes should target.
func (s *State) ActiveLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActiveLevel switches the active level and reports whether it changed.
func (s *State) SetActiveLevel(level int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == level {
		return false
	}
	s.active = level
	return true
}

// Commit stores r if r.Level is still the active level. It reports whether r
// was applied; a false return means r is stale and was dropped.
func (s *State) Commit(r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Level != s.active {
		return false
	}
	s.committed = r
	s.has = true
	return true
}

// Snapshot returns the committed result. ok is false before the first commit.
func (s *State) Snapshot() (r Result, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed, s.has
}

// Current returns the committed result only when it belongs to the active
// level, so a level switch blanks the grid until the new level lands.
func (s *State) Current() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.has || s.committed.Level != s.active {
		return Result{}, false
	}
	return s.committed, true
}
