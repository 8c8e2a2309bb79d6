package history

// LockEntries reports how many per-user locks are currently tracked.
func (s *Store) LockEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
