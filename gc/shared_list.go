package gc

import "sync"

// sharedObjectList is the collector-published counterpart of objectList:
// mutex-guarded rather than lock-free, since every mutation here already
// happens behind a phase-boundary handshake (poll_for_sync, detach, or the
// collector's own sweep pass) rather than on a hot allocation path, so a
// plain mutex is simpler than replicating atomiclist's CAS-retry shape for
// no measurable benefit.
type sharedObjectList[H ~uint64] struct {
	mu sync.Mutex
	l  objectList[H]
}

// Take atomically detaches and returns the entire list.
func (s *sharedObjectList[H]) Take() *objectList[H] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := (&objectList[H]{}).Init()
	out.Append(&s.l)
	return out
}

// VacateAndAppend merges contribution into the shared list.
func (s *sharedObjectList[H]) VacateAndAppend(contribution *objectList[H]) {
	if contribution.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.Append(contribution)
}

func (s *sharedObjectList[H]) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Empty()
}
