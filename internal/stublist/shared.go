package stublist

import "sync/atomic"

// Shared is the shared-inventory counterpart of List: an atomically
// exchanged *List used for small_used_lists[i] / small_free_lists[i]
// (spec.md §3). It implements the same vacate-and-append primitive as
// atomiclist.Shared (see that package's doc comment for why the retry must
// always operate on freshly-displaced data, never on the chain most
// recently published) — duplicated here rather than shared generically
// because stubs are held in an intrusive doubly linked List, not a generic
// singly linked Node[T] chain.
type Shared struct {
	ptr atomic.Pointer[List]
}

// exchange installs l as the shared content and returns whatever it
// displaced. l is left empty (its ownership transfers to the shared slot).
func (s *Shared) exchange(l *List) *List {
	l.lazyInit()
	old := s.ptr.Swap(l)
	if old == nil {
		return (&List{}).Init()
	}
	return old
}

// Take atomically removes and returns the entire shared list, leaving the
// shared slot empty.
func (s *Shared) Take() *List {
	return s.exchange((&List{}).Init())
}

// VacateAndAppend publishes contribution's stubs into the shared list,
// merging in whatever was already there, preserving each contributor's
// internal order and losing nothing to concurrent publishers.
func (s *Shared) VacateAndAppend(contribution *List) {
	if contribution.Empty() {
		return
	}
	displaced := s.Take()
	for {
		if !displaced.Empty() {
			contribution.Append(displaced)
		}
		prior := s.exchange(contribution)
		if prior.Empty() {
			return
		}
		displaced = s.Take()
		contribution = prior
	}
}

// Empty reports whether the shared list currently holds no stubs. Racy by
// nature — meant for diagnostics, not control flow.
func (s *Shared) Empty() bool {
	p := s.ptr.Load()
	return p == nil || p.Empty()
}
