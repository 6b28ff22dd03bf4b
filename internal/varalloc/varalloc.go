// Package varalloc implements the mutator-local front end for large-object
// allocation: a private free list checked first, falling back to the shared
// Arena (spec.md §2.C, §4.E), grounded on variable_list_manager.hpp and on
// the teacher's mheap.go alloc path (try the free list, then ask the OS-facing
// allocator for more).
package varalloc

import (
	"github.com/mem-gc/otfgc/internal/largeblock"
)

// Manager is one mutator's private view of the large-object allocator.
type Manager struct {
	arena *largeblock.Arena

	free largeblock.List
	used largeblock.List
}

// NewManager returns a Manager drawing from the given shared arena.
func NewManager(arena *largeblock.Arena) *Manager {
	m := &Manager{arena: arena}
	m.free.Init()
	m.used.Init()
	return m
}

// ReleaseFreeList detaches and returns the manager's private free list.
func (m *Manager) ReleaseFreeList() *largeblock.List {
	out := (&largeblock.List{}).Init()
	out.Append(&m.free)
	return out
}

// ReleaseUsedList detaches and returns the manager's used list.
func (m *Manager) ReleaseUsedList() *largeblock.List {
	out := (&largeblock.List{}).Init()
	out.Append(&m.used)
	return out
}

// PushFrontUsed records blk as already in use (e.g. after a direct arena
// carve that bypassed GetBlock).
func (m *Manager) PushFrontUsed(blk *largeblock.Block) {
	m.used.PushFront(blk)
}

// PushFrontFree deposits blk into the manager's private free list, e.g. a
// block the collector handed back at a phase boundary.
func (m *Manager) PushFrontFree(blk *largeblock.Block) {
	m.free.PushFront(blk)
}

// Append merges another free list into the manager's private one.
func (m *Manager) Append(other *largeblock.List) {
	m.free.Append(other)
}

// TryPrivateFreeList attempts to satisfy size from the manager's own free
// list only, returning nil on a miss without touching the shared arena —
// lets a caller decide whether to top up the private free list (e.g. from a
// collector-level recycling stack) before paying for an arena split/growth.
func (m *Manager) TryPrivateFreeList(size uintptr) *largeblock.Block {
	if b := m.takeFromFreeList(size); b != nil {
		m.used.PushBack(b)
		return b
	}
	return nil
}

// GetBlock returns a block of at least size bytes: first by scanning the
// manager's own free list (bounded, like the fixed-class allocator's chunk
// reuse), then by asking the shared arena to split or grow.
func (m *Manager) GetBlock(size uintptr) *largeblock.Block {
	if b := m.takeFromFreeList(size); b != nil {
		m.used.PushBack(b)
		return b
	}

	b := m.arena.GetBlock(size)
	m.used.PushBack(b)
	return b
}

// takeFromFreeList pops up to SearchDepth blocks off the front of the free
// list looking for one big enough, re-pushing the ones it skips back onto
// the front in their original order.
func (m *Manager) takeFromFreeList(size uintptr) *largeblock.Block {
	var skipped largeblock.List
	skipped.Init()

	var found *largeblock.Block
	for i := 0; i < largeblock.SearchDepth; i++ {
		b := m.free.PopFront()
		if b == nil {
			break
		}
		if found == nil && b.Size >= size {
			found = b
			continue
		}
		skipped.PushBack(b)
	}

	for n := skipped.PopBack(); n != nil; n = skipped.PopBack() {
		m.free.PushFront(n)
	}

	return found
}
