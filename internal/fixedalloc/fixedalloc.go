// Package fixedalloc implements the per-size-class bump allocator a mutator
// draws small cells from (spec.md §2.B, §4.C), grounded directly on the
// teacher's runtime/mfixalloc.go: carve a chunk, bump an offset through it
// one fixed-size cell at a time, and fall back to a backing stub list once
// the chunk is exhausted.
package fixedalloc

import (
	"unsafe"

	"github.com/mem-gc/otfgc/internal/stublist"
)

// SmallSizeClasses is the number of small-object size classes, matching
// impl_details::small_size_classes.
const SmallSizeClasses = 7

// sizeClassLimitBits caps logMultiplier: a class's chunk size stops doubling
// once it reaches 2^sizeClassLimitBits cells, matching small_block_size_limit.
const sizeClassLimitBits = 6

// ClassSize returns the cell size, in bytes, of size class i.
func ClassSize(i int) uintptr { return 1 << (i + 3) }

// Manager is one mutator's private view of one size class: a bump cursor
// into the current chunk, a backing free-stub list for chunks not yet
// carved from, and the used list of cells handed out so far.
type Manager struct {
	objSizeBits int

	cur    *stublist.Stub
	offset uintptr

	logMultiplier int

	free stublist.List
	used stublist.List
}

// NewManager returns a Manager for the given size class index (0..6).
func NewManager(classIndex int) *Manager {
	m := &Manager{objSizeBits: classIndex + 3, logMultiplier: 3}
	m.free.Init()
	m.used.Init()
	return m
}

// ReleaseFreeList detaches and returns the manager's backing free-chunk
// list, used when a mutator detaches and hands its leftovers to the
// collector's per-class free lists.
func (m *Manager) ReleaseFreeList() *stublist.List {
	out := (&stublist.List{}).Init()
	out.Append(&m.free)
	return out
}

// ReleaseUsedList detaches and returns the manager's used list.
func (m *Manager) ReleaseUsedList() *stublist.List {
	out := (&stublist.List{}).Init()
	out.Append(&m.used)
	return out
}

// PushFront adds a raw chunk to the manager's backing stub list, or adopts
// it as the active chunk if the manager currently has none.
func (m *Manager) PushFront(blk unsafe.Pointer, size uintptr) {
	s := &stublist.Stub{Start: blk, Size: size}
	if m.cur != nil {
		m.free.PushBack(s)
	} else {
		m.cur = s
		m.offset = 0
	}
}

// GetBlock returns the next cell from the current chunk, rolling over to
// the backing free list when the chunk is exhausted, or nil if nothing is
// available (the caller should then call GetNewBlock).
func (m *Manager) GetBlock() unsafe.Pointer {
	objSize := uintptr(1) << m.objSizeBits

	if m.cur == nil {
		return nil
	}

	var ptr unsafe.Pointer
	if m.offset < m.cur.Size {
		ptr = unsafe.Add(m.cur.Start, m.offset)
		m.offset += objSize
	} else {
		m.cur = m.free.PopFront()
		if m.cur != nil {
			ptr = m.cur.Start
			m.offset = objSize
		}
	}

	if ptr != nil {
		m.used.PushBack(&stublist.Stub{Start: ptr, Size: objSize})
	}
	return ptr
}

// GetNewBlock carves a fresh chunk from the platform allocator, sized at
// 2^(objSizeBits+logMultiplier) bytes, incrementing logMultiplier after each
// call until it reaches sizeClassLimitBits, so each chunk is twice the size of
// the last and a long-lived size class fetches chunks less and less often,
// matching fixed_list_manager::get_new_block.
func (m *Manager) GetNewBlock() unsafe.Pointer {
	chunkSize := uintptr(1) << (m.objSizeBits + m.logMultiplier)
	buf := make([]byte, chunkSize)
	blk := unsafe.Pointer(&buf[0])

	m.PushFront(blk, chunkSize)

	if m.objSizeBits+m.logMultiplier < sizeClassLimitBits+m.objSizeBits {
		m.logMultiplier++
	}

	m.offset = uintptr(1) << m.objSizeBits

	if m.cur != nil && m.cur.Start != nil {
		m.used.PushBack(&stublist.Stub{Start: m.cur.Start, Size: uintptr(1) << m.objSizeBits})
	}

	return blk
}
