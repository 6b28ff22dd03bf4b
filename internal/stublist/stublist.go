// Package stublist implements the descriptor list for contiguous runs of
// small-class cell storage (spec.md §4.C). The list shape is adapted from
// container/list/list.go's sentinel-based doubly linked list — Stub plays
// the role of container/list's Element, with (start, size) in place of an
// arbitrary Value — and from mheap.go's mSpanList, which threads its list
// through fields embedded in the element itself rather than a wrapper node.
package stublist

import "unsafe"

// Stub describes a contiguous run of small-class storage.
type Stub struct {
	Start unsafe.Pointer
	Size  uintptr

	next, prev *Stub
	list       *List // non-nil while linked, for Remove's ownership check
}

// End returns the address one past the end of the stub's extent.
func (s *Stub) End() unsafe.Pointer {
	return unsafe.Add(s.Start, s.Size)
}

// List is a doubly linked list of Stubs, supporting push/pop at both ends,
// O(1) removal given the element, and whole-list append — the same
// operation set container/list.go offers, narrowed to Stub payloads.
type List struct {
	root Stub // sentinel; root.next is front, root.prev is back
	len  int
}

func (l *List) lazyInit() {
	if l.root.next == nil {
		l.root.next = &l.root
		l.root.prev = &l.root
	}
}

// Init resets the list to empty.
func (l *List) Init() *List {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.len = 0
	return l
}

// Len returns the number of stubs in the list.
func (l *List) Len() int { return l.len }

// Empty reports whether the list holds no stubs.
func (l *List) Empty() bool { return l.len == 0 }

// Front returns the first stub, or nil if the list is empty.
func (l *List) Front() *Stub {
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

// Back returns the last stub, or nil if the list is empty.
func (l *List) Back() *Stub {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

func (l *List) insertAfter(s, at *Stub) *Stub {
	n := at.next
	at.next = s
	s.prev = at
	s.next = n
	n.prev = s
	s.list = l
	l.len++
	return s
}

// PushFront inserts s at the front of the list.
func (l *List) PushFront(s *Stub) *Stub {
	l.lazyInit()
	return l.insertAfter(s, &l.root)
}

// PushBack inserts s at the back of the list.
func (l *List) PushBack(s *Stub) *Stub {
	l.lazyInit()
	return l.insertAfter(s, l.root.prev)
}

// Remove unlinks s from whichever list it belongs to. Panics if s is not
// linked into l, matching mSpanList.remove's defensive check.
func (l *List) Remove(s *Stub) {
	if s.list != l {
		panic("stublist: Remove of stub not owned by this list")
	}
	s.prev.next = s.next
	s.next.prev = s.prev
	s.next, s.prev, s.list = nil, nil, nil
	l.len--
}

// PopFront removes and returns the front stub, or nil if empty.
func (l *List) PopFront() *Stub {
	s := l.Front()
	if s != nil {
		l.Remove(s)
	}
	return s
}

// PopBack removes and returns the back stub, or nil if empty.
func (l *List) PopBack() *Stub {
	s := l.Back()
	if s != nil {
		l.Remove(s)
	}
	return s
}

// Append splices other onto the back of l, in order, and empties other.
func (l *List) Append(other *List) {
	if other.Empty() {
		return
	}
	l.lazyInit()
	other.lazyInit()

	first, last := other.root.next, other.root.prev
	for n := first; n != &other.root; n = n.next {
		n.list = l
	}

	back := l.root.prev
	back.next = first
	first.prev = back
	last.next = &l.root
	l.root.prev = last

	l.len += other.len
	other.Init()
}

// MergeAdjacent walks the list front-to-back and coalesces consecutive
// stubs whose extents are contiguous (prev.End() == next.Start). Returns the
// number of merges performed. Collector.sweep does not call it.
func (l *List) MergeAdjacent() int {
	merges := 0
	cur := l.Front()
	for cur != nil {
		next := cur.next
		if next == &l.root {
			break
		}
		if cur.End() == next.Start {
			cur.Size += next.Size
			l.Remove(next)
			merges++
			continue // re-examine cur against its new neighbor
		}
		cur = next
	}
	return merges
}
