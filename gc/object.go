package gc

import (
	"sync/atomic"
	"unsafe"

	"github.com/mem-gc/otfgc/internal/header"
	"github.com/mem-gc/otfgc/internal/largeblock"
)

// object is the GC metadata record for one managed allocation: its header
// word, write-barrier log pointer, and its raw payload backing (drawn from
// fixedalloc for small objects, varalloc/largeblock for large ones).
//
// Unlike the original, which packs the header and log pointer into the
// bytes immediately preceding an object's payload and recovers them by
// pointer arithmetic, this rendering keeps them in their own Go struct and
// recovers one from a payload pointer via the collector's object registry
// (registry.go) — the same "arena of offsets" choice already used for
// large blocks, extended here to every managed object so a single registry
// serves both size regimes.
type object[H ~uint64] struct {
	hdr     header.Word
	log     header.LogPtr
	size    uintptr
	large   bool
	payload unsafe.Pointer
	blk     *largeblock.Block // set only when large, for returning the block to its arena on sweep

	// loggedChildren holds the pre-image snapshot a write barrier's prelude
	// captured the first time it found this object reachable-but-stale
	// during the current cycle. Guarded by log: only the prelude call that
	// wins log's CompareAndSwapNil ever writes it, and the marker only
	// reads it after observing log non-nil.
	loggedChildren atomic.Pointer[[]unsafe.Pointer]

	next, prev *object[H]
	list       *objectList[H]
}

func (o *object[H]) Payload() unsafe.Pointer { return o.payload }
func (o *object[H]) Header() H               { return H(o.hdr.Load()) }

// objectList is a doubly linked, sentinel-based list of *object[H],
// structured exactly like internal/stublist.List: used for a mutator's
// private used list and, wrapped in sharedObjectList, for the collector's
// published per-class used lists.
type objectList[H ~uint64] struct {
	root object[H]
	len  int
}

func (l *objectList[H]) lazyInit() {
	if l.root.next == nil {
		l.root.next = &l.root
		l.root.prev = &l.root
		l.root.list = l
	}
}

func (l *objectList[H]) Init() *objectList[H] {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.root.list = l
	l.len = 0
	return l
}

func (l *objectList[H]) Len() int     { l.lazyInit(); return l.len }
func (l *objectList[H]) Empty() bool  { return l.Len() == 0 }
func (l *objectList[H]) Front() *object[H] {
	l.lazyInit()
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

func (l *objectList[H]) insertAfter(o, at *object[H]) {
	n := at.next
	at.next = o
	o.prev = at
	o.next = n
	n.prev = o
	o.list = l
	l.len++
}

func (l *objectList[H]) PushFront(o *object[H]) { l.lazyInit(); l.insertAfter(o, &l.root) }
func (l *objectList[H]) PushBack(o *object[H])  { l.lazyInit(); l.insertAfter(o, l.root.prev) }

func (l *objectList[H]) Remove(o *object[H]) {
	if o.list != l {
		panic("gc: Remove of object not owned by this list")
	}
	o.prev.next = o.next
	o.next.prev = o.prev
	o.next, o.prev, o.list = nil, nil, nil
	l.len--
}

func (l *objectList[H]) PopFront() *object[H] {
	o := l.Front()
	if o != nil {
		l.Remove(o)
	}
	return o
}

// Append splices other onto the end of l and empties other.
func (l *objectList[H]) Append(other *objectList[H]) {
	l.lazyInit()
	other.lazyInit()
	for n := other.Front(); n != nil; {
		next := n.next
		other.Remove(n)
		l.PushBack(n)
		n = next
	}
}
