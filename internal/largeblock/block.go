// Package largeblock implements the variable-size ("large object") block
// manager: power-of-two aligned blocks carved from arenas, split on demand
// and coalesced with their buddy on free (spec.md §2.C, §4.E). Unlike the
// teacher's mheap.go, which embeds span bookkeeping in the heap's own
// address space via a page-indexed lookup, and unlike the original C++'s
// block_cursor (which reads prev/next/header fields directly out of the
// block's raw bytes), this rendering keeps block metadata in an ordinary Go
// struct, addressed through the arena's lookup map — the "arena of offsets"
// alternative spec.md §9 sanctions for a Go port, chosen because packing a
// GC-managed pointer's header into a byte slice via unsafe casts is exactly
// the kind of thing that's easy to get subtly wrong without a compiler and
// test loop to lean on.
package largeblock

import (
	"sync"
	"unsafe"

	"github.com/mem-gc/otfgc/internal/header"
)

// MinSizeBits is the smallest block size, in bits (spec.md large_obj_threshold).
const MinSizeBits = 9

// MinSize is 1<<MinSizeBits bytes, the smallest unit an Arena ever hands out.
const MinSize = 1 << MinSizeBits

// SearchDepth bounds how many free blocks GetBlock inspects before giving up
// and carving a fresh chunk, matching impl_details::search_depth.
const SearchDepth = 32

// Block is the descriptor for one large block, free or in use. Payload is
// Arena-owned raw memory; Block itself never aliases it.
type Block struct {
	Start unsafe.Pointer
	Size  uintptr

	// splitDepth counts how many times the chunk this block was carved
	// from has been halved to produce it; two blocks are buddies only if
	// they share a parent at splitDepth-1 and the same size.
	splitDepth uint32

	NumLogPtrs int
	LogPtrs    []header.LogPtr
	Header     header.Word

	prev, next *Block
	list       *List
	arena      *Arena
}

// Data returns the usable payload pointer, past the block's own metadata
// slots — the Go analogue of block_cursor::data(). Since this rendering
// keeps metadata off to the side in the Block struct, Data is simply Start;
// the method exists so callers don't need to know that.
func (b *Block) Data() unsafe.Pointer { return b.Start }

// List is a doubly linked list of *Block, structured exactly like
// internal/stublist.List (sentinel-based, Append empties its argument).
type List struct {
	root Block
	len  int
}

func (l *List) lazyInit() {
	if l.root.next == nil {
		l.root.next = &l.root
		l.root.prev = &l.root
		l.root.list = l
	}
}

// Init resets l to empty and returns it.
func (l *List) Init() *List {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.root.list = l
	l.len = 0
	return l
}

func (l *List) Len() int { l.lazyInit(); return l.len }
func (l *List) Empty() bool { return l.Len() == 0 }

func (l *List) Front() *Block {
	l.lazyInit()
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

func (l *List) Back() *Block {
	l.lazyInit()
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

func (l *List) insertAfter(b, at *Block) {
	n := at.next
	at.next = b
	b.prev = at
	b.next = n
	n.prev = b
	b.list = l
	l.len++
}

func (l *List) PushFront(b *Block) { l.lazyInit(); l.insertAfter(b, &l.root) }
func (l *List) PushBack(b *Block)  { l.lazyInit(); l.insertAfter(b, l.root.prev) }

func (l *List) Remove(b *Block) {
	if b.list != l {
		panic("largeblock: Remove of block not owned by this list")
	}
	b.prev.next = b.next
	b.next.prev = b.prev
	b.next, b.prev, b.list = nil, nil, nil
	l.len--
}

func (l *List) PopFront() *Block {
	b := l.Front()
	if b != nil {
		l.Remove(b)
	}
	return b
}

func (l *List) PopBack() *Block {
	b := l.Back()
	if b != nil {
		l.Remove(b)
	}
	return b
}

// Append splices other onto the end of l and empties other.
func (l *List) Append(other *List) {
	l.lazyInit()
	other.lazyInit()
	if other.len == 0 {
		return
	}
	for n := other.Front(); n != nil; {
		next := n.next
		other.Remove(n)
		l.PushBack(n)
		n = next
	}
}

// Shared is a mutex-guarded shared counterpart of List offering Take and
// VacateAndAppend. Package gc does not use it: its large used list is a
// gc-side list of object records.
type Shared struct {
	mu sync.Mutex
	l  List
}

func (s *Shared) exchange(in *List) *List {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &List{}
	out.Init()
	for n := s.l.Front(); n != nil; {
		next := n.next
		s.l.Remove(n)
		out.PushBack(n)
		n = next
	}
	s.l.Init()
	for n := in.Front(); n != nil; {
		next := n.next
		in.Remove(n)
		s.l.PushBack(n)
		n = next
	}
	return out
}

// Take atomically removes and returns the entire shared list.
func (s *Shared) Take() *List { return s.exchange((&List{}).Init()) }

// VacateAndAppend merges contribution into the shared list, preserving
// concurrent contributions the same way internal/stublist.Shared.VacateAndAppend
// does. Implemented directly under a mutex rather than lock-free exchange,
// since Block lists are already mutex-guarded at the Arena level by this
// package's split/coalesce path — a second lock-free layer here would buy
// nothing the Arena mutex doesn't already provide.
func (s *Shared) VacateAndAppend(contribution *List) {
	if contribution.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := contribution.Front(); n != nil; {
		next := n.next
		contribution.Remove(n)
		s.l.PushBack(n)
		n = next
	}
}

func (s *Shared) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Empty()
}
