package largeblock

import (
	"sync"
	"unsafe"
)

// ChunkSize is the size of a raw allocation an Arena carves new blocks from
// when its free list can't satisfy a request within SearchDepth, mirroring
// mheap.go's arena-growth idiom (grow by a fixed large increment, not by the
// exact request size).
const ChunkSize = 1 << 20

// Arena owns raw backing memory and the address -> *Block lookup that lets
// GetBlock/Free locate a buddy without packing pointers into the block's own
// bytes.
type Arena struct {
	mu      sync.Mutex
	free    List
	byAddr  map[uintptr]*Block
	chunks  [][]byte // keeps carved memory reachable so the GC doesn't reclaim it
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{byAddr: make(map[uintptr]*Block)}
}

// alignedChunk allocates a ChunkSize-aligned []byte via over-allocate-and-trim,
// the same trick mmap.go/malloc.go use when the platform allocator doesn't
// guarantee alignment directly.
func alignedChunk(size uintptr) (raw []byte, aligned unsafe.Pointer) {
	buf := make([]byte, size*2)
	base := uintptr(unsafe.Pointer(&buf[0]))
	offset := (-base) & (size - 1)
	return buf, unsafe.Pointer(&buf[offset])
}

func (a *Arena) growLocked(minSize uintptr) *Block {
	size := uintptr(ChunkSize)
	for size < minSize {
		size *= 2
	}
	raw, start := alignedChunk(size)
	a.chunks = append(a.chunks, raw)

	b := &Block{Start: start, Size: size, arena: a}
	a.byAddr[uintptr(start)] = b
	return b
}

// buddyAddr returns the address of b's buddy at its current size, valid
// because every block carved by this Arena is size-aligned to its own size.
func buddyAddr(start uintptr, size uintptr) uintptr {
	return start ^ size
}

func splitOnce(b *Block) (lo, hi *Block) {
	half := b.Size / 2
	lo = &Block{Start: b.Start, Size: half, splitDepth: b.splitDepth + 1, arena: b.arena}
	hi = &Block{
		Start:      unsafe.Add(b.Start, half),
		Size:       half,
		splitDepth: b.splitDepth + 1,
		arena:      b.arena,
	}
	return lo, hi
}

// GetBlock returns a block of at least size bytes, splitting a larger free
// block or growing the arena as needed. SearchDepth bounds how many free
// blocks are inspected before giving up and carving a fresh chunk, matching
// the original's search_depth-bounded best-fit walk.
func (a *Arena) GetBlock(size uintptr) *Block {
	if size < MinSize {
		size = MinSize
	}
	size = roundUpPow2(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	best := a.takeBestFitLocked(size)
	if best == nil {
		best = a.growLocked(size)
	}

	for best.Size > size {
		lo, hi := splitOnce(best)
		a.byAddr[uintptr(hi.Start)] = hi
		a.byAddr[uintptr(lo.Start)] = lo
		a.free.PushFront(hi)
		best = lo
	}

	return best
}

func (a *Arena) takeBestFitLocked(size uintptr) *Block {
	var best *Block
	n := a.free.Front()
	for i := 0; n != nil && i < SearchDepth; i++ {
		if n.Size >= size && (best == nil || n.Size < best.Size) {
			best = n
		}
		n = n.next
	}
	if best != nil {
		a.free.Remove(best)
	}
	return best
}

func roundUpPow2(v uintptr) uintptr {
	p := uintptr(1)
	for p < v {
		p *= 2
	}
	return p
}

// Free returns b to the arena's free list, coalescing with its buddy
// repeatedly while the buddy is itself free and the same size, up to
// ChunkSize.
func (a *Arena) Free(b *Block) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for b.Size < ChunkSize {
		buddy, ok := a.byAddr[buddyAddr(uintptr(b.Start), b.Size)]
		if !ok || buddy.Size != b.Size || buddy.list != &a.free {
			break
		}
		a.free.Remove(buddy)
		delete(a.byAddr, uintptr(buddy.Start))

		lo := b
		if uintptr(buddy.Start) < uintptr(b.Start) {
			lo = buddy
		}
		delete(a.byAddr, uintptr(b.Start))
		merged := &Block{
			Start:      lo.Start,
			Size:       b.Size * 2,
			splitDepth: b.splitDepth - 1,
			arena:      a,
		}
		a.byAddr[uintptr(merged.Start)] = merged
		b = merged
	}

	a.free.PushFront(b)
}
