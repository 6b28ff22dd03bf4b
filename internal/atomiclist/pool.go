package atomiclist

// SlabSize is the number of nodes carved from each backing slab, matching
// spec.md §4.A's "64-node slabs".
const SlabSize = 64

// Pool is a thread-local, non-atomic supply of list Nodes. It mirrors
// mfixalloc.go's bump-and-freelist shape (runtime/mfixalloc.go): a freelist
// is consulted first, and only when empty does the pool carve a fresh slab.
// Unlike mfixalloc, the backing storage is ordinary Go-heap memory (slices),
// since nodes here hold GC-visible Go values — there is no raw syscall arena
// to release at shutdown, only the pool's own references to drop.
type Pool[T any] struct {
	free  *Node[T]
	slabs [][]Node[T]
}

// Get returns a node from the freelist, carving a new slab first if the
// freelist is empty.
func (p *Pool[T]) Get() *Node[T] {
	if p.free != nil {
		n := p.free
		p.free = n.next.Load()
		n.next.Store(nil)
		return n
	}

	slab := make([]Node[T], SlabSize)
	p.slabs = append(p.slabs, slab)

	for i := 1; i < len(slab); i++ {
		slab[i].next.Store(p.free)
		p.free = &slab[i]
	}
	return &slab[0]
}

// Put returns n to the freelist for reuse. The caller must have fully
// unlinked n from any list first.
func (p *Pool[T]) Put(n *Node[T]) {
	var zero T
	n.Value = zero
	n.next.Store(p.free)
	p.free = n
}

// SlabCount reports how many backing slabs this pool has carved. The slabs
// are ordinary heap memory: a detaching mutator releases them by dropping
// the pool's references (Reset) rather than by an explicit free, and no
// allocation dump records them.
func (p *Pool[T]) SlabCount() int { return len(p.slabs) }

// Reset drops the pool's retained slabs and freelist, as performed when a
// mutator detaches and its unreturned capacity is handed to the host GC
// rather than kept around for reuse.
func (p *Pool[T]) Reset() {
	p.free = nil
	p.slabs = nil
}
